package rest

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/pkg/web"
)

type cartView struct {
	Items      []cart.Item `json:"items"`
	TotalCount int         `json:"total_count"`
	TotalPrice string      `json:"total_price"`
}

func newCartView(s cart.State) cartView {
	return cartView{Items: s.Items, TotalCount: s.TotalCount(), TotalPrice: s.TotalPrice().StringFixed(2)}
}

type addItemDto struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

// setQtyDto keeps qty raw: quantity fields arrive as numbers, numeric strings or junk.
type setQtyDto struct {
	Qty json.RawMessage `json:"qty"`
}

// requestedQty reads a number or a numeric string. Anything else, a missing qty
// included, is NaN, which the cart turns into 1.
func requestedQty(raw json.RawMessage) float64 {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return math.NaN()
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return math.NaN()
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	web.RespondJSON(w, log, http.StatusOK, newCartView(sessionFrom(r.Context()).Cart().State()))
}

// AddCartItem looks the product up in the catalog and adds one unit of it.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	var dto addItemDto
	if !web.DecodeJSON(w, r, log, &dto) {
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		web.RespondValidation(w, r, log, err)
		return
	}

	p, err := h.Catalog.FindByID(r.Context(), dto.ProductID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		log.WarnContext(r.Context(), "Product not found", "product_id", dto.ProductID)
		web.RespondError(w, log, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		respondFailure(w, r, log, "Failed to add product to cart", err)
		return
	}
	state := sessionFrom(r.Context()).Cart().AddToCart(p.CartProduct())
	log.DebugContext(r.Context(), "Product added to cart", "product_id", p.ID)
	web.RespondJSON(w, log, http.StatusOK, newCartView(state))
}

func (h *Handler) SetCartItemQty(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	id, ok := web.ParseInt64ID(w, r, log)
	if !ok {
		return
	}
	var dto setQtyDto
	if !web.DecodeJSON(w, r, log, &dto) {
		return
	}
	state := sessionFrom(r.Context()).Cart().SetQuantity(id, requestedQty(dto.Qty))
	web.RespondJSON(w, log, http.StatusOK, newCartView(state))
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	id, ok := web.ParseInt64ID(w, r, log)
	if !ok {
		return
	}
	state := sessionFrom(r.Context()).Cart().RemoveFromCart(id)
	web.RespondJSON(w, log, http.StatusOK, newCartView(state))
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	state := sessionFrom(r.Context()).Cart().ClearCart()
	web.RespondJSON(w, log, http.StatusOK, newCartView(state))
}
