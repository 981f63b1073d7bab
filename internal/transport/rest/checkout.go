package rest

import (
	"errors"
	"net/http"

	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/pkg/web"
)

type checkoutResponse struct {
	OrderID      string `json:"order_id"`
	Confirmation string `json:"confirmation"`
}

// PlaceOrder places an order for the session's cart. Only one submission per
// session may be outstanding; a second one gets 409.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	sess := sessionFrom(r.Context())
	if !sess.BeginSubmit() {
		log.WarnContext(r.Context(), "Checkout already in progress")
		web.RespondError(w, log, http.StatusConflict, "Order submission already in progress")
		return
	}
	defer sess.EndSubmit()

	res, err := h.Checkout.Submit(r.Context(), identityFrom(r.Context()), sess.Cart())
	switch {
	case errors.Is(err, checkout.ErrNotAuthenticated):
		h.respondSignIn(w, r)
		return
	case errors.Is(err, checkout.ErrEmptyCart):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		web.RespondError(w, log, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Location", "/api/v1"+res.ConfirmationPath)
	web.RespondJSON(w, log, http.StatusCreated, checkoutResponse{OrderID: res.OrderID, Confirmation: res.ConfirmationPath})
}
