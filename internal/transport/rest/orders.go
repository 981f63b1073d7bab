package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/abgdnv/storefront/internal/order"
	"github.com/abgdnv/storefront/pkg/web"
)

// ListOrders returns the signed-in user's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	id := identityFrom(r.Context())
	list, err := h.Orders.ListByUser(r.Context(), id.ID)
	if err != nil {
		respondFailure(w, r, log, "Failed to fetch orders", err)
		return
	}
	log.DebugContext(r.Context(), "Successfully retrieved order list", "count", len(list))
	web.RespondJSON(w, log, http.StatusOK, list)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	orderID, ok := web.ParseID(w, r, log)
	if !ok {
		return
	}
	id := identityFrom(r.Context())

	found, err := h.Orders.FindByID(r.Context(), id.ID, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			log.WarnContext(r.Context(), "Order not found", "ID", orderID)
			web.RespondError(w, log, http.StatusNotFound, fmt.Sprintf("Order with ID %s not found", orderID))
			return
		} else if errors.Is(err, order.ErrAccessDenied) {
			log.WarnContext(r.Context(), "Access denied to order", "ID", orderID, "UserID", id.ID)
			web.RespondError(w, log, http.StatusForbidden, fmt.Sprintf("Access denied to order with ID %s", orderID))
			return
		}
		respondFailure(w, r, log, fmt.Sprintf("Failed to retrieve order with ID %s", orderID), err)
		return
	}
	web.RespondJSON(w, log, http.StatusOK, found)
}
