// Package checkout turns a session's cart into a placed order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/order"
)

var (
	ErrNotAuthenticated = errors.New("sign in to place an order")
	ErrEmptyCart        = errors.New("cart is empty")
)

// IsPrecondition reports whether err means the submission was refused before any
// order was attempted. The cart is untouched in that case.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrEmptyCart)
}

type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Result reports how far a submission got.
// ConfirmationPath is where the caller should navigate after success.
type Result struct {
	OrderID          string
	State            State
	ConfirmationPath string
}

// OrderCreator writes an order and returns its id.
type OrderCreator interface {
	Create(ctx context.Context, d order.Draft) (string, error)
}

type Workflow struct {
	orders OrderCreator
	logger *slog.Logger
}

func NewWorkflow(orders OrderCreator, logger *slog.Logger) *Workflow {
	return &Workflow{orders: orders, logger: logger.With("component", "checkout")}
}

// Submit places an order for the cart in store on behalf of id.
// The order is created at most once; on success the cart is cleared before Submit returns.
func (w *Workflow) Submit(ctx context.Context, id *identity.Identity, store *cart.Store) (Result, error) {
	res := Result{State: StateValidating}
	if id == nil {
		w.logger.InfoContext(ctx, "Checkout refused", "state", res.State, "reason", ErrNotAuthenticated)
		return res, ErrNotAuthenticated
	}
	state := store.State()
	if state.IsEmpty() {
		return res, ErrEmptyCart
	}

	res.State = StateSubmitting
	draft := order.Draft{
		UserID: id.ID,
		Items:  state.Items,
		Total:  state.TotalPrice().Round(2),
	}
	w.logger.InfoContext(ctx, "Submitting order", "state", res.State, "user_id", id.ID, "items", len(draft.Items), "total", draft.Total.StringFixed(2))

	orderID, err := w.orders.Create(ctx, draft)
	if err != nil {
		res.State = StateFailed
		w.logger.ErrorContext(ctx, "Order submission failed", "state", res.State, "user_id", id.ID, "error", err)
		return res, fmt.Errorf("place order: %w", err)
	}

	store.ClearCart()
	res.State = StateSucceeded
	res.OrderID = orderID
	res.ConfirmationPath = "/orders/" + orderID
	w.logger.InfoContext(ctx, "Order placed", "state", res.State, "order_id", orderID)
	return res, nil
}
