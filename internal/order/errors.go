package order

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrAccessDenied  = errors.New("access denied")
	ErrCreateOrder   = errors.New("failed to create order")
	ErrListOrders    = errors.New("failed to list user orders")
	ErrInvalidDraft  = errors.New("invalid order draft")
)
