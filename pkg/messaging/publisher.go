// Package messaging defines the event publishing contract shared by producers and consumers.
package messaging

import (
	"context"
)

const OrdersPlacedSubject = "orders.placed"

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// DiscardPublisher drops every event. Used when no broker is configured.
type DiscardPublisher struct{}

func (DiscardPublisher) Publish(context.Context, Event) error { return nil }
