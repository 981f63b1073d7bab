package nats

import (
	"context"
	"fmt"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/nats-io/nats.go/jetstream"
)

// jsPublisher is the subset of jetstream.JetStream the publisher needs.
type jsPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type NatsPublisher struct {
	js jsPublisher
}

func NewNatsPublisher(js jetstream.JetStream) *NatsPublisher {
	return &NatsPublisher{js: js}
}

func (p *NatsPublisher) Publish(ctx context.Context, event messaging.Event) error {
	data, err := event.Payload()
	if err != nil {
		return fmt.Errorf("failed to get event payload: %w", err)
	}
	if _, err = p.js.Publish(ctx, event.Subject(), data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", event.Subject(), err)
	}
	return nil
}
