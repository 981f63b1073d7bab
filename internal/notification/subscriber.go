// Package notification consumes OrderPlaced events and sends the order confirmation.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ackableMsg is the part of jetstream.Msg the handler needs.
type ackableMsg interface {
	Data() []byte
	Subject() string
	Ack() error
	Nak() error
}

// Start creates the durable consumer and runs cfg.Workers fetch loops until ctx is done.
func Start(ctx context.Context, js jetstream.JetStream, cfg config.SubscriberConfig, logger *slog.Logger) error {
	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		FilterSubject: cfg.Subject,
		Durable:       cfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return err
	}
	logger = logger.With("component", "notification")
	g, gCtx := errgroup.WithContext(ctx)
	for range cfg.Workers {
		g.Go(func() error {
			return runWorker(gCtx, consumer, cfg.Timeout, cfg.Interval, logger)
		})
	}
	return g.Wait()
}

func runWorker(ctx context.Context, consumer jetstream.Consumer, timeout, interval time.Duration, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			batch, err := consumer.Fetch(1, jetstream.FetchMaxWait(timeout))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					continue
				}
				logger.Error("failed to fetch messages", "error", err)
				time.Sleep(interval)
				continue
			}
			for msg := range batch.Messages() {
				handleMessage(ctx, msg, logger)
			}
		}
	}
}

// handleMessage logs the order confirmation and acks. Payloads that do not decode are nak'ed.
func handleMessage(ctx context.Context, msg ackableMsg, logger *slog.Logger) {
	if msg == nil {
		logger.Error("received nil message")
		return
	}
	var event events.OrderPlacedEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		logger.Error("failed to unmarshal message", "error", err, "subject", msg.Subject())
		if err := msg.Nak(); err != nil {
			logger.Error("failed to nak message", "error", err)
		}
		return
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(event.Carrier))
	ctx, span := otel.Tracer("storefront/notification").Start(ctx, "order confirmation",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("order.id", event.OrderID)))
	defer span.End()

	logger.InfoContext(ctx, "Order confirmation",
		slog.String("subject", msg.Subject()),
		slog.String("order_id", event.OrderID),
		slog.String("user_id", event.UserID),
		slog.String("total", event.Total.StringFixed(2)),
		slog.Int("item_count", event.ItemCount),
		slog.String("created_at", event.CreatedAt.Format(time.RFC3339)))

	if err := msg.Ack(); err != nil {
		logger.ErrorContext(ctx, "failed to ack message", "error", err)
	}
}
