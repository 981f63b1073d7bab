// Package order writes placed orders to the document store and reads them back.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/docstore"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
)

const Collection = "orders"

// Draft is an order about to be written. Items is a snapshot of the cart lines.
type Draft struct {
	UserID string
	Items  []cart.Item
	Total  decimal.Decimal
}

// Order is a stored order. CreatedAt is assigned by the store.
type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Items     []cart.Item     `json:"items"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"createdAt"`
}

// record is the persisted shape of an order.
type record struct {
	UserID string          `json:"userId"`
	Items  []cart.Item     `json:"items"`
	Total  decimal.Decimal `json:"total"`
}

// Service implements order creation and lookup.
type Service struct {
	store         docstore.Store
	publisher     messaging.Publisher
	ordersCounter metric.Int64Counter
	logger        *slog.Logger
}

func NewService(store docstore.Store, publisher messaging.Publisher, logger *slog.Logger) *Service {
	meter := otel.Meter("storefront")
	ordersCounter, err := meter.Int64Counter("orders_created", metric.WithDescription("Total number of created orders"))
	if err != nil {
		panic(fmt.Sprintf("failed to create orders_created counter: %v", err))
	}
	return &Service{
		store:         store,
		publisher:     publisher,
		ordersCounter: ordersCounter,
		logger:        logger.With("component", "order"),
	}
}

// Create writes the draft and returns the id the store assigned.
// The OrderPlaced event is published best-effort once the record exists.
func (s *Service) Create(ctx context.Context, d Draft) (string, error) {
	if d.UserID == "" || len(d.Items) == 0 {
		return "", ErrInvalidDraft
	}
	doc, err := s.store.Create(ctx, Collection, record{UserID: d.UserID, Items: d.Items, Total: d.Total})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCreateOrder, err)
	}

	itemCount := 0
	for _, it := range d.Items {
		itemCount += it.Qty
	}
	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	event := events.OrderPlacedEvent{
		Carrier:   carrier,
		OrderID:   doc.ID,
		UserID:    d.UserID,
		Total:     d.Total,
		ItemCount: itemCount,
		CreatedAt: doc.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish OrderPlacedEvent", "order_id", doc.ID, "error", err)
	}
	s.ordersCounter.Add(ctx, 1)

	return doc.ID, nil
}

// FindByID returns the order if it belongs to userID.
func (s *Service) FindByID(ctx context.Context, userID, id string) (*Order, error) {
	doc, err := s.store.Get(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", id, err)
	}
	o, err := toOrder(doc)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrAccessDenied
	}
	return o, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	q := docstore.Where(Collection, "userId", userID).Sorted(docstore.FieldCreatedAt, true)
	docs, fallback, err := docstore.QuerySorted(ctx, s.store, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListOrders, err)
	}
	if fallback {
		s.logger.WarnContext(ctx, "Order index missing, sorted orders in memory", "index", q.IndexName(), "count", len(docs))
	}
	orders := make([]Order, 0, len(docs))
	for _, doc := range docs {
		o, err := toOrder(doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func toOrder(doc docstore.Document) (*Order, error) {
	var r record
	if err := doc.Decode(&r); err != nil {
		return nil, err
	}
	return &Order{
		ID:        doc.ID,
		UserID:    r.UserID,
		Items:     r.Items,
		Total:     r.Total,
		CreatedAt: doc.CreatedAt,
	}, nil
}
