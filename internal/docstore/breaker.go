package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/sony/gobreaker/v2"
)

// BreakerStore guards a Store with a circuit breaker. Only infrastructure failures
// count against the breaker; not-found, missing-index and invalid-query answers are
// normal results. Calls are never retried.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[any]
}

func WithBreaker(next Store, name string, cfg config.CircuitBreakerConfig) *BreakerStore {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			total := counts.TotalSuccesses + counts.TotalFailures
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures ||
				(total > cfg.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(total)*100 > float64(cfg.ErrorRatePercent))
		},
		IsSuccessful: isSuccessful,
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker[any](st)}
}

func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrIndexMissing) ||
		errors.Is(err, ErrInvalidQuery) ||
		errors.Is(err, context.Canceled)
}

// State reports the breaker state, for health output.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func execute[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (b *BreakerStore) Create(ctx context.Context, collection string, data any) (Document, error) {
	return execute(b, func() (Document, error) { return b.next.Create(ctx, collection, data) })
}

func (b *BreakerStore) Put(ctx context.Context, collection, id string, data any) (Document, error) {
	return execute(b, func() (Document, error) { return b.next.Put(ctx, collection, id, data) })
}

func (b *BreakerStore) Merge(ctx context.Context, collection, id string, data any) (Document, error) {
	return execute(b, func() (Document, error) { return b.next.Merge(ctx, collection, id, data) })
}

func (b *BreakerStore) Update(ctx context.Context, collection, id string, data any) (Document, error) {
	return execute(b, func() (Document, error) { return b.next.Update(ctx, collection, id, data) })
}

func (b *BreakerStore) Get(ctx context.Context, collection, id string) (Document, error) {
	return execute(b, func() (Document, error) { return b.next.Get(ctx, collection, id) })
}

func (b *BreakerStore) Delete(ctx context.Context, collection, id string) error {
	_, err := execute(b, func() (struct{}, error) { return struct{}{}, b.next.Delete(ctx, collection, id) })
	return err
}

func (b *BreakerStore) Query(ctx context.Context, q Query) ([]Document, error) {
	return execute(b, func() ([]Document, error) { return b.next.Query(ctx, q) })
}
