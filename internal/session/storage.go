// Package session keeps per-browsing-session state: the live cart, the signed-in
// identity and their best-effort snapshots in session-scoped storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
)

// Keys of the persisted session payloads.
const (
	CartKey     = "cart:v1"
	IdentityKey = "identity:v1"
)

var ErrNotFound = errors.New("session: key not found")

// Storage is a string key/value area. Get returns ErrNotFound for absent keys.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type scopedStorage struct {
	inner  Storage
	prefix string
}

// Scoped confines every key of inner to the area of one session.
func Scoped(inner Storage, sessionID string) Storage {
	return &scopedStorage{inner: inner, prefix: "session:" + sessionID + ":"}
}

func (s *scopedStorage) Get(ctx context.Context, key string) (string, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *scopedStorage) Set(ctx context.Context, key, value string) error {
	return s.inner.Set(ctx, s.prefix+key, value)
}

func (s *scopedStorage) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}

// Load reads and decodes the value under key. A missing key, a failing storage or
// an undecodable value all yield false; Load never reports an error.
func Load[T any](ctx context.Context, s Storage, key string, logger *slog.Logger) (T, bool) {
	var value T
	raw, err := s.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.WarnContext(ctx, "session storage read failed", "key", key, "error", err)
		}
		return value, false
	}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		logger.WarnContext(ctx, "discarding malformed session value", "key", key, "error", err)
		var zero T
		return zero, false
	}
	return value, true
}

// Save encodes and writes value under key. Failures are logged and swallowed.
func Save[T any](ctx context.Context, s Storage, key string, value T, logger *slog.Logger) {
	raw, err := json.Marshal(value)
	if err != nil {
		logger.WarnContext(ctx, "failed to encode session value", "key", key, "error", err)
		return
	}
	if err := s.Set(ctx, key, string(raw)); err != nil {
		logger.WarnContext(ctx, "failed to persist session value", "key", key, "error", err)
	}
}
