package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/pkg/logger"
)

// Session is one browsing session: its cart, its signed-in identity and its storage area.
type Session struct {
	id      string
	cart    *cart.Store
	storage Storage
	logger  *slog.Logger

	saveTimeout time.Duration

	mu       sync.RWMutex
	identity *identity.Identity

	lastSeen    atomic.Int64
	submitting  atomic.Bool
	unsubscribe func()
}

func (s *Session) ID() string {
	return s.id
}

// Cart returns the session's cart store.
func (s *Session) Cart() *cart.Store {
	return s.cart
}

// Identity returns the signed-in identity or nil.
func (s *Session) Identity() *identity.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// SetIdentity records a sign-in and persists it.
func (s *Session) SetIdentity(ctx context.Context, id *identity.Identity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.saveTimeout)
	defer cancel()
	Save(saveCtx, s.storage, IdentityKey, id, s.logger)
}

// ClearIdentity records a sign-out. The cart is left as is.
func (s *Session) ClearIdentity(ctx context.Context) {
	s.mu.Lock()
	s.identity = nil
	s.mu.Unlock()

	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.saveTimeout)
	defer cancel()
	if err := s.storage.Delete(delCtx, IdentityKey); err != nil {
		s.logger.WarnContext(ctx, "failed to delete persisted identity", "error", err)
	}
}

// BeginSubmit marks an order submission as outstanding. It returns false when one already is.
func (s *Session) BeginSubmit() bool {
	return s.submitting.CompareAndSwap(false, true)
}

// EndSubmit clears the mark set by BeginSubmit.
func (s *Session) EndSubmit() {
	s.submitting.Store(false)
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// persist writes every cart change to storage, each write bounded by saveTimeout.
func (s *Session) persist(state cart.State) {
	ctx, cancel := context.WithTimeout(logger.WithSessionID(context.Background(), s.id), s.saveTimeout)
	defer cancel()
	Save(ctx, s.storage, CartKey, state, s.logger)
}
