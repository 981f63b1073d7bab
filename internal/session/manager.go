package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/pkg/config"
)

// Manager owns the live sessions of the process.
type Manager struct {
	storage       Storage
	ttl           time.Duration
	saveTimeout   time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(storage Storage, cfg config.SessionConfig, logger *slog.Logger) *Manager {
	return &Manager{
		storage:       storage,
		ttl:           cfg.TTL,
		saveTimeout:   cfg.SaveTimeout,
		sweepInterval: cfg.SweepInterval,
		logger:        logger.With("component", "session"),
		now:           time.Now,
		sessions:      make(map[string]*Session),
	}
}

// Get returns the live session for id, creating it on first use. A new session
// rehydrates its cart and identity from storage once and from then on saves the
// cart after every change.
func (m *Manager) Get(ctx context.Context, id string) *Session {
	now := m.now()
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		s.touch(now)
		return s
	}
	m.mu.Unlock()

	fresh := m.rehydrate(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.touch(now)
		return s
	}
	fresh.unsubscribe = fresh.cart.Subscribe(fresh.persist)
	fresh.touch(now)
	m.sessions[id] = fresh
	m.logger.DebugContext(ctx, "session opened", "session_id", id)
	return fresh
}

func (m *Manager) rehydrate(ctx context.Context, id string) *Session {
	s := &Session{
		id:          id,
		cart:        cart.NewStore(),
		storage:     Scoped(m.storage, id),
		logger:      m.logger,
		saveTimeout: m.saveTimeout,
	}
	loadCtx, cancel := context.WithTimeout(ctx, m.saveTimeout)
	defer cancel()
	if snapshot, ok := Load[cart.State](loadCtx, s.storage, CartKey, s.logger); ok {
		s.cart.LoadCart(snapshot)
	}
	if ident, ok := Load[*identity.Identity](loadCtx, s.storage, IdentityKey, s.logger); ok && ident != nil && ident.ID != "" {
		s.identity = ident
	}
	return s
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the ttl. Their snapshots stay in
// storage, so a returning client gets its cart back until storage expires it.
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, s := range m.sessions {
		if s.submitting.Load() || s.idleSince(now) < m.ttl {
			continue
		}
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		delete(m.sessions, id)
		evicted++
	}
	return evicted
}

// Run sweeps idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.InfoContext(ctx, "evicted idle sessions", "count", n, "live", m.Len())
			}
		}
	}
}
