package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStorage is a process-local Storage. Entries expire ttl after their last write.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStorage returns an empty storage. A zero ttl keeps entries forever.
func NewMemoryStorage(ttl time.Duration) *MemoryStorage {
	return &MemoryStorage{entries: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
