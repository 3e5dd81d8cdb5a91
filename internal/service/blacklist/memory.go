package blacklist

import (
	"context"
	"sync"
	"time"
)

// Memory is the default process-local blacklist.
// It does not survive a restart: the short natural TTL of access tokens
// bounds the exposure window, which is an accepted limitation.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]time.Time

	// now is swappable in tests
	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *Memory) Add(_ context.Context, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[token] = expiresAt
	return nil
}

func (m *Memory) Contains(_ context.Context, token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	expiresAt, ok := m.entries[token]
	if !ok {
		return false, nil
	}

	// Expired entries answer false even before the next sweep
	return expiresAt.After(m.now()), nil
}

func (m *Memory) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for token, expiresAt := range m.entries {
		if !expiresAt.After(now) {
			delete(m.entries, token)
			removed++
		}
	}

	return removed, nil
}
