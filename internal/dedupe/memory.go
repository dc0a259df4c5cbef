// SPDX-License-Identifier: MIT

package dedupe

import (
	"context"
	"sync"
	"time"
)

// Memory is a TTL-map guard for single-process deployments and tests.
type Memory struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemory creates a guard that forgets IDs after ttl.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Memory{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (m *Memory) Seen(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.seen[id]
	if !ok {
		return false, nil
	}
	if m.now().Sub(at) > m.ttl {
		delete(m.seen, id)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Remember(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.seen[id] = now
	// Opportunistic sweep keeps the map bounded without a background task.
	if len(m.seen)%1024 == 0 {
		for k, at := range m.seen {
			if now.Sub(at) > m.ttl {
				delete(m.seen, k)
			}
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
