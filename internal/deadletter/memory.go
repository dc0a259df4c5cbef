// SPDX-License-Identifier: MIT

package deadletter

import (
	"context"
	"sync"
	"time"
)

// Memory is a bounded in-memory store for tests. When full, the oldest entry
// is evicted.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
}

// NewMemory creates a store holding at most capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		capacity = 1024
	}
	return &Memory{cap: capacity}
}

func (s *Memory) Put(_ context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == s.cap {
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *Memory) List(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]Entry(nil), s.entries[:n]...), nil
}

func (s *Memory) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *Memory) Close() error { return nil }
