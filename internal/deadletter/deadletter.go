// SPDX-License-Identifier: MIT

// Package deadletter durably records events the bridge could not deliver or
// process after exhausting retries. Loss must be observable, never silent.
package deadletter

import (
	"context"
	"time"
)

// Entry is one dead-lettered event with enough context to triage it.
type Entry struct {
	EventID string    `json:"event_id"`
	Subject string    `json:"subject"`
	Reason  string    `json:"reason"`
	Body    []byte    `json:"body"`
	At      time.Time `json:"at"`
}

// Store is the pluggable dead-letter sink.
type Store interface {
	Put(ctx context.Context, e Entry) error
	// List returns up to limit entries, oldest first.
	List(ctx context.Context, limit int) ([]Entry, error)
	Len(ctx context.Context) (int, error)
	Close() error
}
