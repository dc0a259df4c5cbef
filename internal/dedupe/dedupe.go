// SPDX-License-Identifier: MIT

// Package dedupe provides idempotency guards keyed by event ID. Delivery is
// at-least-once; sinks that need exactly-once effects wrap themselves with a
// guard from this package.
package dedupe

import "context"

// Guard remembers recently handled event IDs for a bounded window.
type Guard interface {
	// Seen reports whether the ID was remembered within the window.
	Seen(ctx context.Context, id string) (bool, error)
	// Remember records the ID. Remembering the same ID twice is harmless.
	Remember(ctx context.Context, id string) error
	Close() error
}
