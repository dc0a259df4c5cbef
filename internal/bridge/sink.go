// SPDX-License-Identifier: MIT

package bridge

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/TLimoges33/Syn-OS-sub013/internal/dedupe"
	xlog "github.com/TLimoges33/Syn-OS-sub013/internal/log"
)

// Sink receives bridged events on the local side. Handle may return an error,
// in which case the message is redelivered later; handlers must therefore be
// idempotent or wrapped in a DedupSink.
type Sink interface {
	Handle(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Source is the pull-based local event source contract. Sources may instead
// push directly through Coordinator.Enqueue.
type Source interface {
	// DrainPending returns events waiting to cross the bridge, oldest first.
	DrainPending(ctx context.Context) ([]Event, error)
}

// DedupSink wraps a sink with an idempotency guard so redelivered events are
// applied at most once. A guard failure fails open: the event is handled and
// may be applied twice, which at-least-once semantics already permit.
type DedupSink struct {
	next  Sink
	guard dedupe.Guard
	log   zerolog.Logger
}

// NewDedupSink decorates next with the guard.
func NewDedupSink(next Sink, guard dedupe.Guard) *DedupSink {
	return &DedupSink{next: next, guard: guard, log: xlog.WithComponent("dedup-sink")}
}

func (s *DedupSink) Handle(ctx context.Context, ev Event) error {
	seen, err := s.guard.Seen(ctx, ev.ID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("event", "dedupe.check_failed").
			Str(xlog.FieldEventID, ev.ID).
			Msg("idempotency check failed, handling anyway")
	} else if seen {
		s.log.Debug().
			Str("event", "dedupe.duplicate_skipped").
			Str(xlog.FieldEventID, ev.ID).
			Msg("event already applied, skipping")
		return nil
	}
	if err := s.next.Handle(ctx, ev); err != nil {
		return err
	}
	if err := s.guard.Remember(ctx, ev.ID); err != nil {
		s.log.Warn().Err(err).
			Str("event", "dedupe.remember_failed").
			Str(xlog.FieldEventID, ev.ID).
			Msg("could not record handled event id")
	}
	return nil
}
