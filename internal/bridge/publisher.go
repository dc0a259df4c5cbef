// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/TLimoges33/Syn-OS-sub013/internal/broker"
	"github.com/TLimoges33/Syn-OS-sub013/internal/config"
	"github.com/TLimoges33/Syn-OS-sub013/internal/deadletter"
	xlog "github.com/TLimoges33/Syn-OS-sub013/internal/log"
	"github.com/TLimoges33/Syn-OS-sub013/internal/metrics"
)

// Publisher serializes local events and publishes them under their mapped
// subjects. Publish failures are retried with bounded exponential backoff;
// exhausted events go to the dead-letter store.
type Publisher struct {
	broker broker.Broker
	mapper *SubjectMapper
	dead   deadletter.Store
	cfg    config.Publisher
	source config.Source
	queue  chan Event
	log    zerolog.Logger

	published    atomic.Uint64
	deadLettered atomic.Uint64
}

// NewPublisher wires the publish side. The broker handle is lent by the
// coordinator; the publisher never closes it.
func NewPublisher(b broker.Broker, mapper *SubjectMapper, dead deadletter.Store, cfg config.Publisher, source config.Source) *Publisher {
	return &Publisher{
		broker: b,
		mapper: mapper,
		dead:   dead,
		cfg:    cfg,
		source: source,
		queue:  make(chan Event, cfg.QueueSize),
		log:    xlog.WithComponent("publisher"),
	}
}

// Enqueue hands an event to the drain loop without blocking on broker I/O.
// It blocks only when the queue is full, and honors ctx cancellation.
func (p *Publisher) Enqueue(ctx context.Context, ev Event) error {
	select {
	case p.queue <- ev:
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish sends one event synchronously. A nil return means the broker acked
// the message or the event was durably dead-lettered. It returns an error
// only when the event could be neither published nor durably recorded.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	subject := p.mapper.ToExternal(ev.Type)

	body, err := EncodeEvent(ev)
	if err != nil {
		return p.deadLetter(ctx, ev.ID, subject, nil, "encode", err)
	}
	header := map[string]string{
		HeaderContentType: ContentTypeJSON,
		HeaderSource:      string(p.source),
	}

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		err := p.broker.Publish(ctx, subject, body, header)
		if err == nil {
			return struct{}{}, nil
		}
		if !errors.Is(err, broker.ErrUnavailable) {
			return struct{}{}, backoff.Permanent(err)
		}
		metrics.PublishRetriesTotal.Inc()
		p.log.Debug().Err(err).
			Str(xlog.FieldEventID, ev.ID).
			Str(xlog.FieldSubject, subject).
			Int(xlog.FieldAttempt, attempt).
			Msg("publish failed, backing off")
		return struct{}{}, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.cfg.BaseBackoff.Std()
	expo.MaxInterval = p.cfg.MaxBackoff.Std()

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(p.cfg.MaxAttempts)),
	)
	if err != nil {
		return p.deadLetter(ctx, ev.ID, subject, body, "publish_exhausted", &PublishError{
			EventID:  ev.ID,
			Subject:  subject,
			Attempts: attempt,
			Err:      err,
		})
	}

	p.published.Add(1)
	metrics.PublishedTotal.WithLabelValues(subject).Inc()
	p.log.Debug().
		Str("event", "publish.acked").
		Str(xlog.FieldEventID, ev.ID).
		Str(xlog.FieldSubject, subject).
		Msg("event published")
	return nil
}

// Run drains the enqueue channel until ctx is cancelled. One failed event
// never blocks the loop; it is dead-lettered and the drain continues. An
// event already dequeued when cancellation arrives keeps its full retry
// budget, so a shutdown mid-backoff does not dead-letter it spuriously.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			if remaining := len(p.queue); remaining > 0 {
				p.log.Warn().
					Str("event", "publisher.stopped_with_backlog").
					Int("remaining", remaining).
					Msg("stopping with events still queued")
			}
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
		case ev := <-p.queue:
			metrics.QueueDepth.Set(float64(len(p.queue)))
			if err := p.Publish(context.WithoutCancel(ctx), ev); err != nil {
				p.log.Error().Err(err).
					Str("event", "publish.unrecorded_loss").
					Str(xlog.FieldEventID, ev.ID).
					Msg("event neither published nor dead-lettered")
			}
		}
	}
}

// deadLetter records an unpublishable event. A non-nil return means the
// event is gone from both the broker and the store; callers must surface it.
func (p *Publisher) deadLetter(ctx context.Context, eventID, subject string, body []byte, reason string, cause error) error {
	entry := deadletter.Entry{
		EventID: eventID,
		Subject: subject,
		Reason:  reason,
		Body:    body,
	}
	if err := p.dead.Put(context.WithoutCancel(ctx), entry); err != nil {
		p.log.Error().Err(err).
			Str(xlog.FieldEventID, eventID).
			Str("event", "deadletter.write_failed").
			Msg("could not record dead-lettered event")
		return fmt.Errorf("dead-letter event %s: %w", eventID, err)
	}
	p.deadLettered.Add(1)
	metrics.IncDeadLetter(reason)
	p.log.Warn().Err(cause).
		Str("event", "publish.dead_lettered").
		Str(xlog.FieldEventID, eventID).
		Str(xlog.FieldSubject, subject).
		Str("reason", reason).
		Msg("event could not be published")
	return nil
}

// Published reports events acked by the broker since start.
func (p *Publisher) Published() uint64 { return p.published.Load() }

// DeadLettered reports events routed to the dead-letter store by this publisher.
func (p *Publisher) DeadLettered() uint64 { return p.deadLettered.Load() }

// QueueLen reports events waiting in the local publish queue.
func (p *Publisher) QueueLen() int { return len(p.queue) }
