// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/TLimoges33/Syn-OS-sub013/internal/broker"
	"github.com/TLimoges33/Syn-OS-sub013/internal/config"
	"github.com/TLimoges33/Syn-OS-sub013/internal/deadletter"
	xlog "github.com/TLimoges33/Syn-OS-sub013/internal/log"
	"github.com/TLimoges33/Syn-OS-sub013/internal/metrics"
)

// State is the consumer lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Consumer runs the durable pull fetch/ack loop. A message is acknowledged
// only after the local sink handled it without error; everything else relies
// on broker redelivery.
type Consumer struct {
	broker broker.Broker
	mapper *SubjectMapper
	sink   Sink
	dead   deadletter.Store
	cfg    config.Consumer
	source config.Source
	log    zerolog.Logger

	state        atomic.Int32
	ready        chan struct{}
	handled      atomic.Uint64
	skipped      atomic.Uint64
	sinkFailures atomic.Uint64
	fetchErrors  atomic.Uint64 // consecutive, reset on success
	deadLettered atomic.Uint64
}

// NewConsumer wires the consuming side. The broker handle is lent by the
// coordinator; the consumer never closes it.
func NewConsumer(b broker.Broker, mapper *SubjectMapper, sink Sink, dead deadletter.Store, cfg config.Consumer, source config.Source) *Consumer {
	return &Consumer{
		broker: b,
		mapper: mapper,
		sink:   sink,
		dead:   dead,
		cfg:    cfg,
		source: source,
		log:    xlog.WithComponent("consumer"),
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the durable subscription is established.
func (c *Consumer) Ready() <-chan struct{} { return c.ready }

// State returns the current lifecycle state.
func (c *Consumer) State() State { return State(c.state.Load()) }

func (c *Consumer) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.log.Info().
			Str("event", "consumer.state_changed").
			Str(xlog.FieldOldState, old.String()).
			Str(xlog.FieldNewState, s.String()).
			Msg("consumer state transition")
	}
}

// Run executes the fetch/ack loop until ctx is cancelled. The cancellation
// flag is observed at iteration boundaries, never mid-message, so no message
// is abandoned half-acknowledged. Unrecoverable subscription or fetch errors
// stop the loop and surface to the coordinator, as does exceeding the
// consecutive-fetch-failure ceiling.
func (c *Consumer) Run(ctx context.Context) error {
	c.setState(StateStarting)
	defer c.setState(StateStopped)

	sub, err := c.broker.PullSubscribe(ctx, broker.ConsumerConfig{
		Stream:        c.cfg.Stream,
		Durable:       c.cfg.Durable,
		FilterSubject: c.cfg.FilterSubject,
		AckWait:       c.cfg.AckWait.Std(),
	})
	if err != nil {
		return fmt.Errorf("pull subscribe %s/%s: %w", c.cfg.Stream, c.cfg.Durable, err)
	}
	defer func() { _ = sub.Close() }()

	c.setState(StateRunning)
	close(c.ready)

	retryWait := backoff.NewExponentialBackOff()
	retryWait.InitialInterval = 200 * time.Millisecond
	retryWait.MaxInterval = 30 * time.Second

	for {
		if ctx.Err() != nil {
			c.setState(StateStopping)
			return ctx.Err()
		}

		start := time.Now()
		msgs, err := sub.Fetch(ctx, c.cfg.BatchSize, c.cfg.FetchWait.Std())
		metrics.FetchDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.setState(StateStopping)
				return err
			}
			if !errors.Is(err, broker.ErrUnavailable) {
				// Auth or configuration failure: no amount of retrying
				// fixes this, stop the loop and surface it.
				c.setState(StateStopping)
				return fmt.Errorf("fetch: %w", err)
			}
			failures := c.fetchErrors.Add(1)
			if failures >= uint64(c.cfg.MaxFetchFailures) {
				c.setState(StateStopping)
				return fmt.Errorf("fetch failed %d consecutive times: %w", failures, err)
			}
			wait := retryWait.NextBackOff()
			c.log.Warn().Err(err).
				Str("event", "fetch.failed").
				Uint64("consecutive", failures).
				Dur("retry_in", wait).
				Msg("batch fetch failed, backing off")
			select {
			case <-ctx.Done():
				c.setState(StateStopping)
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		c.fetchErrors.Store(0)
		retryWait.Reset()

		// The whole batch is resolved before the loop re-checks ctx; a stop
		// during processing waits for these acks (graceful drain).
		hctx := context.WithoutCancel(ctx)
		for _, msg := range msgs {
			c.handleMessage(hctx, msg)
		}
	}
}

// handleMessage applies the ack discipline for one delivery:
// poison or unroutable messages are acked and skipped, sink errors leave the
// message un-acked for redelivery, and an event that keeps failing beyond the
// configured ceiling is dead-lettered and acked to end the redelivery loop.
func (c *Consumer) handleMessage(ctx context.Context, msg broker.Message) {
	ev, err := DecodeEvent(msg.Data())
	if err != nil {
		c.skipped.Add(1)
		metrics.DecodeFailuresTotal.Inc()
		metrics.IncConsumed(metrics.OutcomeSkipped)
		c.log.Warn().Err(err).
			Str("event", "consume.poison_skipped").
			Str(xlog.FieldSubject, msg.Subject()).
			Msg("undecodable message acknowledged and skipped")
		c.ack(msg)
		return
	}

	if _, ok := c.mapper.ToInternal(msg.Subject()); !ok {
		// Outside this bridge's concern, not an error.
		c.skipped.Add(1)
		metrics.IncConsumed(metrics.OutcomeSkipped)
		c.ack(msg)
		return
	}

	if ev.Source == c.source {
		// Our own event echoed back through the shared stream.
		c.skipped.Add(1)
		metrics.IncConsumed(metrics.OutcomeSkipped)
		c.ack(msg)
		return
	}

	ctx = xlog.ContextWithEventID(ctx, ev.ID)
	if err := c.sink.Handle(ctx, ev); err != nil {
		c.sinkFailures.Add(1)
		metrics.IncConsumed(metrics.OutcomeFailed)
		delivered := msg.NumDelivered()
		if delivered >= uint64(c.cfg.MaxSinkFailures) {
			if dlErr := c.deadLetterEvent(ctx, msg, ev, err); dlErr != nil {
				// Acking now would drop the event from broker and store
				// alike. Leave it for redelivery so a later attempt can
				// record it.
				if nakErr := msg.Nak(); nakErr != nil {
					c.log.Warn().Err(nakErr).
						Str(xlog.FieldEventID, ev.ID).
						Msg("nak failed, broker ack-wait will redeliver")
				}
				return
			}
			c.ack(msg)
			return
		}
		c.log.Warn().Err(err).
			Str("event", "sink.handle_failed").
			Str(xlog.FieldEventID, ev.ID).
			Str(xlog.FieldEventType, ev.Type).
			Uint64(xlog.FieldDelivery, delivered).
			Msg("sink failed, leaving message for redelivery")
		if nakErr := msg.Nak(); nakErr != nil {
			c.log.Warn().Err(nakErr).
				Str(xlog.FieldEventID, ev.ID).
				Msg("nak failed, broker ack-wait will redeliver")
		}
		return
	}

	c.handled.Add(1)
	metrics.IncConsumed(metrics.OutcomeHandled)
	c.ack(msg)
}

func (c *Consumer) ack(msg broker.Message) {
	if err := msg.Ack(); err != nil {
		c.log.Warn().Err(err).
			Str(xlog.FieldSubject, msg.Subject()).
			Str("event", "consume.ack_failed").
			Msg("ack failed, message may be redelivered")
	}
}

// deadLetterEvent records the event durably. A store failure is returned so
// the caller can keep the message un-acked instead of losing it.
func (c *Consumer) deadLetterEvent(ctx context.Context, msg broker.Message, ev Event, cause error) error {
	entry := deadletter.Entry{
		EventID: ev.ID,
		Subject: msg.Subject(),
		Reason:  "sink_exhausted",
		Body:    msg.Data(),
	}
	if err := c.dead.Put(ctx, entry); err != nil {
		c.log.Error().Err(err).
			Str(xlog.FieldEventID, ev.ID).
			Str("event", "deadletter.write_failed").
			Msg("could not record dead-lettered event")
		return err
	}
	c.deadLettered.Add(1)
	metrics.IncDeadLetter("sink_exhausted")
	c.log.Warn().Err(cause).
		Str("event", "sink.dead_lettered").
		Str(xlog.FieldEventID, ev.ID).
		Uint64(xlog.FieldDelivery, msg.NumDelivered()).
		Msg("event failed repeatedly, dead-lettered to stop redelivery")
	return nil
}

// Handled reports events delivered to the sink successfully.
func (c *Consumer) Handled() uint64 { return c.handled.Load() }

// Skipped reports acknowledged-and-skipped messages (poison, unroutable, own echo).
func (c *Consumer) Skipped() uint64 { return c.skipped.Load() }

// SinkFailures reports sink handler errors, including retries of one event.
func (c *Consumer) SinkFailures() uint64 { return c.sinkFailures.Load() }

// ConsecutiveFetchFailures reports the current run of failed fetches.
func (c *Consumer) ConsecutiveFetchFailures() uint64 { return c.fetchErrors.Load() }

// DeadLettered reports events dead-lettered after repeated sink failures.
func (c *Consumer) DeadLettered() uint64 { return c.deadLettered.Load() }
