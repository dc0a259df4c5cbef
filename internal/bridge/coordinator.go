// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TLimoges33/Syn-OS-sub013/internal/broker"
	"github.com/TLimoges33/Syn-OS-sub013/internal/config"
	"github.com/TLimoges33/Syn-OS-sub013/internal/deadletter"
	xlog "github.com/TLimoges33/Syn-OS-sub013/internal/log"
)

// Status is the externally visible health snapshot of a bridge instance.
type Status struct {
	State                    string `json:"state"`
	Connected                bool   `json:"connected"`
	Published                uint64 `json:"published"`
	Handled                  uint64 `json:"handled"`
	Skipped                  uint64 `json:"skipped"`
	SinkFailures             uint64 `json:"sink_failures"`
	DeadLettered             uint64 `json:"dead_lettered"`
	PublishQueueDepth        int    `json:"publish_queue_depth"`
	ConsecutiveFetchFailures uint64 `json:"consecutive_fetch_failures"`
}

// Coordinator owns the bridge lifecycle: it holds the broker connection,
// provisions streams, and runs the publisher drain loop and the consumer
// fetch loop concurrently. The connection is lent to both sides and closed
// only here.
type Coordinator struct {
	cfg    *config.Config
	broker broker.Broker
	prov   *Provisioner
	pub    *Publisher
	cons   *Consumer
	log    zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	started bool
	stopped bool
}

// NewCoordinator validates the mapping table and wires both sides of the
// bridge. A broken configuration fails here, before any broker activity.
func NewCoordinator(cfg *config.Config, b broker.Broker, sink Sink, dead deadletter.Store) (*Coordinator, error) {
	mapper, err := NewSubjectMapper(cfg.SubjectPrefix, cfg.Mappings)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		cfg:    cfg,
		broker: b,
		prov:   NewProvisioner(b),
		pub:    NewPublisher(b, mapper, dead, cfg.Publisher, cfg.Source),
		cons:   NewConsumer(b, mapper, sink, dead, cfg.Consumer, cfg.Source),
		log:    xlog.WithComponent("coordinator"),
	}, nil
}

// Start provisions streams and launches both loops. It returns once the
// consumer's durable subscription is confirmed, not once backlog is drained.
// Stream provisioning retries transient broker failures with backoff before
// giving up; an exhausted retry budget is fatal for startup.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("bridge already started")
	}
	c.started = true
	c.mu.Unlock()

	if err := c.provisionWithRetry(ctx); err != nil {
		return fmt.Errorf("stream provisioning: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return c.pub.Run(gctx) })
	g.Go(func() error { return c.cons.Run(gctx) })

	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		err := g.Wait()
		c.mu.Lock()
		c.runErr = err
		c.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error().Err(err).
				Str("event", "bridge.task_failed").
				Msg("bridge task exited with error")
		}
		close(done)
	}()

	select {
	case <-c.cons.Ready():
	case <-done:
		c.mu.Lock()
		err := c.runErr
		c.mu.Unlock()
		return fmt.Errorf("bridge failed during startup: %w", err)
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}

	c.log.Info().
		Str("event", "bridge.started").
		Str(xlog.FieldSource, string(c.cfg.Source)).
		Msg("bridge running")
	return nil
}

func (c *Coordinator) provisionWithRetry(ctx context.Context) error {
	operation := func() (struct{}, error) {
		err := c.prov.EnsureStreams(ctx, c.cfg.Streams)
		if err != nil && !errors.Is(err, broker.ErrUnavailable) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 200 * time.Millisecond
	expo.MaxInterval = 30 * time.Second

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(c.cfg.Publisher.MaxAttempts)),
	)
	return err
}

// Stop signals both loops to exit at their next safe checkpoint and waits up
// to the configured shutdown timeout. The consumer finishes resolving the
// current batch's acks before exiting; events still queued for publishing are
// logged. The broker connection is closed last.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		// Start failed before the loops were launched.
		return c.broker.Close()
	}
	cancel()

	timeout := c.cfg.ShutdownTimeout.Std()
	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("shutdown timed out after %s, %d events not drained", timeout, c.pub.QueueLen())
		c.log.Error().
			Str("event", "bridge.shutdown_timeout").
			Int("undrained", c.pub.QueueLen()).
			Dur("timeout", timeout).
			Msg("forcing shutdown with events still in flight")
	case <-ctx.Done():
		err = ctx.Err()
	}

	if closeErr := c.broker.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	c.log.Info().Str("event", "bridge.stopped").Msg("bridge stopped")
	return err
}

// Done returns a channel closed when both bridge loops have exited, whether
// from Stop or from a fatal runtime error. It returns nil before Start.
func (c *Coordinator) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err reports why the loops exited. It is nil while running and after a clean
// stop.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if errors.Is(c.runErr, context.Canceled) {
		return nil
	}
	return c.runErr
}

// Publish enqueues a local event for bridging. It is the push-based local
// source entry point.
func (c *Coordinator) Publish(ctx context.Context, ev Event) error {
	return c.pub.Enqueue(ctx, ev)
}

// RunSource polls a pull-based local source and enqueues everything it
// drains. It returns when ctx is cancelled.
func (c *Coordinator) RunSource(ctx context.Context, src Source, every time.Duration) error {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			events, err := src.DrainPending(ctx)
			if err != nil {
				c.log.Warn().Err(err).
					Str("event", "source.drain_failed").
					Msg("local source drain failed")
				continue
			}
			for _, ev := range events {
				if err := c.pub.Enqueue(ctx, ev); err != nil {
					return err
				}
			}
		}
	}
}

// Status reports cumulative counters for health-check consumption.
func (c *Coordinator) Status() Status {
	return Status{
		State:                    c.cons.State().String(),
		Connected:                c.broker.Connected(),
		Published:                c.pub.Published(),
		Handled:                  c.cons.Handled(),
		Skipped:                  c.cons.Skipped(),
		SinkFailures:             c.cons.SinkFailures(),
		DeadLettered:             c.pub.DeadLettered() + c.cons.DeadLettered(),
		PublishQueueDepth:        c.pub.QueueLen(),
		ConsecutiveFetchFailures: c.cons.ConsecutiveFetchFailures(),
	}
}
