// SPDX-License-Identifier: MIT

package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Broker used for unit tests and local prototyping.
// It keeps per-stream FIFO order and durable consumer cursors, and redelivers
// messages that were fetched but not acknowledged, which is enough to exercise
// the bridge's at-least-once discipline without a running broker.
type Memory struct {
	mu      sync.Mutex
	streams map[string]*memStream
	closed  bool

	// failPublishes makes the next n Publish calls fail with ErrUnavailable.
	// Test hook for retry and dead-letter paths.
	failPublishes int
}

type memStream struct {
	cfg       StreamConfig
	msgs      []*memMessage
	consumers map[string]bool
}

type memMessage struct {
	broker    *Memory
	subject   string
	data      []byte
	header    map[string]string
	seq       uint64
	delivered map[string]uint64 // per durable
	acked     map[string]bool
	inflight  map[string]bool
}

// NewMemory returns an empty in-memory broker.
func NewMemory() *Memory {
	return &Memory{streams: make(map[string]*memStream)}
}

// FailNextPublishes arranges for the next n Publish calls to fail transiently.
func (m *Memory) FailNextPublishes(n int) {
	m.mu.Lock()
	m.failPublishes = n
	m.mu.Unlock()
}

func (m *Memory) CreateStream(_ context.Context, cfg StreamConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}
	if existing, ok := m.streams[cfg.Name]; ok {
		if !streamConfigEqual(existing.cfg, cfg) {
			return fmt.Errorf("%q: %w", cfg.Name, ErrStreamExists)
		}
		return nil
	}
	m.streams[cfg.Name] = &memStream{cfg: cfg, consumers: make(map[string]bool)}
	return nil
}

func (m *Memory) StreamInfo(_ context.Context, name string) (*StreamInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrUnavailable
	}
	s, ok := m.streams[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrStreamNotFound)
	}
	return &StreamInfo{Config: s.cfg, Msgs: uint64(len(s.msgs))}, nil
}

func (m *Memory) Publish(_ context.Context, subject string, data []byte, header map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}
	if m.failPublishes > 0 {
		m.failPublishes--
		return fmt.Errorf("injected publish failure: %w", ErrUnavailable)
	}
	stored := false
	for _, s := range m.streams {
		for _, pattern := range s.cfg.Subjects {
			if SubjectMatches(pattern, subject) {
				s.msgs = append(s.msgs, &memMessage{
					broker:    m,
					subject:   subject,
					data:      append([]byte(nil), data...),
					header:    copyHeader(header),
					seq:       uint64(len(s.msgs) + 1),
					delivered: make(map[string]uint64),
					acked:     make(map[string]bool),
					inflight:  make(map[string]bool),
				})
				stored = true
				break
			}
		}
	}
	if !stored {
		return fmt.Errorf("no stream covers subject %q: %w", subject, ErrUnavailable)
	}
	return nil
}

func (m *Memory) PullSubscribe(_ context.Context, cfg ConsumerConfig) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrUnavailable
	}
	s, ok := m.streams[cfg.Stream]
	if !ok {
		return nil, fmt.Errorf("%q: %w", cfg.Stream, ErrStreamNotFound)
	}
	s.consumers[cfg.Durable] = true
	return &memSubscription{broker: m, stream: s, cfg: cfg}, nil
}

func (m *Memory) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Subjects returns the raw bodies currently stored for a subject, in order.
// Test inspection hook.
func (m *Memory) Subjects(stream, subject string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[stream]
	if !ok {
		return nil
	}
	var out [][]byte
	for _, msg := range s.msgs {
		if msg.subject == subject {
			out = append(out, append([]byte(nil), msg.data...))
		}
	}
	return out
}

type memSubscription struct {
	broker *Memory
	stream *memStream
	cfg    ConsumerConfig
	closed bool
}

func (s *memSubscription) Fetch(ctx context.Context, batch int, wait time.Duration) ([]Message, error) {
	deadline := time.Now().Add(wait)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs, err := s.tryFetch(batch)
		if err != nil || len(msgs) > 0 {
			return msgs, err
		}
		if time.Now().After(deadline) {
			return nil, nil // idle poll
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (s *memSubscription) tryFetch(batch int) ([]Message, error) {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if s.broker.closed || s.closed {
		return nil, ErrUnavailable
	}
	var out []Message
	durable := s.cfg.Durable
	for _, msg := range s.stream.msgs {
		if len(out) == batch {
			break
		}
		if msg.acked[durable] || msg.inflight[durable] {
			continue
		}
		if !SubjectMatches(s.cfg.FilterSubject, msg.subject) {
			continue
		}
		msg.inflight[durable] = true
		msg.delivered[durable]++
		out = append(out, &memDelivery{msg: msg, durable: durable})
	}
	return out, nil
}

func (s *memSubscription) Close() error {
	s.broker.mu.Lock()
	s.closed = true
	// In-flight deliveries of a closed subscription become eligible again,
	// mirroring a broker ack-wait expiry.
	for _, msg := range s.stream.msgs {
		delete(msg.inflight, s.cfg.Durable)
	}
	s.broker.mu.Unlock()
	return nil
}

type memDelivery struct {
	msg     *memMessage
	durable string
}

func (d *memDelivery) Subject() string { return d.msg.subject }
func (d *memDelivery) Data() []byte    { return d.msg.data }

func (d *memDelivery) Header(key string) string {
	return d.msg.header[key]
}

func (d *memDelivery) NumDelivered() uint64 {
	d.msg.broker.mu.Lock()
	defer d.msg.broker.mu.Unlock()
	return d.msg.delivered[d.durable]
}

func (d *memDelivery) Ack() error {
	d.msg.broker.mu.Lock()
	defer d.msg.broker.mu.Unlock()
	d.msg.acked[d.durable] = true
	delete(d.msg.inflight, d.durable)
	return nil
}

func (d *memDelivery) Nak() error {
	d.msg.broker.mu.Lock()
	defer d.msg.broker.mu.Unlock()
	delete(d.msg.inflight, d.durable)
	return nil
}

func streamConfigEqual(a, b StreamConfig) bool {
	if a.Name != b.Name || a.MaxMsgs != b.MaxMsgs || a.MaxAge != b.MaxAge || a.Replicas != b.Replicas {
		return false
	}
	if len(a.Subjects) != len(b.Subjects) {
		return false
	}
	for i := range a.Subjects {
		if a.Subjects[i] != b.Subjects[i] {
			return false
		}
	}
	return true
}

func copyHeader(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
