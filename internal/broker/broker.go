// SPDX-License-Identifier: MIT

// Package broker abstracts the durable pub/sub transport. The bridge core
// depends only on this surface; production runs on NATS JetStream, tests run
// on the in-memory backend.
package broker

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable marks transient transport failures (connection refused,
	// reset, publish with no responder). Callers retry with backoff.
	ErrUnavailable = errors.New("broker unavailable")

	// ErrStreamNotFound is returned by StreamInfo when no stream has the name.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrStreamExists is returned by CreateStream when a stream with the same
	// name but a different configuration already exists. Provisioning treats
	// this as drift, not failure.
	ErrStreamExists = errors.New("stream already exists")
)

// StreamConfig declares a durable stream with bounded retention.
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxMsgs  int64
	MaxAge   time.Duration
	Replicas int
}

// StreamInfo describes an existing stream.
type StreamInfo struct {
	Config StreamConfig
	Msgs   uint64
}

// ConsumerConfig identifies a durable pull consumer on a stream.
type ConsumerConfig struct {
	Stream        string
	Durable       string
	FilterSubject string
	AckWait       time.Duration
}

// Message is a single fetched message. Ack and Nak are terminal for one
// delivery; an un-acked message is redelivered by the broker.
type Message interface {
	Subject() string
	Data() []byte
	Header(key string) string
	// NumDelivered reports how often the broker has delivered this message,
	// starting at 1 for the first delivery.
	NumDelivered() uint64
	Ack() error
	Nak() error
}

// Subscription is a handle on a durable pull consumer.
type Subscription interface {
	// Fetch returns up to batch messages, waiting at most wait for the first
	// one. An empty slice with a nil error is the idle-poll path.
	Fetch(ctx context.Context, batch int, wait time.Duration) ([]Message, error)
	Close() error
}

// Broker is the transport the bridge is built against.
type Broker interface {
	Publish(ctx context.Context, subject string, data []byte, header map[string]string) error
	PullSubscribe(ctx context.Context, cfg ConsumerConfig) (Subscription, error)
	StreamInfo(ctx context.Context, name string) (*StreamInfo, error)
	CreateStream(ctx context.Context, cfg StreamConfig) error
	Connected() bool
	Close() error
}

// SubjectMatches reports whether a subject matches a pattern using the
// broker's wildcard rules: "*" matches exactly one token, a trailing ">"
// matches one or more remaining tokens.
func SubjectMatches(pattern, subject string) bool {
	pt := splitSubject(pattern)
	st := splitSubject(subject)
	for i, tok := range pt {
		if tok == ">" {
			return i == len(pt)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

func splitSubject(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
