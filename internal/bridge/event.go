// SPDX-License-Identifier: MIT

// Package bridge relays events between two independently-owned systems via a
// durable message broker, with at-least-once delivery and per-subject FIFO as
// provided by the broker.
package bridge

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/TLimoges33/Syn-OS-sub013/internal/config"
)

// Wire headers attached to every bridged message.
const (
	HeaderContentType = "Content-Type"
	HeaderSource      = "Synos-Bridge-Source"

	ContentTypeJSON = "application/json"
)

// Event is the unit of exchange. It is immutable after construction; the
// bridge only wraps and unwraps it for transport.
type Event struct {
	ID        string
	Type      string
	Source    config.Source
	Timestamp time.Time
	Payload   map[string]any
	Metadata  map[string]any
}

// NewEvent stamps a fresh event with a unique ID and the producing side's
// identity. The payload is opaque to the bridge.
func NewEvent(eventType string, source config.Source, payload map[string]any, metadata map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Metadata:  metadata,
	}
}

// wireEvent is the broker body: a UTF-8 JSON object. Decoders ignore unknown
// keys for forward compatibility.
type wireEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp float64         `json:"timestamp"`
	Data      *map[string]any `json:"data"`
	Metadata  map[string]any  `json:"metadata"`
}

// EncodeEvent serializes an event to the wire format. Timestamp travels as
// float seconds since epoch.
func EncodeEvent(e Event) ([]byte, error) {
	data := e.Payload
	if data == nil {
		data = map[string]any{}
	}
	md := e.Metadata
	if md == nil {
		md = map[string]any{}
	}
	w := wireEvent{
		ID:        e.ID,
		Type:      e.Type,
		Source:    string(e.Source),
		Timestamp: float64(e.Timestamp.UnixNano()) / float64(time.Second),
		Data:      &data,
		Metadata:  md,
	}
	body, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return body, nil
}

// DecodeEvent validates required keys at the deserialization boundary and
// rebuilds the event. Malformed bodies yield a *DecodeError so the consumer
// can treat them as poison messages.
func DecodeEvent(body []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return Event{}, &DecodeError{Err: err}
	}
	if w.ID == "" {
		return Event{}, &DecodeError{Err: fmt.Errorf("missing required key %q", "id")}
	}
	if w.Type == "" {
		return Event{}, &DecodeError{Err: fmt.Errorf("missing required key %q", "type")}
	}
	source, err := config.ParseSource(w.Source)
	if err != nil {
		return Event{}, &DecodeError{Err: fmt.Errorf("invalid source %q", w.Source)}
	}
	if w.Timestamp <= 0 {
		return Event{}, &DecodeError{Err: fmt.Errorf("missing required key %q", "timestamp")}
	}
	if w.Data == nil {
		return Event{}, &DecodeError{Err: fmt.Errorf("missing required key %q", "data")}
	}
	md := w.Metadata
	if md == nil {
		md = map[string]any{}
	}
	sec, frac := math.Modf(w.Timestamp)
	return Event{
		ID:        w.ID,
		Type:      w.Type,
		Source:    source,
		Timestamp: time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(),
		Payload:   *w.Data,
		Metadata:  md,
	}, nil
}
