// SPDX-License-Identifier: MIT

package bridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TLimoges33/Syn-OS-sub013/internal/config"
)

func TestEventCodecRoundTrip(t *testing.T) {
	ev := NewEvent("security.threat_detected", config.SourceLocalA,
		map[string]any{"level": "high"},
		map[string]any{"attention": 0.7},
	)

	body, err := EncodeEvent(ev)
	require.NoError(t, err)

	got, err := DecodeEvent(body)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "security.threat_detected", got.Type)
	assert.Equal(t, config.SourceLocalA, got.Source)
	assert.Equal(t, map[string]any{"level": "high"}, got.Payload)
	assert.Equal(t, 0.7, got.Metadata["attention"])
	assert.WithinDuration(t, ev.Timestamp, got.Timestamp, time.Millisecond)
}

func TestEventWireShape(t *testing.T) {
	ev := NewEvent("security.threat_detected", config.SourceLocalB, map[string]any{"level": "high"}, nil)
	body, err := EncodeEvent(ev)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(body, &wire))
	assert.Equal(t, ev.ID, wire["id"])
	assert.Equal(t, "security.threat_detected", wire["type"])
	assert.Equal(t, "local_b", wire["source"])
	assert.IsType(t, float64(0), wire["timestamp"], "timestamp travels as float seconds")
	assert.Equal(t, map[string]any{"level": "high"}, wire["data"])
	assert.Equal(t, map[string]any{}, wire["metadata"])
}

func TestDecodeIgnoresUnknownKeys(t *testing.T) {
	body := []byte(`{
		"id": "ev-1",
		"type": "security.threat_detected",
		"source": "local_a",
		"timestamp": 1756500000.25,
		"data": {"level": "high"},
		"metadata": {},
		"future_field": {"nested": true}
	}`)
	ev, err := DecodeEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "ev-1", ev.ID)
	assert.Equal(t, int64(1756500000), ev.Timestamp.Unix())
}

func TestDecodeMissingRequiredKeys(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"id": "ev-1",`,
		"missing id":        `{"type":"t","source":"local_a","timestamp":1,"data":{}}`,
		"missing type":      `{"id":"ev-1","source":"local_a","timestamp":1,"data":{}}`,
		"missing source":    `{"id":"ev-1","type":"t","timestamp":1,"data":{}}`,
		"bad source":        `{"id":"ev-1","type":"t","source":"remote_z","timestamp":1,"data":{}}`,
		"missing timestamp": `{"id":"ev-1","type":"t","source":"local_a","data":{}}`,
		"missing data":      `{"id":"ev-1","type":"t","source":"local_a","timestamp":1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(body))
			require.Error(t, err)
			var de *DecodeError
			assert.ErrorAs(t, err, &de)
		})
	}
}

func TestNewEventDefaults(t *testing.T) {
	a := NewEvent("t", config.SourceLocalA, nil, nil)
	b := NewEvent("t", config.SourceLocalA, nil, nil)
	assert.NotEqual(t, a.ID, b.ID, "every event gets a unique id")
	assert.NotNil(t, a.Payload)
	assert.NotNil(t, a.Metadata)
	assert.False(t, a.Timestamp.IsZero())
}
