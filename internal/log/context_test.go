// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "corr-1")
	ctx = ContextWithEventID(ctx, "ev-9")

	if got := CorrelationIDFromContext(ctx); got != "corr-1" {
		t.Errorf("correlation id: got %q, want corr-1", got)
	}
	if got := EventIDFromContext(ctx); got != "ev-9" {
		t.Errorf("event id: got %q, want ev-9", got)
	}
}

func TestContextNilSafety(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	if got := CorrelationIDFromContext(nil); got != "" {
		t.Errorf("expected empty correlation id from nil context, got %q", got)
	}
	if got := EventIDFromContext(nil); got != "" {
		t.Errorf("expected empty event id from nil context, got %q", got)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	base := Derive(nil).Output(&buf)

	ctx := ContextWithCorrelationID(context.Background(), "corr-7")
	cl := WithContext(ctx, base)
	cl.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry[FieldCorrelationID] != "corr-7" {
		t.Errorf("expected correlation_id field, got %v", entry)
	}
}
