// SPDX-License-Identifier: MIT

package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TLimoges33/Syn-OS-sub013/internal/bridge"
	"github.com/TLimoges33/Syn-OS-sub013/internal/deadletter"
)

type fakeBridge struct {
	status bridge.Status
}

func (f *fakeBridge) Status() bridge.Status { return f.status }

func TestHealthAlwaysOK(t *testing.T) {
	srv := New(":0", &fakeBridge{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyReflectsBridgeState(t *testing.T) {
	tests := []struct {
		name     string
		status   bridge.Status
		wantCode int
	}{
		{"running and connected", bridge.Status{State: "running", Connected: true}, http.StatusOK},
		{"disconnected", bridge.Status{State: "running", Connected: false}, http.StatusServiceUnavailable},
		{"still starting", bridge.Status{State: "starting", Connected: true}, http.StatusServiceUnavailable},
		{"stopping", bridge.Status{State: "stopping", Connected: true}, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := New(":0", &fakeBridge{status: tc.status}, nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tc.wantCode, rec.Code)
		})
	}
}

func TestStatusIncludesDeadLetterBacklog(t *testing.T) {
	dead := deadletter.NewMemory(10)
	require.NoError(t, dead.Put(context.Background(), deadletter.Entry{
		EventID: "ev-1",
		Subject: "synos.security.threat",
		Reason:  "publish_exhausted",
		At:      time.Now().UTC(),
	}))

	fb := &fakeBridge{status: bridge.Status{
		State:     "running",
		Connected: true,
		Published: 42,
		Handled:   7,
	}}
	srv := New(":0", fb, dead)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "running", got["state"])
	assert.Equal(t, float64(42), got["published"])
	assert.Equal(t, float64(7), got["handled"])
	assert.Equal(t, float64(1), got["dead_letter_backlog"])
}

func TestMetricsEndpointServes(t *testing.T) {
	srv := New(":0", &fakeBridge{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := New("127.0.0.1:0", &fakeBridge{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("control server did not shut down")
	}
}
