// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TLimoges33/Syn-OS-sub013/internal/bridge"
	"github.com/TLimoges33/Syn-OS-sub013/internal/config"
)

func TestBuildSinkWithoutRedis(t *testing.T) {
	cfg := config.Defaults()
	cfg.DedupeRedisAddr = ""

	sink, guard, err := buildSink(&cfg)
	require.NoError(t, err)
	require.NotNil(t, sink)
	assert.Nil(t, guard, "no guard to close when dedupe is off")

	ev := bridge.NewEvent("security.threat_detected", config.SourceLocalB, nil, nil)
	require.NoError(t, sink.Handle(context.Background(), ev))
}

func TestBuildSinkWithRedisGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Defaults()
	cfg.DedupeRedisAddr = mr.Addr()
	cfg.DedupeTTL = config.Duration(time.Minute)

	sink, guard, err := buildSink(&cfg)
	require.NoError(t, err)
	require.NotNil(t, guard, "caller owns the guard's lifetime")

	// Same event twice: the guard makes the second delivery a no-op.
	ev := bridge.NewEvent("security.threat_detected", config.SourceLocalB, nil, nil)
	require.NoError(t, sink.Handle(context.Background(), ev))
	require.NoError(t, sink.Handle(context.Background(), ev))

	require.NoError(t, guard.Close())
}

func TestBuildSinkUnreachableRedis(t *testing.T) {
	cfg := config.Defaults()
	cfg.DedupeRedisAddr = "127.0.0.1:1" // nothing listens here

	_, guard, err := buildSink(&cfg)
	require.Error(t, err)
	assert.Nil(t, guard, "nothing leaks when the guard cannot connect")
}
