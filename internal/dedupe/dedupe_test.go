// SPDX-License-Identifier: MIT

package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuard(t *testing.T) {
	g := NewMemory(time.Minute)
	ctx := context.Background()

	seen, err := g.Seen(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, g.Remember(ctx, "ev-1"))
	seen, err = g.Seen(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMemoryGuardExpiry(t *testing.T) {
	g := NewMemory(time.Minute)
	now := time.Now()
	g.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, g.Remember(ctx, "ev-1"))

	now = now.Add(2 * time.Minute)
	seen, err := g.Seen(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, seen, "guard must forget IDs after the TTL window")
}

func TestRedisGuard(t *testing.T) {
	mr := miniredis.RunT(t)

	g, err := NewRedis(mr.Addr(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })

	ctx := context.Background()
	seen, err := g.Seen(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, g.Remember(ctx, "ev-1"))
	seen, err = g.Seen(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, seen)

	// TTL expiry via miniredis clock
	mr.FastForward(2 * time.Minute)
	seen, err = g.Seen(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisGuardUnreachable(t *testing.T) {
	_, err := NewRedis("127.0.0.1:1", time.Minute)
	require.Error(t, err)
}
