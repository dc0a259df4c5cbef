// SPDX-License-Identifier: MIT

package deadletter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerPutListLen(t *testing.T) {
	store, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		err := store.Put(ctx, Entry{
			EventID: fmt.Sprintf("ev-%d", i),
			Subject: "synos.security.threat",
			Reason:  "publish_exhausted",
			Body:    []byte(`{"level":"high"}`),
			At:      base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// oldest first
	assert.Equal(t, "ev-0", entries[0].EventID)
	assert.Equal(t, "ev-2", entries[2].EventID)
	assert.Equal(t, "publish_exhausted", entries[0].Reason)
	assert.JSONEq(t, `{"level":"high"}`, string(entries[0].Body))

	limited, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestBadgerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenBadger(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, Entry{EventID: "ev-1", Reason: "sink_exhausted"}))
	require.NoError(t, store.Close())

	reopened, err := OpenBadger(dir)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reopened.Close()) })

	n, err := reopened.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryEvictsOldest(t *testing.T) {
	store := NewMemory(2)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Put(ctx, Entry{EventID: fmt.Sprintf("ev-%d", i)}))
	}
	entries, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ev-1", entries[0].EventID)
	assert.Equal(t, "ev-2", entries[1].EventID)
}
