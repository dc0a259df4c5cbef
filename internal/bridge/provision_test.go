// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TLimoges33/Syn-OS-sub013/internal/broker"
	"github.com/TLimoges33/Syn-OS-sub013/internal/config"
)

func declaredStreams() []config.Stream {
	return []config.Stream{{
		Name:     "SYNOS_EVENTS",
		Subjects: []string{"synos.>"},
		MaxMsgs:  1000,
		MaxAge:   config.Duration(time.Hour),
		Replicas: 1,
	}}
}

func TestEnsureStreamsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemory()
	p := NewProvisioner(b)

	require.NoError(t, p.EnsureStreams(ctx, declaredStreams()))
	// Second ensure with identical descriptors: no error, no duplicate.
	require.NoError(t, p.EnsureStreams(ctx, declaredStreams()))

	info, err := b.StreamInfo(ctx, "SYNOS_EVENTS")
	require.NoError(t, err)
	assert.Equal(t, []string{"synos.>"}, info.Config.Subjects)
}

func TestEnsureStreamsToleratesDrift(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemory()

	// A stream already exists with different retention.
	require.NoError(t, b.CreateStream(ctx, broker.StreamConfig{
		Name:     "SYNOS_EVENTS",
		Subjects: []string{"synos.>"},
		MaxMsgs:  5,
		MaxAge:   time.Minute,
	}))
	require.NoError(t, b.Publish(ctx, "synos.a", []byte("live"), nil))

	p := NewProvisioner(b)
	require.NoError(t, p.EnsureStreams(ctx, declaredStreams()), "drift is a warning, not an error")

	// Live data untouched.
	info, err := b.StreamInfo(ctx, "SYNOS_EVENTS")
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.Msgs)
	assert.EqualValues(t, 5, info.Config.MaxMsgs, "existing stream is never destructively reconfigured")
}

func TestEnsureStreamsBrokerUnavailable(t *testing.T) {
	ctx := context.Background()
	b := broker.NewMemory()
	require.NoError(t, b.Close())

	p := NewProvisioner(b)
	err := p.EnsureStreams(ctx, declaredStreams())
	require.ErrorIs(t, err, broker.ErrUnavailable)
}
