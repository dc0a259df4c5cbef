// SPDX-License-Identifier: MIT

package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/TLimoges33/Syn-OS-sub013/internal/broker"
	"github.com/TLimoges33/Syn-OS-sub013/internal/config"
	xlog "github.com/TLimoges33/Syn-OS-sub013/internal/log"
)

// Provisioner reconciles declared streams against the broker at startup. It
// is idempotent and safe to race with other bridge instances: losing the
// create race to an identical ensure is success.
type Provisioner struct {
	broker broker.Broker
	log    zerolog.Logger
}

// NewProvisioner wraps the lent broker handle. The provisioner never closes it.
func NewProvisioner(b broker.Broker) *Provisioner {
	return &Provisioner{broker: b, log: xlog.WithComponent("provisioner")}
}

// EnsureStreams creates each declared stream if absent. An existing stream is
// never destructively reconfigured; drift is logged as a warning and the
// stream is left alone.
func (p *Provisioner) EnsureStreams(ctx context.Context, streams []config.Stream) error {
	for _, s := range streams {
		if err := p.ensure(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provisioner) ensure(ctx context.Context, s config.Stream) error {
	desired := broker.StreamConfig{
		Name:     s.Name,
		Subjects: s.Subjects,
		MaxMsgs:  s.MaxMsgs,
		MaxAge:   s.MaxAge.Std(),
		Replicas: s.Replicas,
	}

	info, err := p.broker.StreamInfo(ctx, s.Name)
	switch {
	case err == nil:
		p.warnOnDrift(desired, info.Config)
		return nil
	case errors.Is(err, broker.ErrStreamNotFound):
		// create below
	default:
		return fmt.Errorf("ensure stream %s: %w", s.Name, err)
	}

	err = p.broker.CreateStream(ctx, desired)
	switch {
	case err == nil:
		p.log.Info().
			Str("event", "stream.created").
			Str(xlog.FieldStream, s.Name).
			Strs("subjects", s.Subjects).
			Int64("max_msgs", s.MaxMsgs).
			Dur("max_age", s.MaxAge.Std()).
			Msg("created durable stream")
		return nil
	case errors.Is(err, broker.ErrStreamExists):
		// Lost the create race or the live stream diverged from config.
		// Either way the stream exists and has live data; never recreate.
		p.log.Warn().
			Str("event", "stream.exists_with_drift").
			Str(xlog.FieldStream, s.Name).
			Msg("stream already exists with a different configuration, leaving it untouched")
		return nil
	default:
		return fmt.Errorf("ensure stream %s: %w", s.Name, err)
	}
}

func (p *Provisioner) warnOnDrift(desired, actual broker.StreamConfig) {
	drift := desired.MaxMsgs != actual.MaxMsgs ||
		desired.MaxAge != actual.MaxAge ||
		!equalStrings(desired.Subjects, actual.Subjects)
	if !drift {
		return
	}
	p.log.Warn().
		Str("event", "stream.config_drift").
		Str(xlog.FieldStream, desired.Name).
		Strs("declared_subjects", desired.Subjects).
		Strs("actual_subjects", actual.Subjects).
		Msg("declared stream config differs from broker, not reconciling")
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
