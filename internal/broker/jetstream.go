// SPDX-License-Identifier: MIT

package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/TLimoges33/Syn-OS-sub013/internal/config"
	xlog "github.com/TLimoges33/Syn-OS-sub013/internal/log"
)

// JetStream is the production Broker backed by NATS JetStream. The connection
// is owned by whoever constructed it; Close here is the only place it is torn
// down.
type JetStream struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// ConnectJetStream dials the broker and binds a JetStream context. A failed
// dial is reported as ErrUnavailable so callers can retry with backoff.
func ConnectJetStream(cfg config.Broker) (*JetStream, error) {
	logger := xlog.WithComponent("broker")

	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Str("event", "broker.disconnected").Msg("broker connection lost")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("event", "broker.reconnected").Str("url", nc.ConnectedUrl()).Msg("broker connection restored")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w: %w", cfg.URL, ErrUnavailable, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bind jetstream: %w", err)
	}
	return &JetStream{nc: nc, js: js}, nil
}

func (b *JetStream) Publish(ctx context.Context, subject string, data []byte, header map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	for k, v := range header {
		msg.Header.Set(k, v)
	}
	if _, err := b.js.PublishMsg(ctx, msg); err != nil {
		if isTransient(err) {
			return fmt.Errorf("publish %s: %w: %w", subject, ErrUnavailable, err)
		}
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (b *JetStream) StreamInfo(ctx context.Context, name string) (*StreamInfo, error) {
	s, err := b.js.Stream(ctx, name)
	if err != nil {
		if errors.Is(err, jetstream.ErrStreamNotFound) {
			return nil, fmt.Errorf("%q: %w", name, ErrStreamNotFound)
		}
		if isTransient(err) {
			return nil, fmt.Errorf("stream info %s: %w: %w", name, ErrUnavailable, err)
		}
		return nil, fmt.Errorf("stream info %s: %w", name, err)
	}
	info, err := s.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream info %s: %w", name, err)
	}
	return &StreamInfo{
		Config: StreamConfig{
			Name:     info.Config.Name,
			Subjects: info.Config.Subjects,
			MaxMsgs:  info.Config.MaxMsgs,
			MaxAge:   info.Config.MaxAge,
			Replicas: info.Config.Replicas,
		},
		Msgs: info.State.Msgs,
	}, nil
}

func (b *JetStream) CreateStream(ctx context.Context, cfg StreamConfig) error {
	_, err := b.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxMsgs:   cfg.MaxMsgs,
		MaxAge:    cfg.MaxAge,
		Replicas:  cfg.Replicas,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		if errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
			return fmt.Errorf("%q: %w", cfg.Name, ErrStreamExists)
		}
		if isTransient(err) {
			return fmt.Errorf("create stream %s: %w: %w", cfg.Name, ErrUnavailable, err)
		}
		return fmt.Errorf("create stream %s: %w", cfg.Name, err)
	}
	return nil
}

func (b *JetStream) PullSubscribe(ctx context.Context, cfg ConsumerConfig) (Subscription, error) {
	cons, err := b.js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		FilterSubject: cfg.FilterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
	})
	if err != nil {
		if isTransient(err) {
			return nil, fmt.Errorf("consumer %s/%s: %w: %w", cfg.Stream, cfg.Durable, ErrUnavailable, err)
		}
		return nil, fmt.Errorf("consumer %s/%s: %w", cfg.Stream, cfg.Durable, err)
	}
	return &jsSubscription{cons: cons}, nil
}

func (b *JetStream) Connected() bool {
	return b.nc.IsConnected()
}

func (b *JetStream) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	return nil
}

type jsSubscription struct {
	cons jetstream.Consumer
}

func (s *jsSubscription) Fetch(ctx context.Context, batch int, wait time.Duration) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := s.cons.Fetch(batch, jetstream.FetchMaxWait(wait))
	if err != nil {
		return nil, wrapFetchErr(err)
	}
	var msgs []Message
	for m := range res.Messages() {
		msgs = append(msgs, &jsMessage{msg: m})
	}
	if err := res.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		// A partial batch is still delivered; the transport error surfaces
		// only when nothing was fetched.
		if len(msgs) == 0 {
			return nil, wrapFetchErr(err)
		}
	}
	return msgs, nil
}

// wrapFetchErr tags only transient transport failures as ErrUnavailable so
// the consumer can tell a reconnectable hiccup from an auth or configuration
// error it must stop on.
func wrapFetchErr(err error) error {
	if isTransient(err) {
		return fmt.Errorf("fetch: %w: %w", ErrUnavailable, err)
	}
	return fmt.Errorf("fetch: %w", err)
}

func (s *jsSubscription) Close() error { return nil }

type jsMessage struct {
	msg jetstream.Msg
}

func (m *jsMessage) Subject() string { return m.msg.Subject() }
func (m *jsMessage) Data() []byte    { return m.msg.Data() }

func (m *jsMessage) Header(key string) string {
	return m.msg.Headers().Get(key)
}

func (m *jsMessage) NumDelivered() uint64 {
	md, err := m.msg.Metadata()
	if err != nil {
		return 1
	}
	return md.NumDelivered
}

func (m *jsMessage) Ack() error { return m.msg.Ack() }
func (m *jsMessage) Nak() error { return m.msg.Nak() }

func isTransient(err error) bool {
	return errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionDraining) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
