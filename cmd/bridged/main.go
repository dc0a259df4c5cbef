// SPDX-License-Identifier: MIT

// Command bridged runs the event bridge daemon: it connects the local side
// to the durable broker, provisions streams, and relays events both ways
// until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/TLimoges33/Syn-OS-sub013/internal/bridge"
	"github.com/TLimoges33/Syn-OS-sub013/internal/broker"
	"github.com/TLimoges33/Syn-OS-sub013/internal/config"
	"github.com/TLimoges33/Syn-OS-sub013/internal/control"
	"github.com/TLimoges33/Syn-OS-sub013/internal/deadletter"
	"github.com/TLimoges33/Syn-OS-sub013/internal/dedupe"
	xlog "github.com/TLimoges33/Syn-OS-sub013/internal/log"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until config is loaded.
	xlog.Configure(xlog.Config{
		Level:   "info",
		Service: "synos-bridge",
	})
	logger := xlog.WithComponent("bridged")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit --config wins; otherwise auto-load
	// ${SYNOS_DATA}/config.yaml when present.
	effectivePath := strings.TrimSpace(*configPath)
	if effectivePath == "" {
		dataDir := strings.TrimSpace(config.ParseString("SYNOS_DATA", ""))
		if dataDir != "" {
			autoPath := filepath.Join(dataDir, "config.yaml")
			if _, err := os.Stat(autoPath); err == nil {
				effectivePath = autoPath
			}
		}
	}

	cfg, err := config.NewLoader(effectivePath).Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectivePath).
			Msg("failed to load configuration")
	}

	xlog.Configure(xlog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
	})

	logger.Info().
		Str("event", "bridged.starting").
		Str("version", version).
		Str("source", string(cfg.Source)).
		Str("broker_url", cfg.Broker.URL).
		Msg("starting event bridge")

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Str("event", "bridged.failed").Msg("bridge terminated with error")
	}
	logger.Info().Str("event", "bridged.stopped").Msg("bridge stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := xlog.WithComponent("bridged")

	bk, err := broker.ConnectJetStream(cfg.Broker)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}

	dead, err := deadletter.OpenBadger(filepath.Join(cfg.DataDir, "deadletter"))
	if err != nil {
		_ = bk.Close()
		return fmt.Errorf("open dead-letter store: %w", err)
	}
	defer func() {
		if cerr := dead.Close(); cerr != nil {
			logger.Error().Err(cerr).Msg("dead-letter store close error")
		}
	}()

	sink, guard, err := buildSink(cfg)
	if err != nil {
		_ = bk.Close()
		return err
	}
	if guard != nil {
		defer func() {
			if cerr := guard.Close(); cerr != nil {
				logger.Error().Err(cerr).Msg("dedupe guard close error")
			}
		}()
	}

	coord, err := bridge.NewCoordinator(cfg, bk, sink, dead)
	if err != nil {
		_ = bk.Close()
		return fmt.Errorf("build coordinator: %w", err)
	}
	// Stop owns closing the broker once Start succeeds.
	if err := coord.Start(ctx); err != nil {
		_ = bk.Close()
		return fmt.Errorf("start bridge: %w", err)
	}

	ctl := control.New(cfg.StatusListen, coord, dead)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctl.Run(gctx, cfg.ShutdownTimeout.Std())
	})
	g.Go(func() error {
		// A fatal loop error ends the process; a signal triggers Stop.
		select {
		case <-coord.Done():
			if err := coord.Err(); err != nil {
				return fmt.Errorf("bridge loop failed: %w", err)
			}
			return nil
		case <-gctx.Done():
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
		defer cancel()
		return coord.Stop(stopCtx)
	})
	return g.Wait()
}

// buildSink assembles the local delivery chain. The default sink records the
// event; deployments embed the bridge as a library and pass their own sink.
// When redis is configured, the sink is wrapped in an idempotency guard so
// redeliveries are applied at most once. The returned guard is nil unless
// redis is configured; the caller owns closing it.
func buildSink(cfg *config.Config) (bridge.Sink, dedupe.Guard, error) {
	logger := xlog.WithComponent("sink")
	var sink bridge.Sink = bridge.SinkFunc(func(_ context.Context, ev bridge.Event) error {
		logger.Info().
			Str("event", "bridge.event_received").
			Str(xlog.FieldEventID, ev.ID).
			Str(xlog.FieldEventType, ev.Type).
			Str(xlog.FieldSource, string(ev.Source)).
			Msg("event received from remote side")
		return nil
	})

	if cfg.DedupeRedisAddr == "" {
		return sink, nil, nil
	}
	guard, err := dedupe.NewRedis(cfg.DedupeRedisAddr, cfg.DedupeTTL.Std())
	if err != nil {
		return nil, nil, fmt.Errorf("connect dedupe redis: %w", err)
	}
	return bridge.NewDedupSink(sink, guard), guard, nil
}
