// SPDX-License-Identifier: MIT

package config

import (
	"os"

	xlog "github.com/TLimoges33/Syn-OS-sub013/internal/log"
)

// Loader builds a Config with the precedence ENV > file > defaults.
type Loader struct {
	path string
}

// NewLoader creates a loader. An empty path skips the file layer.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load resolves the effective configuration and validates it.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	if l.path != "" {
		if err := loadFile(l.path, &cfg); err != nil {
			return nil, err
		}
		logger := xlog.WithComponent("config")
		logger.Info().
			Str("event", "config.file_loaded").
			Str("path", l.path).
			Msg("loaded configuration file")
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays SYNOS_* environment variables on top of file values.
// Structured fields (streams, mappings) are file-only: flattening them into
// env keys proved unreadable and error-prone, so only scalars are exposed.
func applyEnv(cfg *Config) {
	cfg.LogLevel = ParseString("SYNOS_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("SYNOS_LOG_SERVICE", cfg.LogService)

	if v, ok := os.LookupEnv("SYNOS_SOURCE"); ok && v != "" {
		cfg.Source = Source(v)
	}
	cfg.SubjectPrefix = ParseString("SYNOS_SUBJECT_PREFIX", cfg.SubjectPrefix)

	cfg.Broker.URL = ParseString("SYNOS_BROKER_URL", cfg.Broker.URL)
	cfg.Broker.ClientName = ParseString("SYNOS_BROKER_CLIENT_NAME", cfg.Broker.ClientName)
	cfg.Broker.ConnectTimeout = ParseDuration("SYNOS_BROKER_CONNECT_TIMEOUT", cfg.Broker.ConnectTimeout)
	cfg.Broker.ReconnectWait = ParseDuration("SYNOS_BROKER_RECONNECT_WAIT", cfg.Broker.ReconnectWait)

	cfg.Consumer.Durable = ParseString("SYNOS_CONSUMER_DURABLE", cfg.Consumer.Durable)
	cfg.Consumer.BatchSize = ParseInt("SYNOS_CONSUMER_BATCH_SIZE", cfg.Consumer.BatchSize)
	cfg.Consumer.FetchWait = Duration(ParseDuration("SYNOS_CONSUMER_FETCH_WAIT", cfg.Consumer.FetchWait.Std()))
	cfg.Consumer.MaxSinkFailures = ParseInt("SYNOS_CONSUMER_MAX_SINK_FAILURES", cfg.Consumer.MaxSinkFailures)
	cfg.Consumer.MaxFetchFailures = ParseInt("SYNOS_CONSUMER_MAX_FETCH_FAILURES", cfg.Consumer.MaxFetchFailures)

	cfg.Publisher.MaxAttempts = ParseInt("SYNOS_PUBLISHER_MAX_ATTEMPTS", cfg.Publisher.MaxAttempts)
	cfg.Publisher.BaseBackoff = Duration(ParseDuration("SYNOS_PUBLISHER_BASE_BACKOFF", cfg.Publisher.BaseBackoff.Std()))
	cfg.Publisher.MaxBackoff = Duration(ParseDuration("SYNOS_PUBLISHER_MAX_BACKOFF", cfg.Publisher.MaxBackoff.Std()))
	cfg.Publisher.QueueSize = ParseInt("SYNOS_PUBLISHER_QUEUE_SIZE", cfg.Publisher.QueueSize)

	cfg.DataDir = ParseString("SYNOS_DATA", cfg.DataDir)
	cfg.DedupeRedisAddr = ParseString("SYNOS_DEDUPE_REDIS_ADDR", cfg.DedupeRedisAddr)
	cfg.DedupeTTL = Duration(ParseDuration("SYNOS_DEDUPE_TTL", cfg.DedupeTTL.Std()))

	cfg.StatusListen = ParseString("SYNOS_STATUS_LISTEN", cfg.StatusListen)
	cfg.ShutdownTimeout = Duration(ParseDuration("SYNOS_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout.Std()))
}
