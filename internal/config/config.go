// SPDX-License-Identifier: MIT

// Package config loads and validates the bridge configuration with the
// precedence ENV > file > defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies which side of the bridge this process is.
type Source string

const (
	SourceLocalA Source = "local_a"
	SourceLocalB Source = "local_b"
)

// ParseSource validates a source-system string.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceLocalA:
		return SourceLocalA, nil
	case SourceLocalB:
		return SourceLocalB, nil
	default:
		return "", &ConfigError{Field: "source", Reason: fmt.Sprintf("unknown source system %q", s)}
	}
}

// Broker holds connection settings for the message broker.
type Broker struct {
	URL            string        `yaml:"url"`
	ClientName     string        `yaml:"client_name"`
	ConnectTimeout time.Duration `yaml:"-"`
	ReconnectWait  time.Duration `yaml:"-"`
	MaxReconnects  int           `yaml:"max_reconnects"`
}

// Stream declares a durable stream reconciled at startup. Retention is always
// bounded; an unlimited stream is a validation error, not a default.
type Stream struct {
	Name     string   `yaml:"name"`
	Subjects []string `yaml:"subjects"`
	MaxMsgs  int64    `yaml:"max_msgs"`
	MaxAge   Duration `yaml:"max_age"`
	Replicas int      `yaml:"replicas"`
}

// Consumer configures the durable pull consumer side of the bridge.
type Consumer struct {
	Stream          string   `yaml:"stream"`
	Durable         string   `yaml:"durable"`
	FilterSubject   string   `yaml:"filter_subject"`
	BatchSize       int      `yaml:"batch_size"`
	FetchWait       Duration `yaml:"fetch_wait"`
	AckWait         Duration `yaml:"ack_wait"`
	MaxSinkFailures int      `yaml:"max_sink_failures"`

	// MaxFetchFailures is the ceiling on consecutive transient fetch
	// failures before the consumer loop gives up and stops the bridge.
	MaxFetchFailures int `yaml:"max_fetch_failures"`
}

// Publisher configures the publish/drain side of the bridge.
type Publisher struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseBackoff Duration `yaml:"base_backoff"`
	MaxBackoff  Duration `yaml:"max_backoff"`
	QueueSize   int      `yaml:"queue_size"`
}

// Config is the full daemon configuration.
type Config struct {
	LogLevel   string `yaml:"log_level"`
	LogService string `yaml:"log_service"`

	Source        Source            `yaml:"source"`
	SubjectPrefix string            `yaml:"subject_prefix"`
	Mappings      map[string]string `yaml:"mappings"`

	Broker    Broker    `yaml:"broker"`
	Streams   []Stream  `yaml:"streams"`
	Consumer  Consumer  `yaml:"consumer"`
	Publisher Publisher `yaml:"publisher"`

	// DataDir is the root for local durable state (dead-letter store).
	DataDir string `yaml:"data_dir"`

	// DedupeRedisAddr enables the redis idempotency guard when non-empty.
	DedupeRedisAddr string   `yaml:"dedupe_redis_addr"`
	DedupeTTL       Duration `yaml:"dedupe_ttl"`

	StatusListen    string   `yaml:"status_listen"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Defaults returns the built-in configuration before file and env overrides.
func Defaults() Config {
	return Config{
		LogLevel:      "info",
		LogService:    "synos-bridge",
		Source:        SourceLocalA,
		SubjectPrefix: "synos",
		Mappings:      map[string]string{},
		Broker: Broker{
			URL:            "nats://127.0.0.1:4222",
			ClientName:     "synos-bridge",
			ConnectTimeout: 5 * time.Second,
			ReconnectWait:  2 * time.Second,
			MaxReconnects:  -1,
		},
		Streams: []Stream{{
			Name:     "SYNOS_EVENTS",
			Subjects: []string{"synos.>"},
			MaxMsgs:  1_000_000,
			MaxAge:   Duration(24 * time.Hour),
			Replicas: 1,
		}},
		Consumer: Consumer{
			Stream:           "SYNOS_EVENTS",
			Durable:          "synos-bridge",
			FilterSubject:    "synos.>",
			BatchSize:        10,
			FetchWait:        Duration(2 * time.Second),
			AckWait:          Duration(30 * time.Second),
			MaxSinkFailures:  5,
			MaxFetchFailures: 10,
		},
		Publisher: Publisher{
			MaxAttempts: 5,
			BaseBackoff: Duration(200 * time.Millisecond),
			MaxBackoff:  Duration(30 * time.Second),
			QueueSize:   256,
		},
		DataDir:         "/var/lib/synos-bridge",
		DedupeTTL:       Duration(5 * time.Minute),
		StatusListen:    ":8085",
		ShutdownTimeout: Duration(15 * time.Second),
	}
}

// Validate fails fast on configurations the bridge must never run with.
func (c *Config) Validate() error {
	if _, err := ParseSource(string(c.Source)); err != nil {
		return err
	}
	if strings.TrimSpace(c.SubjectPrefix) == "" {
		return &ConfigError{Field: "subject_prefix", Reason: "must not be empty"}
	}
	if strings.ContainsAny(c.SubjectPrefix, "*> ") {
		return &ConfigError{Field: "subject_prefix", Reason: "must be a literal subject token, not a wildcard"}
	}
	if len(c.Streams) == 0 {
		return &ConfigError{Field: "streams", Reason: "at least one stream is required"}
	}
	for i, s := range c.Streams {
		if strings.TrimSpace(s.Name) == "" {
			return &ConfigError{Field: fmt.Sprintf("streams[%d].name", i), Reason: "must not be empty"}
		}
		if len(s.Subjects) == 0 {
			return &ConfigError{Field: fmt.Sprintf("streams[%d].subjects", i), Reason: "must not be empty"}
		}
		for _, subj := range s.Subjects {
			if subj == ">" || subj == "*" {
				return &ConfigError{Field: fmt.Sprintf("streams[%d].subjects", i), Reason: "fully-open root wildcard is not allowed"}
			}
		}
		// Bounded retention is an operational contract, not a tuning knob.
		if s.MaxMsgs <= 0 {
			return &ConfigError{Field: fmt.Sprintf("streams[%d].max_msgs", i), Reason: "retention must be bounded (> 0)"}
		}
		if s.MaxAge <= 0 {
			return &ConfigError{Field: fmt.Sprintf("streams[%d].max_age", i), Reason: "retention must be bounded (> 0)"}
		}
	}
	if c.Consumer.Stream == "" || c.Consumer.Durable == "" || c.Consumer.FilterSubject == "" {
		return &ConfigError{Field: "consumer", Reason: "stream, durable and filter_subject are required"}
	}
	if c.Consumer.BatchSize < 1 {
		return &ConfigError{Field: "consumer.batch_size", Reason: "must be >= 1"}
	}
	if c.Consumer.FetchWait <= 0 {
		return &ConfigError{Field: "consumer.fetch_wait", Reason: "must be > 0"}
	}
	if c.Consumer.MaxSinkFailures < 1 {
		return &ConfigError{Field: "consumer.max_sink_failures", Reason: "must be >= 1"}
	}
	if c.Consumer.MaxFetchFailures < 1 {
		return &ConfigError{Field: "consumer.max_fetch_failures", Reason: "must be >= 1"}
	}
	if c.Publisher.MaxAttempts < 1 {
		return &ConfigError{Field: "publisher.max_attempts", Reason: "must be >= 1"}
	}
	if c.Publisher.QueueSize < 1 {
		return &ConfigError{Field: "publisher.queue_size", Reason: "must be >= 1"}
	}
	seen := make(map[string]string, len(c.Mappings))
	for eventType, subject := range c.Mappings {
		if strings.TrimSpace(eventType) == "" || strings.TrimSpace(subject) == "" {
			return &ConfigError{Field: "mappings", Reason: "empty event type or subject"}
		}
		if prev, dup := seen[subject]; dup {
			return &ConfigError{
				Field:  "mappings",
				Reason: fmt.Sprintf("subject %q mapped from both %q and %q", subject, prev, eventType),
			}
		}
		seen[subject] = eventType
	}
	return nil
}
