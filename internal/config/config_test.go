// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnboundedRetention(t *testing.T) {
	cfg := Defaults()
	cfg.Streams[0].MaxMsgs = 0
	err := cfg.Validate()
	require.Error(t, err)

	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Field, "max_msgs")
}

func TestValidateRejectsRootWildcard(t *testing.T) {
	cfg := Defaults()
	cfg.Streams[0].Subjects = []string{">"}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicateMappedSubjects(t *testing.T) {
	cfg := Defaults()
	cfg.Mappings = map[string]string{
		"security.threat_detected": "synos.security.threat",
		"security.scan_finished":   "synos.security.threat",
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synos.security.threat")
}

func TestValidateRejectsZeroFetchFailureCeiling(t *testing.T) {
	cfg := Defaults()
	cfg.Consumer.MaxFetchFailures = 0
	err := cfg.Validate()
	require.Error(t, err)

	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Field, "max_fetch_failures")
}

func TestValidateRejectsUnknownSource(t *testing.T) {
	cfg := Defaults()
	cfg.Source = "local_c"
	require.Error(t, cfg.Validate())
}

func TestLoaderPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
log_level: debug
source: local_b
subject_prefix: synos
broker:
  url: nats://filehost:4222
consumer:
  batch_size: 25
  fetch_wait: 750ms
publisher:
  max_attempts: 3
mappings:
  security.threat_detected: synos.security.threat
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("SYNOS_BROKER_URL", "nats://envhost:4222")
	t.Setenv("SYNOS_CONSUMER_BATCH_SIZE", "50")
	t.Setenv("SYNOS_CONSUMER_MAX_FETCH_FAILURES", "4")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	// env beats file
	assert.Equal(t, "nats://envhost:4222", cfg.Broker.URL)
	assert.Equal(t, 50, cfg.Consumer.BatchSize)
	assert.Equal(t, 4, cfg.Consumer.MaxFetchFailures)
	// file beats defaults
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, SourceLocalB, cfg.Source)
	assert.Equal(t, 750*time.Millisecond, cfg.Consumer.FetchWait.Std())
	assert.Equal(t, 3, cfg.Publisher.MaxAttempts)
	// defaults survive where nothing overrides
	assert.Equal(t, "SYNOS_EVENTS", cfg.Consumer.Stream)
	assert.Equal(t, "synos.security.threat", cfg.Mappings["security.threat_detected"])
}

func TestLoaderMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.Error(t, err)
}

func TestLoaderInvalidFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("subject_prefix: '>'\n"), 0o600))

	_, err := NewLoader(path).Load()
	require.Error(t, err)
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("SYNOS_TEST_DUR", "1500ms")
	assert.Equal(t, 1500*time.Millisecond, ParseDuration("SYNOS_TEST_DUR", time.Second))

	t.Setenv("SYNOS_TEST_DUR", "garbage")
	assert.Equal(t, time.Second, ParseDuration("SYNOS_TEST_DUR", time.Second))
}
