package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	for _, key := range []string{"PORT", "LOG_LEVEL", "CONTENT_API_URL", "CONTENT_API_TOKEN", "REDIS_ADDR", "REDIS_DB", "POSTGRES_URL", "KAFKA_BROKERS"} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadReadsYAMLAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
content:
  url: https://cms.example.org/api
redis:
  addr: localhost:6379
  ttl: 5m
kafka:
  brokers: [k1:9092]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "https://cms.example.org/api", cfg.Content.URL)
	assert.Equal(t, []string{"k1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "quiz.result_submitted", cfg.Kafka.Topic)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 10.0, cfg.WebSocket.MessagesPerSecond)
	assert.Equal(t, 5*time.Minute, TTLDuration(cfg.Redis.TTL, time.Minute))
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")
	t.Setenv("PORT", "7070")
	t.Setenv("CONTENT_API_TOKEN", "svc")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("POSTGRES_URL", "postgres://quiz@localhost/quiz")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "svc", cfg.Content.Token)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "postgres://quiz@localhost/quiz", cfg.Postgres.URL)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(filepath.Join(filepath.Dir(path), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, "log:\n  level: loud\n")
	_, err := Load(path)
	assert.Error(t, err)

	path = writeConfig(t, "server:\n  port: http\n")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestTTLDurationFallsBack(t *testing.T) {
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
	assert.Equal(t, 90*time.Second, TTLDuration("90s", time.Minute))
}

func TestLoadRejectsNonPositiveTickInterval(t *testing.T) {
	for _, raw := range []string{"0s", "-1s", "never"} {
		path := writeConfig(t, "quiz:\n  tick_interval: \""+raw+"\"\n")
		_, err := Load(path)
		assert.Error(t, err, raw)
	}

	path := writeConfig(t, "quiz:\n  tick_interval: 500ms\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, TTLDuration(cfg.Quiz.TickInterval, time.Second))
}
