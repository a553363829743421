package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayConfigDefaults(t *testing.T) {
	cfg, err := env.ParseAsWithOptions[GatewayConfig](env.Options{
		Environment: map[string]string{"DATABASE_URL": "postgres://db"},
	})
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, NatsBus, cfg.Bus.Kind)
	assert.Equal(t, 1, cfg.Bus.RabbitMQPrefetch)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.NoError(t, cfg.Bus.Validate())
}

func TestRequiredFields(t *testing.T) {
	_, err := env.ParseAsWithOptions[DetectorConfig](env.Options{
		Environment: map[string]string{"DATABASE_URL": "postgres://db"},
	})
	assert.Error(t, err)
}

func TestDetectorConfigDefaults(t *testing.T) {
	cfg, err := env.ParseAsWithOptions[DetectorConfig](env.Options{
		Environment: map[string]string{"DATABASE_URL": "postgres://db", "DETECTOR_URL": "http://detector:8000"},
	})
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.DetectorTimeout)
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, 2, cfg.Parallelism)
	assert.Equal(t, 1, cfg.Concurrency)
}

func TestBusKindValidation(t *testing.T) {
	assert.NoError(t, BusConfig{Kind: RabbitMQBus}.Validate())
	assert.Error(t, BusConfig{Kind: "kafka"}.Validate())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Format: "json", Level: "warn"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "job_id", "abc")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"job_id":"abc"`)

	_, err = LogConfig{Format: "xml", Level: "info"}.NewLogger(&buf)
	assert.Error(t, err)

	_, err = LogConfig{Format: "text", Level: "loud"}.NewLogger(&buf)
	assert.Error(t, err)

	level, err := parseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}
