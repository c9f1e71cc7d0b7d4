package observability

import (
	"testing"
	"time"

	"github.com/anoteng/regnskap/internal/config"
	"github.com/anoteng/regnskap/pkg/db"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigMapsTelemetry(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:      " ",
		Environment:  "production",
		OTLPEndpoint: " collector:4317 ",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "warn",
			OtelEnabled:   true,
			OtelProtocol:  "http",
			SamplingRatio: 0.5,
		},
		DB: db.Config{SlowQuery: time.Second},
	})

	assert.Equal(t, "regnskap", cfg.ServiceName)
	assert.False(t, cfg.Debug())
	assert.Equal(t, "collector:4317", cfg.Tracing().ExporterEndpoint)
	assert.Equal(t, 0.5, cfg.Tracing().SamplingRatio)
	assert.True(t, cfg.Metrics().Enabled)
	assert.Equal(t, time.Second, cfg.GormLogger().SlowThreshold)
}

func TestDebugFollowsLevelOrEnvironment(t *testing.T) {
	assert.True(t, Config{LogLevel: "debug", Environment: "production"}.Debug())
	assert.True(t, Config{LogLevel: "info", Environment: "Local"}.Debug())
	assert.False(t, Config{LogLevel: "info", Environment: "staging"}.Debug())
	assert.Equal(t, 200*time.Millisecond, Config{}.GormLogger().SlowThreshold)
}
