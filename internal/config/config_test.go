package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lumina/internal/classify"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "./lumina.sqlite", cfg.Database.Path)
	require.Equal(t, "default", cfg.Store.UserID)
	require.Equal(t, "memory", cfg.Cache.Backend)
	require.Equal(t, "disabled", cfg.Enforcement.Mode)
	require.Equal(t, 10, cfg.Enforcement.BrightnessTolerance)
	require.Equal(t, 8080, cfg.API.Port)
	require.Equal(t, 2*time.Second, cfg.Sync.Debounce.Duration())
	require.Equal(t, 5*time.Second, cfg.ShutdownTimeout.Duration())
	require.Equal(t, classify.DefaultConfig(), cfg.Classifier)
	require.False(t, cfg.Geo.HasCoordinates())
}

func TestParse_Sections(t *testing.T) {
	t.Setenv("LUMINA_BROKER", "tcp://broker:1883")

	cfg, err := Parse([]byte(`
log:
  level: debug
  json: true
geo:
  lat: 40.7128
  lon: -74.006
  timezone: America/New_York
device:
  transport: mqtt
  mqtt:
    broker: ${LUMINA_BROKER}
    device_id: porch
    response_timeout: 3s
cache:
  backend: redis
  redis:
    addr: ${REDIS_ADDR:localhost:6379}
sync:
  cron: "*/15 * * * *"
  on_change: true
enforcement:
  mode: strict
  strict:
    grace_period: 10m
classifier:
  complex_override: 12
`))
	require.NoError(t, err)

	require.True(t, cfg.Log.JSON)
	require.True(t, cfg.Geo.HasCoordinates())
	require.Equal(t, "tcp://broker:1883", cfg.Device.MQTT.Broker)
	require.Equal(t, "lumina", cfg.Device.MQTT.ClientID)
	require.Equal(t, 3*time.Second, cfg.Device.MQTT.ResponseTimeout.Duration())
	require.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)
	require.Equal(t, "*/15 * * * *", cfg.Sync.Cron)
	require.True(t, cfg.Sync.OnChange)
	require.Equal(t, 10*time.Minute, cfg.Enforcement.Strict.GracePeriod.Duration())
	require.Zero(t, cfg.Enforcement.Strict.PollInterval)

	// Only the named classifier field changes.
	def := classify.DefaultConfig()
	require.Equal(t, 12.0, cfg.Classifier.ComplexOverride)
	require.Equal(t, def.ComplexMargin, cfg.Classifier.ComplexMargin)
	require.Equal(t, def.SimpleSignals, cfg.Classifier.SimpleSignals)
}

func TestParse_BadDuration(t *testing.T) {
	_, err := Parse([]byte("shutdown_timeout: soon"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: /tmp/x.db\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/x.db", cfg.Database.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LUMINA_SET", "value")

	tests := []struct {
		in, want string
	}{
		{"${LUMINA_SET}", "value"},
		{"${LUMINA_UNSET_VAR}", ""},
		{"${LUMINA_UNSET_VAR:fallback}", "fallback"},
		{"${LUMINA_SET:fallback}", "value"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, expandEnvVars(tt.in))
		})
	}
}
