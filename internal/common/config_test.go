package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFiles_Defaults(t *testing.T) {
	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 8686, config.Server.Port)
	assert.Equal(t, "linkedin.com", config.Watch.TargetDomain)
	assert.Equal(t, 3, config.Watch.DefaultScrollCount)
	assert.Equal(t, 60, config.Watch.DefaultRefreshInterval)
	assert.Equal(t, 50, config.Watch.DefaultMaxBatches)
	assert.Equal(t, 5000, config.History.Capacity)
	assert.Equal(t, "extension", config.Agent.Mode)
}

func TestLoadFromFiles_LaterFilesAndEnvWin(t *testing.T) {
	base := writeConfig(t, "base.toml", `
[server]
port = 9000

[watch]
batch_delay = "2s"

[history]
capacity = 100
`)
	override := writeConfig(t, "override.toml", `
[history]
capacity = 200
`)
	t.Setenv("LEADWATCH_SERVER_PORT", "9100")
	t.Setenv("LEADWATCH_WATCH_WATCHDOG_SCHEDULE", "")

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, 200, config.History.Capacity)
	assert.Equal(t, 2*time.Second, ParseDurationOr(config.Watch.BatchDelay, 0))
	assert.Empty(t, config.Watch.WatchdogSchedule)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad duration", func(c *Config) { c.Delivery.Timeout = "soon" }, "delivery.timeout"},
		{"zero capacity", func(c *Config) { c.History.Capacity = 0 }, "history.capacity"},
		{"unknown agent mode", func(c *Config) { c.Agent.Mode = "remote" }, "agent.mode"},
		{"bad schedule", func(c *Config) { c.Watch.WatchdogSchedule = "every minute" }, "watchdog_schedule"},
		{"watchdog disabled", func(c *Config) { c.Watch.WatchdogSchedule = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDurationOr("", 5*time.Second))
	assert.Equal(t, 5*time.Second, ParseDurationOr("nonsense", 5*time.Second))
	assert.Equal(t, 1500*time.Millisecond, ParseDurationOr("1.5s", 0))
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 8686, config.Server.Port)

	ApplyFlagOverrides(config, 7000, "0.0.0.0")
	assert.Equal(t, 7000, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}
