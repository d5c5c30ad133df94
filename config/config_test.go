package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate(), "Defaults must validate")

	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "vmeflow.readout", cfg.Feed.Subject)
	assert.Equal(t, 4096, cfg.Feed.BufferCapacity)
	assert.Equal(t, Duration(time.Second), cfg.Worker.TimetickInterval)
	assert.Equal(t, ":8080", cfg.Service.ListenAddr)
	assert.Equal(t, "runs", cfg.Run.OutputDir)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestDurationUnmarshalForms(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		want    Duration
		wantErr bool
	}{
		{"string form", `"250ms"`, Duration(250 * time.Millisecond), false},
		{"nanosecond number", `1000000000`, Duration(time.Second), false},
		{"null keeps prior value", `null`, Duration(7), false},
		{"bad string", `"fast"`, 0, true},
		{"bool rejected", `true`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Duration(7)
			err := d.UnmarshalJSON([]byte(tt.json))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestDurationMarshalsAsString(t *testing.T) {
	out, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))
}

// writeConfigFile writes JSON into a temp file inside the working directory,
// since the loader rejects paths outside it.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	dir, err := os.MkdirTemp(".", "cfgtest")
	require.NoError(t, err, "Failed to create temp dir")
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600), "Failed to write config file")
	return path
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"nats": {"urls": ["nats://readout-host:4222"], "reconnect_wait": "5s"},
		"feed": {"subject": "daq.readout.events"},
		"worker": {"timetick_interval": "250ms"}
	}`)

	loader := NewLoader()
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err, "Failed to load config file")

	// Overridden values
	assert.Equal(t, []string{"nats://readout-host:4222"}, cfg.NATS.URLs)
	assert.Equal(t, Duration(5*time.Second), cfg.NATS.ReconnectWait)
	assert.Equal(t, "daq.readout.events", cfg.Feed.Subject)
	assert.Equal(t, Duration(250*time.Millisecond), cfg.Worker.TimetickInterval)

	// Defaults preserved where the file is silent
	assert.Equal(t, 4096, cfg.Feed.BufferCapacity)
	assert.Equal(t, ":8080", cfg.Service.ListenAddr)
	assert.Equal(t, Duration(time.Second), cfg.Service.BroadcastInterval)
}

func TestLoadLayersLaterOverridesEarlier(t *testing.T) {
	base := writeConfigFile(t, `{"service": {"listen_addr": ":9000"}, "logging": {"level": "debug"}}`)
	override := writeConfigFile(t, `{"service": {"listen_addr": ":9001"}}`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	cfg, err := loader.Load()
	require.NoError(t, err, "Failed to load layered config")

	assert.Equal(t, ":9001", cfg.Service.ListenAddr, "Later layer should win")
	assert.Equal(t, "debug", cfg.Logging.Level, "Earlier layer should survive where later is silent")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VMEFLOW_NATS_URLS", "nats://a:4222,nats://b:4222")
	t.Setenv("VMEFLOW_FEED_SUBJECT", "test.readout")
	t.Setenv("VMEFLOW_LOG_LEVEL", "warn")

	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "test.readout", cfg.Feed.Subject)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing NATS URLs",
			mutate:  func(c *Config) { c.NATS.URLs = nil },
			wantErr: "nats.urls",
		},
		{
			name:    "empty feed subject",
			mutate:  func(c *Config) { c.Feed.Subject = "" },
			wantErr: "feed.subject",
		},
		{
			name:    "wildcard feed subject",
			mutate:  func(c *Config) { c.Feed.Subject = "vmeflow.>" },
			wantErr: "feed.subject",
		},
		{
			name:    "zero buffer capacity",
			mutate:  func(c *Config) { c.Feed.BufferCapacity = 0 },
			wantErr: "buffer_capacity",
		},
		{
			name:    "negative timetick interval",
			mutate:  func(c *Config) { c.Worker.TimetickInterval = Duration(-time.Second) },
			wantErr: "timetick_interval",
		},
		{
			name:    "missing listen addr",
			mutate:  func(c *Config) { c.Service.ListenAddr = "" },
			wantErr: "listen_addr",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err, "Expected validation to fail")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp(".", "cfgtest")
	require.NoError(t, err, "Failed to create temp dir")
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "saved.json")

	cfg := DefaultConfig()
	cfg.Feed.Subject = "roundtrip.readout"
	cfg.Worker.TimetickInterval = Duration(3 * time.Second)
	require.NoError(t, cfg.SaveToFile(path), "Failed to save config")

	loader := NewLoader()
	reloaded, err := loader.LoadFile(path)
	require.NoError(t, err, "Failed to reload config")

	assert.Equal(t, "roundtrip.readout", reloaded.Feed.Subject)
	assert.Equal(t, Duration(3*time.Second), reloaded.Worker.TimetickInterval)
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()

	clone.Feed.Subject = "changed"
	clone.NATS.URLs[0] = "nats://changed:4222"

	assert.Equal(t, "vmeflow.readout", cfg.Feed.Subject, "Clone mutation should not reach original")
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URLs[0], "Clone should deep-copy slices")
}

func TestLoaderRejectsTraversalAndNonJSON(t *testing.T) {
	loader := NewLoader()

	_, err := loader.LoadFile("../outside.json")
	assert.Error(t, err, "Path traversal should be rejected")

	_, err = loader.LoadFile("config.yaml")
	assert.Error(t, err, "Non-JSON config should be rejected")
}

func TestLoaderRejectsDeeplyNestedJSON(t *testing.T) {
	deep := ""
	for i := 0; i < 150; i++ {
		deep += `{"a":`
	}
	deep += "1"
	for i := 0; i < 150; i++ {
		deep += "}"
	}
	path := writeConfigFile(t, deep)

	loader := NewLoader()
	_, err := loader.LoadFile(path)
	require.Error(t, err, "Expected deep nesting to be rejected")
	assert.Contains(t, err.Error(), "nesting too deep")
}
