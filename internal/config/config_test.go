package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, DefaultConfigFile), cfg.Path())
	assert.FileExists(t, cfg.Path())
	assert.Equal(t, DefaultRegion, cfg.Client.Region)
	assert.True(t, cfg.Client.Reconnect.Enabled)
	assert.Equal(t, time.Second, cfg.Client.ReconnectInterval())
	assert.Equal(t, 100, cfg.Client.Reconnect.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Client.RespawnDelay())
	assert.True(t, Validate(cfg).IsValid())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	partial := `{"client": {"nick": "zed", "intents": ["entities"], "protocol_version": "v2"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(partial), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	cc := cfg.GetClient()
	assert.Equal(t, "zed", cc.Nick)
	assert.Equal(t, []string{"entities"}, cc.Intents)
	assert.True(t, cc.HasIntent(IntentEntities))
	assert.False(t, cc.HasIntent(IntentEvents))
	assert.Equal(t, ProtocolV2, cc.ProtocolVersion)
	assert.Equal(t, DefaultRegion, cc.Region, "unset fields keep their defaults")
	assert.Equal(t, DefaultAPIPort, cfg.API.Port)

	// The re-save fills in the missing sections.
	data, err := os.ReadFile(cfg.Path())
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "recorder")
	assert.Contains(t, raw, "mqtt")
}

func TestLoadRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestGetClientCopiesIntents(t *testing.T) {
	cfg := DefaultConfig()
	cc := cfg.GetClient()
	cc.Intents[0] = "changed"
	assert.Equal(t, IntentEntities, cfg.Client.Intents[0])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"bad address scheme", func(c *Config) { c.Client.Address = "http://x" }, "client.address"},
		{"missing region", func(c *Config) { c.Client.Region = " " }, "client.region"},
		{"unknown intent", func(c *Config) { c.Client.Intents = []string{"chat"} }, "client.intents"},
		{"bad protocol", func(c *Config) { c.Client.ProtocolVersion = "v3" }, "client.protocol_version"},
		{"zero reconnect interval", func(c *Config) { c.Client.Reconnect.IntervalMs = 0 }, "client.reconnect.interval_ms"},
		{"bad api port", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker_url"},
		{"recorder without path", func(c *Config) { c.Recorder.Path = "" }, "recorder.path"},
		{"bad cleanup time", func(c *Config) { c.Recorder.CleanupTime = "25:99" }, "recorder.cleanup_time"},
		{"zero health interval", func(c *Config) { c.Health.CheckIntervalSec = 0 }, "health.check_interval_sec"},
		{"negative rate limit", func(c *Config) { c.API.RateLimitRPS = -1 }, "api.rate_limit_rps"},
		{"tracing without file", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.File = ""
		}, "tracing.file"},
		{"sample ratio above one", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRatio = 1.5
		}, "tracing.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			result := Validate(cfg)
			require.False(t, result.IsValid())
			fields := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Client.Address = "wss://1-2-3-4.brutal.io:9081"
	cfg.Client.AutoPlay = true
	cfg.Client.Intents = []string{IntentEntities}
	cfg.API.Port = 80
	cfg.API.AllowedOrigins = []string{"http://localhost:3000"}

	result := Validate(cfg)
	assert.True(t, result.IsValid())
	assert.Len(t, result.Warnings, 2)
}

func TestRunSetupWizard(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), DefaultConfigFile))

	input := strings.Join([]string{
		"bot9",              // nickname
		"y",                 // auto play
		"",                  // address
		"DE",                // region
		"no",                // secure
		"entities, events ", // intents
		"yes",               // api
		"6000",              // api port
		"no",                // recorder
		"no",                // mqtt
	}, "\n") + "\n"
	var out bytes.Buffer

	require.NoError(t, RunSetupWizard(cfg, strings.NewReader(input), &out))

	assert.Equal(t, "bot9", cfg.Client.Nick)
	assert.True(t, cfg.Client.AutoPlay)
	assert.Equal(t, "DE", cfg.Client.Region)
	assert.Equal(t, []string{"entities", "events"}, cfg.Client.Intents)
	assert.Equal(t, 6000, cfg.API.Port)
	assert.False(t, cfg.Recorder.Enabled)
	assert.FileExists(t, cfg.Path())
	assert.Contains(t, out.String(), "Configuration saved")
}

func TestRunSetupWizardRejectsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), DefaultConfigFile))

	input := "bot\nn\nhttp://nope\nentities\nn\nn\nn\n"
	var out bytes.Buffer

	assert.Error(t, RunSetupWizard(cfg, strings.NewReader(input), &out))
	assert.Contains(t, out.String(), "client.address")
	assert.NoFileExists(t, cfg.Path())
}
