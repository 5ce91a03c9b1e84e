// Package config handles configuration loading, validation, and persistence
// for the flailbot client.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5080
	DefaultRegion     = "CH"
	DefaultNick       = "flailbot"
)

// Intent names accepted in client.intents.
const (
	IntentEntities    = "entities"
	IntentEvents      = "events"
	IntentLeaderboard = "leaderboard"
	IntentMinimap     = "minimap"
)

// Protocol version selectors accepted in client.protocol_version.
const (
	ProtocolAuto = "auto"
	ProtocolV1   = "v1"
	ProtocolV2   = "v2"
)

// Config is the root configuration structure for flailbot.
type Config struct {
	mu   sync.RWMutex
	path string

	Client   ClientConfig   `json:"client"`
	API      APIConfig      `json:"api"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Recorder RecorderConfig `json:"recorder"`
	Health   HealthConfig   `json:"health"`
	Tracing  TracingConfig  `json:"tracing"`
	Logging  LoggingConfig  `json:"logging"`
}

// ClientConfig holds the game connection settings.
type ClientConfig struct {
	// Address is a ws:// or wss:// game server URL. Empty asks the master
	// server for one in Region.
	Address   string `json:"address"`
	Region    string `json:"region"`
	Secure    bool   `json:"secure"`
	MasterURL string `json:"master_url"`

	Nick     string   `json:"nick"`
	AutoPlay bool     `json:"auto_play"`
	Intents  []string `json:"intents"`

	ProtocolVersion string `json:"protocol_version"`

	Reconnect      ReconnectConfig `json:"reconnect"`
	RespawnDelayMs int             `json:"respawn_delay_ms"`
	PingIntervalMs int             `json:"ping_interval_ms"`
}

// ReconnectConfig holds reconnect settings.
type ReconnectConfig struct {
	Enabled     bool `json:"enabled"`
	IntervalMs  int  `json:"interval_ms"`
	MaxAttempts int  `json:"max_attempts"`
}

// APIConfig holds the HTTP API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// RecorderConfig holds the SQLite event recorder settings.
type RecorderConfig struct {
	Enabled       bool   `json:"enabled"`
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days"`
	CleanupTime   string `json:"cleanup_time"`
}

// HealthConfig holds the watchdog intervals, in seconds.
type HealthConfig struct {
	Enabled              bool `json:"enabled"`
	CheckIntervalSec     int  `json:"check_interval_sec"`
	StaleAfterSec        int  `json:"stale_after_sec"`
	HeartbeatIntervalSec int  `json:"heartbeat_interval_sec"`
}

// TracingConfig controls the per-frame OpenTelemetry spans. Spans are
// written as JSON to File.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	File        string  `json:"file"`
	SampleRatio float64 `json:"sample_ratio"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			Region:          DefaultRegion,
			Nick:            DefaultNick,
			Intents:         []string{IntentEntities, IntentEvents, IntentLeaderboard},
			ProtocolVersion: ProtocolAuto,
			Reconnect: ReconnectConfig{
				Enabled:     true,
				IntervalMs:  1000,
				MaxAttempts: 100,
			},
			RespawnDelayMs: 100,
		},
		API: APIConfig{
			Enabled:      true,
			Port:         DefaultAPIPort,
			RateLimitRPS: 20,
		},
		MQTT: MQTTConfig{
			Port:        1883,
			TopicPrefix: "flailbot",
		},
		Recorder: RecorderConfig{
			Enabled:       true,
			Path:          filepath.Join("data", "flailbot.db"),
			RetentionDays: 7,
			CleanupTime:   "04:00",
		},
		Health: HealthConfig{
			Enabled:              true,
			CheckIntervalSec:     30,
			StaleAfterSec:        60,
			HeartbeatIntervalSec: 60,
		},
		Tracing: TracingConfig{
			File:        filepath.Join("logs", "traces.json"),
			SampleRatio: 1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so config.json lists every option, including ones added since
	// the file was written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetClient returns a copy of the client configuration.
func (c *Config) GetClient() ClientConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cc := c.Client
	cc.Intents = slices.Clone(c.Client.Intents)
	return cc
}

// SetClient updates the client configuration.
func (c *Config) SetClient(cc ClientConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Client = cc
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath sets the file Save writes to.
func (c *Config) SetPath(path string) {
	c.path = path
}

// HasIntent reports whether the named intent is enabled.
func (cc ClientConfig) HasIntent(name string) bool {
	return slices.Contains(cc.Intents, name)
}

// ReconnectInterval returns the pause between reconnect attempts.
func (cc ClientConfig) ReconnectInterval() time.Duration {
	return time.Duration(cc.Reconnect.IntervalMs) * time.Millisecond
}

// RespawnDelay returns the auto-play pause between death and re-entry.
func (cc ClientConfig) RespawnDelay() time.Duration {
	return time.Duration(cc.RespawnDelayMs) * time.Millisecond
}

// PingInterval returns the keep-alive interval, zero when disabled.
func (cc ClientConfig) PingInterval() time.Duration {
	return time.Duration(cc.PingIntervalMs) * time.Millisecond
}
