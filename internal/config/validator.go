package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateClient(&cfg.Client, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)
	validateRecorder(&cfg.Recorder, result)
	validateHealth(&cfg.Health, result)
	validateTracing(&cfg.Tracing, result)

	return result
}

var knownIntents = map[string]bool{
	IntentEntities:    true,
	IntentEvents:      true,
	IntentLeaderboard: true,
	IntentMinimap:     true,
}

func validateClient(c *ClientConfig, result *ValidationResult) {
	if c.Address != "" {
		u, err := url.Parse(c.Address)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			result.AddError("client.address", fmt.Sprintf("must be a ws:// or wss:// URL, got %q", c.Address))
		}
	} else if strings.TrimSpace(c.Region) == "" {
		result.AddError("client.region", "region is required when no address is set")
	}

	if c.MasterURL != "" {
		if u, err := url.Parse(c.MasterURL); err != nil || u.Host == "" {
			result.AddError("client.master_url", fmt.Sprintf("invalid URL %q", c.MasterURL))
		}
	}

	if c.AutoPlay && strings.TrimSpace(c.Nick) == "" {
		result.AddWarning("client.nick", "auto play will enter with an empty nickname")
	}

	for _, intent := range c.Intents {
		if !knownIntents[intent] {
			result.AddError("client.intents", fmt.Sprintf("unknown intent %q", intent))
		}
	}
	if c.AutoPlay && !c.HasIntent(IntentEvents) {
		result.AddWarning("client.intents", "auto play enables event processing regardless of intents")
	}

	switch c.ProtocolVersion {
	case "", ProtocolAuto, ProtocolV1, ProtocolV2:
	default:
		result.AddError("client.protocol_version",
			fmt.Sprintf("must be %q, %q or %q, got %q", ProtocolAuto, ProtocolV1, ProtocolV2, c.ProtocolVersion))
	}

	if c.Reconnect.Enabled {
		if c.Reconnect.IntervalMs < 1 {
			result.AddError("client.reconnect.interval_ms", "reconnect interval must be positive")
		} else if c.Reconnect.IntervalMs < 100 {
			result.AddWarning("client.reconnect.interval_ms",
				"reconnect interval less than 100ms may hammer the server")
		}
		if c.Reconnect.MaxAttempts < 0 {
			result.AddError("client.reconnect.max_attempts", "max attempts cannot be negative")
		}
	}

	if c.RespawnDelayMs < 0 {
		result.AddError("client.respawn_delay_ms", "respawn delay cannot be negative")
	}
	if c.PingIntervalMs < 0 {
		result.AddError("client.ping_interval_ms", "ping interval cannot be negative")
	}
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	validatePort(a.Port, "api.port", result)
	if a.RateLimitRPS < 0 {
		result.AddError("api.rate_limit_rps", "rate limit cannot be negative")
	}
	if len(a.AllowedOrigins) == 0 {
		result.AddWarning("api.allowed_origins", "no allowed origins set, CORS will accept any origin")
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if (m.CertFile == "") != (m.KeyFile == "") {
		result.AddError("mqtt.cert_file", "cert_file and key_file must be set together")
	}
}

func validateRecorder(r *RecorderConfig, result *ValidationResult) {
	if !r.Enabled {
		return
	}
	if strings.TrimSpace(r.Path) == "" {
		result.AddError("recorder.path", "database path is required when the recorder is enabled")
	}
	if r.RetentionDays < 1 {
		result.AddError("recorder.retention_days", "retention days must be at least 1")
	}
	if _, err := time.Parse("15:04", r.CleanupTime); err != nil {
		result.AddError("recorder.cleanup_time", fmt.Sprintf("expected HH:MM, got %q", r.CleanupTime))
	}
}

func validateHealth(h *HealthConfig, result *ValidationResult) {
	if !h.Enabled {
		return
	}
	if h.CheckIntervalSec < 1 {
		result.AddError("health.check_interval_sec", "check interval must be at least 1 second")
	}
	if h.StaleAfterSec < 1 {
		result.AddError("health.stale_after_sec", "stale threshold must be at least 1 second")
	}
	if h.HeartbeatIntervalSec < 0 {
		result.AddError("health.heartbeat_interval_sec", "heartbeat interval cannot be negative")
	}
}

func validateTracing(t *TracingConfig, result *ValidationResult) {
	if !t.Enabled {
		return
	}
	if t.File == "" {
		result.AddError("tracing.file", "span output file is required when tracing is enabled")
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		result.AddError("tracing.sample_ratio", fmt.Sprintf("sample ratio must be between 0 and 1, got %g", t.SampleRatio))
	} else if t.SampleRatio == 0 {
		result.AddWarning("tracing.sample_ratio", "sample ratio is 0, no frame spans will be recorded")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
