// Package health implements the periodic watchdog that checks the game
// connection for stalled frames, the host for resource pressure, and
// publishes a heartbeat.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/flailbot/flailbot/internal/api"
	"github.com/flailbot/flailbot/internal/config"
	"github.com/flailbot/flailbot/internal/util"
)

// StatusSource reports the connection summary.
type StatusSource interface {
	Status() api.Status
}

// HeartbeatPublisher receives the periodic heartbeat.
type HeartbeatPublisher interface {
	PublishHeartbeat(payload interface{})
}

// Manager runs periodic health checks.
type Manager struct {
	cfg       config.HealthConfig
	status    StatusSource
	diskPath  string
	heartbeat HeartbeatPublisher
	logger    zerolog.Logger

	now   func() time.Time
	usage func(path string) (util.HostUsage, error)

	mu        sync.Mutex
	stale     bool
	diskLevel string
}

// NewManager creates a health check manager. diskPath selects the volume
// whose free space is watched, usually the recorder's.
func NewManager(cfg config.HealthConfig, status StatusSource, diskPath string) *Manager {
	return &Manager{
		cfg:      cfg,
		status:   status,
		diskPath: diskPath,
		logger:   log.With().Str("component", "health").Logger(),
		now:      time.Now,
		usage:    util.GetHostUsage,
	}
}

// SetHeartbeat enables the heartbeat loop.
func (m *Manager) SetHeartbeat(h HeartbeatPublisher) {
	m.heartbeat = h
}

// Start launches all health check goroutines and blocks until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	interval := time.Duration(m.cfg.CheckIntervalSec) * time.Second

	checks := []struct {
		name string
		fn   func(context.Context)
	}{
		{"connection", m.checkConnection},
		{"host_resources", m.checkHostResources},
	}

	for _, check := range checks {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			m.logger.Debug().Str("check", check.name).Msg("running initial health check")
			check.fn(ctx)

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	if m.heartbeat != nil && m.cfg.HeartbeatIntervalSec > 0 {
		go m.heartbeatLoop(ctx, time.Duration(m.cfg.HeartbeatIntervalSec)*time.Second)
	}

	m.logger.Info().Int("checks", len(checks)).Msg("health check manager started")

	<-ctx.Done()
	m.logger.Info().Msg("health check manager stopped")
}

// checkConnection warns once when a connected session stops delivering
// frames, and again when frames resume.
func (m *Manager) checkConnection(ctx context.Context) {
	s := m.status.Status()
	staleAfter := time.Duration(m.cfg.StaleAfterSec) * time.Second

	stale := s.Connected && !s.LastFrameAt.IsZero() && m.now().Sub(s.LastFrameAt) > staleAfter

	m.mu.Lock()
	was := m.stale
	m.stale = stale
	m.mu.Unlock()

	switch {
	case stale && !was:
		m.logger.Warn().
			Time("last_frame_at", s.LastFrameAt).
			Dur("stale_after", staleAfter).
			Msg("no frames received, connection looks stalled")
	case !stale && was:
		m.logger.Info().Msg("frames resumed")
	}
}

// Stale reports whether the last connection check found the session stalled.
func (m *Manager) Stale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stale
}

// checkHostResources monitors disk space and memory and alerts at
// thresholds. Disk alerts are logged when the level changes.
func (m *Manager) checkHostResources(ctx context.Context) {
	usage, err := m.usage(m.diskPath)
	if err != nil {
		m.logger.Warn().Err(err).Msg("host resource check failed")
		return
	}

	m.logger.Debug().
		Float64("cpu_percent", usage.CPUPercent).
		Float64("memory_percent", usage.MemoryPercent).
		Float64("disk_percent", usage.DiskPercent).
		Uint64("disk_free_mb", usage.DiskFreeMB).
		Msg("host resources")

	if usage.MemoryPercent >= 90 {
		m.logger.Warn().Float64("memory_percent", usage.MemoryPercent).Msg("memory usage high")
	}

	level := diskAlertLevel(usage.DiskPercent)

	m.mu.Lock()
	changed := level != m.diskLevel
	m.diskLevel = level
	m.mu.Unlock()

	if changed && level != "" {
		m.logger.Warn().
			Str("level", level).
			Msgf("disk usage at %.1f%% (%d MB free)", usage.DiskPercent, usage.DiskFreeMB)
	}
}

// diskAlertLevel maps disk usage onto the alert thresholds 80, 90, 95 and
// 100 percent. Below 80 there is no alert.
func diskAlertLevel(usedPercent float64) string {
	switch {
	case usedPercent >= 100:
		return "critical"
	case usedPercent >= 95:
		return "error"
	case usedPercent >= 90:
		return "warning"
	case usedPercent >= 80:
		return "info"
	default:
		return ""
	}
}

// heartbeatLoop publishes the connection summary at a fixed interval.
func (m *Manager) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sendHeartbeat()
		}
	}
}

func (m *Manager) sendHeartbeat() {
	s := m.status.Status()
	m.heartbeat.PublishHeartbeat(map[string]interface{}{
		"type":      "heartbeat",
		"connected": s.Connected,
		"self_id":   s.SelfID,
		"entities":  s.Entities,
		"frames":    s.Frames,
		"stale":     m.Stale(),
		"timestamp": m.now().Unix(),
	})
}
