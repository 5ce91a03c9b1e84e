package telemetry

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flailbot/flailbot/internal/events"
	"github.com/flailbot/flailbot/internal/protocol"
	"github.com/flailbot/flailbot/internal/world"
)

const namespace = "flailbot"

// Metrics exports decode and session statistics to Prometheus. It
// implements protocol.Observer.
type Metrics struct {
	framesTotal    *prometheus.CounterVec
	frameErrors    *prometheus.CounterVec
	recordsSkipped *prometheus.CounterVec
	entities       prometheus.Gauge
	sessionEvents  *prometheus.CounterVec
}

var _ protocol.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors on reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of frames decoded, by opcode",
		}, []string{"opcode"}),

		frameErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Total number of frames aborted as truncated, by opcode",
		}, []string{"opcode"}),

		recordsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Total number of records skipped, by reason",
		}, []string{"reason"}),

		entities: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Number of live entities in the table",
		}),

		sessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Total number of connection and kill feed events",
		}, []string{"event"}),
	}
}

// FrameDecoded implements protocol.Observer.
func (m *Metrics) FrameDecoded(op byte) {
	m.framesTotal.WithLabelValues(protocol.OpcodeName(op)).Inc()
}

// FrameFailed implements protocol.Observer.
func (m *Metrics) FrameFailed(op byte) {
	m.frameErrors.WithLabelValues(protocol.OpcodeName(op)).Inc()
}

// RecordSkipped implements protocol.Observer.
func (m *Metrics) RecordSkipped(err error) {
	m.recordsSkipped.WithLabelValues(SkipReason(err)).Inc()
}

// TableSize implements protocol.Observer.
func (m *Metrics) TableSize(n int) {
	m.entities.Set(float64(n))
}

// Attach counts connection and kill feed events from the bus.
func (m *Metrics) Attach(bus *events.EventBus) {
	for _, et := range []events.EventType{events.EventOpen, events.EventClose, events.EventEnterGame, events.EventKill, events.EventDeath} {
		bus.Subscribe(et, "metrics."+string(et), func(ctx context.Context, e events.Event) error {
			m.sessionEvents.WithLabelValues(string(et)).Inc()
			return nil
		})
	}
}

// SkipReason maps a recoverable decode error to a metric label.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, world.ErrUnknownEntityType):
		return "unknown_entity_type"
	case errors.Is(err, protocol.ErrDanglingReference):
		return "dangling_reference"
	case errors.Is(err, protocol.ErrMalformedRecord):
		return "malformed_record"
	case errors.Is(err, protocol.ErrUnknownEvent):
		return "unknown_event"
	default:
		return "other"
	}
}
