package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/flailbot/flailbot/internal/events"
)

// EventRow is one line of an EventLog.
type EventRow struct {
	Seq    int
	Type   events.EventType
	Detail string
}

// EventLog records a one-line summary of every event it sees.
type EventLog struct {
	mu   sync.Mutex
	rows []EventRow
}

var loggedEvents = []events.EventType{
	events.EventOpen,
	events.EventClose,
	events.EventPong,
	events.EventMapConfig,
	events.EventEnterGame,
	events.EventCreateEntity,
	events.EventUpdateEntity,
	events.EventDeleteEntity,
	events.EventKing,
	events.EventKill,
	events.EventDeath,
	events.EventLeaderboard,
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Attach subscribes the log to every decoded event type.
func (l *EventLog) Attach(bus *events.EventBus) {
	for _, et := range loggedEvents {
		bus.Subscribe(et, "cli.eventlog", l.record)
	}
}

// Rows returns a copy of the recorded rows.
func (l *EventLog) Rows() []EventRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventRow, len(l.rows))
	copy(out, l.rows)
	return out
}

func (l *EventLog) record(ctx context.Context, event events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, EventRow{
		Seq:    len(l.rows) + 1,
		Type:   event.Type,
		Detail: describe(event),
	})
	return nil
}

func describe(event events.Event) string {
	switch p := event.Payload.(type) {
	case events.ClosePayload:
		return p.Reason
	case events.MapConfigPayload:
		return fmt.Sprintf("v%d %.0fx%.0f", p.Version, p.Width, p.Height)
	case events.EnterGamePayload:
		return fmt.Sprintf("id=%d", p.ID)
	case events.EntityPayload:
		if p.Entity == nil {
			return ""
		}
		e := p.Entity
		if e.Nick != "" {
			return fmt.Sprintf("%s %d %q (%.1f, %.1f)", e.Kind(), e.ID, e.Nick, e.X, e.Y)
		}
		return fmt.Sprintf("%s %d (%.1f, %.1f)", e.Kind(), e.ID, e.X, e.Y)
	case events.KingPayload:
		return fmt.Sprintf("id=%d (%.1f, %.1f)", p.ID, p.X, p.Y)
	case events.KillPayload:
		return fmt.Sprintf("id=%d %q", p.ID, p.Nick)
	case events.Leaderboard:
		if p.Me != nil {
			return fmt.Sprintf("%d rows, me rank %d", len(p.Entries), p.Me.Rank)
		}
		return fmt.Sprintf("%d rows", len(p.Entries))
	}
	return ""
}
