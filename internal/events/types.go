// Package events defines the decoded-event sink, event types and payloads,
// and the EventBus that fans decoded events out to subscribers.
package events

import "github.com/flailbot/flailbot/internal/world"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Transport events
	EventOpen    EventType = "open"
	EventClose   EventType = "close"
	EventMessage EventType = "message"
	EventPong    EventType = "pong"

	// Session events
	EventMapConfig EventType = "map"
	EventEnterGame EventType = "enter_game"

	// Entity events
	EventCreateEntity EventType = "create_entity"
	EventUpdateEntity EventType = "update_entity"
	EventDeleteEntity EventType = "delete_entity"
	EventKing         EventType = "king"

	// Feed events
	EventKill        EventType = "kill"
	EventDeath       EventType = "death"
	EventLeaderboard EventType = "leaderboard"
)

// Sink receives decoded results in decode order. Implementations must not
// call back into the decoder. Entity pointers are owned by the decoder and
// are only valid for the duration of the call.
type Sink interface {
	OnOpen()
	OnClose(reason string)
	OnMessage(frame []byte)
	OnMapConfig(version uint8, width, height float64)
	OnEnterGame(id uint32)
	OnCreateEntity(e *world.Entity)
	OnUpdateEntity(e *world.Entity)
	OnDeleteEntity(e *world.Entity)
	OnKing(id uint16, x, y float64)
	OnKill(id uint16, nick string)
	OnDeath(id uint16, nick string)
	OnLeaderboard(lb Leaderboard)
	OnPong()
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// ClosePayload carries the reason a connection closed.
type ClosePayload struct {
	Reason string `json:"reason"`
}

// MessagePayload carries a raw inbound frame.
type MessagePayload struct {
	Frame []byte `json:"-"`
	Size  int    `json:"size"`
}

// MapConfigPayload contains data from a map config frame.
type MapConfigPayload struct {
	Version uint8   `json:"version"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// EnterGamePayload contains the id the server assigned to this client.
type EnterGamePayload struct {
	ID uint32 `json:"id"`
}

// EntityPayload wraps an entity from a create, update or delete record.
type EntityPayload struct {
	Entity *world.Entity `json:"entity"`
}

// KingPayload contains the king summary from an entity-info frame.
type KingPayload struct {
	ID uint16  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// KillPayload contains a kill-feed entry.
type KillPayload struct {
	ID   uint16 `json:"id"`
	Nick string `json:"nick"`
}

// LeaderboardEntry is one leaderboard row. Rank is only set on the
// viewer's own entry.
type LeaderboardEntry struct {
	ID    uint16 `json:"id"`
	Score uint32 `json:"score"`
	Nick  string `json:"nick,omitempty"`
	Rank  uint16 `json:"rank,omitempty"`
	Me    bool   `json:"me,omitempty"`
}

// Leaderboard is a decoded leaderboard frame. When the viewer's own entry is
// present it is the last element of Entries and is also exposed as Me.
type Leaderboard struct {
	Entries []LeaderboardEntry `json:"entries"`
	Me      *LeaderboardEntry  `json:"me,omitempty"`
}
