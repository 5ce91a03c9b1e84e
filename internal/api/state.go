package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flailbot/flailbot/internal/events"
	"github.com/flailbot/flailbot/internal/world"
)

// EntitySnapshot is a copy of an entity taken when it was last decoded.
type EntitySnapshot struct {
	ID    uint16     `json:"id"`
	Kind  world.Kind `json:"kind"`
	Nick  string     `json:"nick,omitempty"`
	X     float64    `json:"x"`
	Y     float64    `json:"y"`
	Angle float64    `json:"angle"`
	Hue   uint16     `json:"hue"`

	Energy   uint32           `json:"energy,omitempty"`
	Radius   float64          `json:"radius,omitempty"`
	Segments int              `json:"segments,omitempty"`
	Flags    *world.ShipFlags `json:"flags,omitempty"`
}

// NewEntitySnapshot copies the fields of e that outlive the sink call.
func NewEntitySnapshot(e *world.Entity) EntitySnapshot {
	snap := EntitySnapshot{
		ID:    e.ID,
		Kind:  e.Kind(),
		Nick:  e.Nick,
		X:     e.X,
		Y:     e.Y,
		Angle: e.Angle,
		Hue:   e.Hue,
	}
	if ship := e.Ship(); ship != nil {
		flags := ship.Flags
		snap.Energy = ship.Flail.Energy
		snap.Radius = ship.Flail.Radius
		snap.Segments = len(ship.Segments)
		snap.Flags = &flags
	}
	return snap
}

// King is the last king reported by the server.
type King struct {
	ID   uint16  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Nick string  `json:"nick,omitempty"`
}

// Status summarises the connection as seen through the event stream.
type Status struct {
	Connected   bool      `json:"connected"`
	SelfID      uint32    `json:"self_id"`
	Entities    int       `json:"entities"`
	Frames      uint64    `json:"frames"`
	Kills       int       `json:"kills"`
	Deaths      int       `json:"deaths"`
	LastFrameAt time.Time `json:"last_frame_at,omitempty"`
	CloseReason string    `json:"close_reason,omitempty"`
}

// WorldState mirrors decoded state for concurrent readers. It is fed only
// through the event bus; the entity table itself stays with the decoder.
type WorldState struct {
	mu sync.RWMutex

	entities    map[uint16]EntitySnapshot
	king        *King
	leaderboard events.Leaderboard
	mapConfig   *events.MapConfigPayload
	status      Status

	now func() time.Time
}

// NewWorldState creates an empty mirror.
func NewWorldState() *WorldState {
	return &WorldState{
		entities: make(map[uint16]EntitySnapshot),
		now:      time.Now,
	}
}

// Attach subscribes the mirror to the bus.
func (w *WorldState) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventOpen, "state.open", w.onOpen)
	bus.Subscribe(events.EventClose, "state.close", w.onClose)
	bus.Subscribe(events.EventMessage, "state.message", w.onMessage)
	bus.Subscribe(events.EventMapConfig, "state.map", w.onMap)
	bus.Subscribe(events.EventEnterGame, "state.enterGame", w.onEnterGame)
	bus.Subscribe(events.EventCreateEntity, "state.create", w.onEntity)
	bus.Subscribe(events.EventUpdateEntity, "state.update", w.onEntity)
	bus.Subscribe(events.EventDeleteEntity, "state.delete", w.onDelete)
	bus.Subscribe(events.EventKing, "state.king", w.onKing)
	bus.Subscribe(events.EventKill, "state.kill", w.onKill)
	bus.Subscribe(events.EventDeath, "state.death", w.onDeath)
	bus.Subscribe(events.EventLeaderboard, "state.leaderboard", w.onLeaderboard)
}

// The decoder starts every connection with an empty table, so the mirror
// does the same.
func (w *WorldState) onOpen(ctx context.Context, event events.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entities = make(map[uint16]EntitySnapshot)
	w.king = nil
	w.status.Connected = true
	w.status.SelfID = 0
	w.status.CloseReason = ""
	return nil
}

func (w *WorldState) onClose(ctx context.Context, event events.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.Connected = false
	if p, ok := event.Payload.(events.ClosePayload); ok {
		w.status.CloseReason = p.Reason
	}
	return nil
}

func (w *WorldState) onMessage(ctx context.Context, event events.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.Frames++
	w.status.LastFrameAt = w.now()
	return nil
}

func (w *WorldState) onMap(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.MapConfigPayload)
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mapConfig = &p
	return nil
}

func (w *WorldState) onEnterGame(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.EnterGamePayload)
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.SelfID = p.ID
	return nil
}

func (w *WorldState) onEntity(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.EntityPayload)
	if !ok || p.Entity == nil {
		return nil
	}
	snap := NewEntitySnapshot(p.Entity)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.entities[snap.ID] = snap
	return nil
}

func (w *WorldState) onDelete(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.EntityPayload)
	if !ok || p.Entity == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entities, p.Entity.ID)
	return nil
}

func (w *WorldState) onKing(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.KingPayload)
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.king = &King{ID: p.ID, X: p.X, Y: p.Y}
	return nil
}

func (w *WorldState) onKill(ctx context.Context, event events.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.Kills++
	return nil
}

func (w *WorldState) onDeath(ctx context.Context, event events.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.Deaths++
	return nil
}

func (w *WorldState) onLeaderboard(ctx context.Context, event events.Event) error {
	lb, ok := event.Payload.(events.Leaderboard)
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.leaderboard = copyLeaderboard(lb)
	return nil
}

func copyLeaderboard(lb events.Leaderboard) events.Leaderboard {
	out := events.Leaderboard{Entries: make([]events.LeaderboardEntry, len(lb.Entries))}
	copy(out.Entries, lb.Entries)
	if lb.Me != nil && len(out.Entries) > 0 {
		out.Me = &out.Entries[len(out.Entries)-1]
	}
	return out
}

// Entities returns the live entities ordered by id, optionally filtered by
// kind name.
func (w *WorldState) Entities(kind string) []EntitySnapshot {
	w.mu.RLock()
	out := make([]EntitySnapshot, 0, len(w.entities))
	for _, e := range w.entities {
		if kind == "" || e.Kind.String() == kind {
			out = append(out, e)
		}
	}
	w.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Entity returns a single live entity.
func (w *WorldState) Entity(id uint16) (EntitySnapshot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entities[id]
	return e, ok
}

// King returns the last reported king with its nickname when the king is
// a visible entity.
func (w *WorldState) King() (King, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.king == nil {
		return King{}, false
	}
	k := *w.king
	if e, ok := w.entities[k.ID]; ok {
		k.Nick = e.Nick
	}
	return k, true
}

// Leaderboard returns a copy of the last leaderboard.
func (w *WorldState) Leaderboard() events.Leaderboard {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return copyLeaderboard(w.leaderboard)
}

// MapConfig returns the last map config.
func (w *WorldState) MapConfig() (events.MapConfigPayload, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.mapConfig == nil {
		return events.MapConfigPayload{}, false
	}
	return *w.mapConfig, true
}

// Status returns the connection summary.
func (w *WorldState) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := w.status
	s.Entities = len(w.entities)
	return s
}
