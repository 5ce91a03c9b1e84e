package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/flailbot/flailbot/internal/world"
)

// HandlerFunc is a function that handles an event.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus is a publish-subscribe dispatcher. Handlers run synchronously on
// the emitting goroutine in subscription order, so subscribers observe
// events in exactly the order they were decoded.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]handlerEntry
	ctx      context.Context
	source   string
	stopCh   chan struct{}
	stopped  bool
}

type handlerEntry struct {
	name    string
	handler HandlerFunc
}

// NewEventBus creates a new EventBus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]handlerEntry),
		ctx:      context.Background(),
		source:   "protocol",
		stopCh:   make(chan struct{}),
	}
}

// Subscribe registers a handler function for a specific event type.
// The name parameter is used for logging/debugging purposes.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handlerEntry{
		name:    name,
		handler: handler,
	})

	log.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("subscribed to event")
}

// Unsubscribe removes a named handler from a specific event type.
func (eb *EventBus) Unsubscribe(eventType EventType, name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	handlers, exists := eb.handlers[eventType]
	if !exists {
		return
	}

	filtered := make([]handlerEntry, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	eb.handlers[eventType] = filtered

	log.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("unsubscribed from event")
}

// Emit delivers an event to every handler subscribed to its type.
// A failing or panicking handler is logged and does not stop delivery to
// the remaining handlers.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	eb.mu.RLock()
	if eb.stopped {
		eb.mu.RUnlock()
		return
	}
	handlers := eb.handlers[event.Type]
	if len(handlers) == 0 {
		eb.mu.RUnlock()
		return
	}
	// Copy handlers to release lock before executing
	handlersCopy := make([]handlerEntry, len(handlers))
	copy(handlersCopy, handlers)
	eb.mu.RUnlock()

	log.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(handlersCopy)).
		Msg("emitting event")

	for _, h := range handlersCopy {
		eb.invoke(ctx, h, event)
	}
}

func (eb *EventBus) invoke(ctx context.Context, h handlerEntry, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(event.Type)).
				Str("handler", h.name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	if err := h.handler(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", h.name).
			Msg("handler returned error")
	}
}

// Stop signals the EventBus to stop delivering events.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.stopped {
		return
	}
	eb.stopped = true
	close(eb.stopCh)
	log.Info().Msg("event bus stopped")
}

// StopCh returns a channel that is closed when the EventBus is stopped.
func (eb *EventBus) StopCh() <-chan struct{} {
	return eb.stopCh
}

// HandlerCount returns the number of handlers registered for a specific event type.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}

// ---- Sink implementation ----

var _ Sink = (*EventBus)(nil)

func (eb *EventBus) emit(t EventType, payload interface{}) {
	eb.Emit(eb.ctx, Event{Type: t, Source: eb.source, Payload: payload})
}

// OnOpen implements Sink.
func (eb *EventBus) OnOpen() { eb.emit(EventOpen, nil) }

// OnClose implements Sink.
func (eb *EventBus) OnClose(reason string) {
	eb.emit(EventClose, ClosePayload{Reason: reason})
}

// OnMessage implements Sink.
func (eb *EventBus) OnMessage(frame []byte) {
	eb.emit(EventMessage, MessagePayload{Frame: frame, Size: len(frame)})
}

// OnMapConfig implements Sink.
func (eb *EventBus) OnMapConfig(version uint8, width, height float64) {
	eb.emit(EventMapConfig, MapConfigPayload{Version: version, Width: width, Height: height})
}

// OnEnterGame implements Sink.
func (eb *EventBus) OnEnterGame(id uint32) {
	eb.emit(EventEnterGame, EnterGamePayload{ID: id})
}

// OnCreateEntity implements Sink.
func (eb *EventBus) OnCreateEntity(e *world.Entity) {
	eb.emit(EventCreateEntity, EntityPayload{Entity: e})
}

// OnUpdateEntity implements Sink.
func (eb *EventBus) OnUpdateEntity(e *world.Entity) {
	eb.emit(EventUpdateEntity, EntityPayload{Entity: e})
}

// OnDeleteEntity implements Sink.
func (eb *EventBus) OnDeleteEntity(e *world.Entity) {
	eb.emit(EventDeleteEntity, EntityPayload{Entity: e})
}

// OnKing implements Sink.
func (eb *EventBus) OnKing(id uint16, x, y float64) {
	eb.emit(EventKing, KingPayload{ID: id, X: x, Y: y})
}

// OnKill implements Sink.
func (eb *EventBus) OnKill(id uint16, nick string) {
	eb.emit(EventKill, KillPayload{ID: id, Nick: nick})
}

// OnDeath implements Sink.
func (eb *EventBus) OnDeath(id uint16, nick string) {
	eb.emit(EventDeath, KillPayload{ID: id, Nick: nick})
}

// OnLeaderboard implements Sink.
func (eb *EventBus) OnLeaderboard(lb Leaderboard) {
	eb.emit(EventLeaderboard, lb)
}

// OnPong implements Sink.
func (eb *EventBus) OnPong() { eb.emit(EventPong, nil) }
