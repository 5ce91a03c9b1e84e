package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flailbot/flailbot/internal/world"
)

func TestEmitDeliversInSubscriptionOrder(t *testing.T) {
	eb := NewEventBus()
	var order []string

	eb.Subscribe(EventKill, "first", func(ctx context.Context, e Event) error {
		order = append(order, "first")
		return nil
	})
	eb.Subscribe(EventKill, "second", func(ctx context.Context, e Event) error {
		order = append(order, "second")
		return errors.New("ignored")
	})
	eb.Subscribe(EventKill, "third", func(ctx context.Context, e Event) error {
		order = append(order, "third")
		return nil
	})

	eb.OnKill(5, "victim")
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestEmitRecoversFromPanics(t *testing.T) {
	eb := NewEventBus()
	called := false

	eb.Subscribe(EventPong, "panics", func(ctx context.Context, e Event) error {
		panic("boom")
	})
	eb.Subscribe(EventPong, "after", func(ctx context.Context, e Event) error {
		called = true
		return nil
	})

	assert.NotPanics(t, eb.OnPong)
	assert.True(t, called)
}

func TestUnsubscribe(t *testing.T) {
	eb := NewEventBus()
	noop := func(ctx context.Context, e Event) error { return nil }
	eb.Subscribe(EventKing, "a", noop)
	eb.Subscribe(EventKing, "b", noop)
	require.Equal(t, 2, eb.HandlerCount(EventKing))

	eb.Unsubscribe(EventKing, "a")
	assert.Equal(t, 1, eb.HandlerCount(EventKing))
}

func TestStopSuppressesDelivery(t *testing.T) {
	eb := NewEventBus()
	count := 0
	eb.Subscribe(EventOpen, "count", func(ctx context.Context, e Event) error {
		count++
		return nil
	})

	eb.OnOpen()
	eb.Stop()
	eb.Stop()
	eb.OnOpen()

	assert.Equal(t, 1, count)
	select {
	case <-eb.StopCh():
	default:
		t.Fatal("stop channel not closed")
	}
}

func TestSinkPayloads(t *testing.T) {
	eb := NewEventBus()
	var got []Event
	record := func(ctx context.Context, e Event) error {
		got = append(got, e)
		return nil
	}
	for _, et := range []EventType{EventMapConfig, EventEnterGame, EventCreateEntity, EventKing, EventLeaderboard, EventClose} {
		eb.Subscribe(et, "record", record)
	}

	ent, err := world.New(9, world.ClassItem, world.ItemAtom, "")
	require.NoError(t, err)

	eb.OnMapConfig(2, 100, 200)
	eb.OnEnterGame(77)
	eb.OnCreateEntity(ent)
	eb.OnKing(3, 1.5, -2)
	eb.OnLeaderboard(Leaderboard{Entries: []LeaderboardEntry{{ID: 1, Score: 10, Nick: "a"}}})
	eb.OnClose("bye")

	require.Len(t, got, 6)
	assert.Equal(t, MapConfigPayload{Version: 2, Width: 100, Height: 200}, got[0].Payload)
	assert.Equal(t, EnterGamePayload{ID: 77}, got[1].Payload)
	assert.Same(t, ent, got[2].Payload.(EntityPayload).Entity)
	assert.Equal(t, KingPayload{ID: 3, X: 1.5, Y: -2}, got[3].Payload)
	assert.Len(t, got[4].Payload.(Leaderboard).Entries, 1)
	assert.Equal(t, ClosePayload{Reason: "bye"}, got[5].Payload)
	for _, e := range got {
		assert.Equal(t, "protocol", e.Source)
	}
}
