package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flailbot/flailbot/internal/events"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := NewRecorder(filepath.Join(t.TempDir(), "nested", "flailbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecorderFeedFromBus(t *testing.T) {
	r := newTestRecorder(t)
	bus := events.NewEventBus()
	r.Attach(bus)

	bus.OnKill(4, "victim")
	bus.OnDeath(9, "killer")
	bus.OnKill(5, "other")

	feed, err := r.RecentFeed(10)
	require.NoError(t, err)
	require.Len(t, feed, 3)
	assert.Equal(t, FeedKill, feed[0].Kind)
	assert.Equal(t, uint16(5), feed[0].EntityID)
	assert.Equal(t, FeedDeath, feed[1].Kind)
	assert.Equal(t, "killer", feed[1].Nick)

	stats, err := r.Stats()
	require.NoError(t, err)
	assert.Equal(t, FeedStats{Kills: 2, Deaths: 1}, stats)
}

func TestRecorderStatsEmpty(t *testing.T) {
	r := newTestRecorder(t)
	stats, err := r.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats)
}

func TestRecorderKingOnlyOnChange(t *testing.T) {
	r := newTestRecorder(t)
	bus := events.NewEventBus()
	r.Attach(bus)

	bus.OnKing(3, 1, 2)
	bus.OnKing(3, 5, 6)
	bus.OnKing(8, 0, 0)
	bus.OnKing(3, 9, 9)

	kings, err := r.Kings(10)
	require.NoError(t, err)
	require.Len(t, kings, 3)
	assert.Equal(t, uint16(3), kings[0].EntityID)
	assert.Equal(t, 9.0, kings[0].X)
	assert.Equal(t, uint16(8), kings[1].EntityID)
	assert.Equal(t, uint16(3), kings[2].EntityID)
	assert.Equal(t, 1.0, kings[2].X)
}

func TestRecorderLatestLeaderboard(t *testing.T) {
	r := newTestRecorder(t)
	bus := events.NewEventBus()
	r.Attach(bus)

	empty, err := r.LatestLeaderboard()
	require.NoError(t, err)
	assert.Empty(t, empty.Entries)
	assert.Nil(t, empty.Me)

	bus.OnLeaderboard(events.Leaderboard{Entries: []events.LeaderboardEntry{{ID: 1, Score: 10, Nick: "old"}}})
	bus.OnLeaderboard(events.Leaderboard{Entries: []events.LeaderboardEntry{
		{ID: 2, Score: 300, Nick: "a"},
		{ID: 3, Score: 200, Nick: "b"},
		{ID: 7, Score: 5, Rank: 17, Me: true},
	}})

	lb, err := r.LatestLeaderboard()
	require.NoError(t, err)
	require.Len(t, lb.Entries, 3)
	assert.Equal(t, "a", lb.Entries[0].Nick)
	assert.Equal(t, uint32(200), lb.Entries[1].Score)
	require.NotNil(t, lb.Me)
	assert.Equal(t, uint16(17), lb.Me.Rank)
	assert.Equal(t, uint16(7), lb.Me.ID)
}

func TestRecorderPrune(t *testing.T) {
	r := newTestRecorder(t)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	now := base
	r.now = func() time.Time { return now }

	require.NoError(t, r.RecordFeed(FeedKill, 1, "old"))
	require.NoError(t, r.RecordKing(1, 0, 0))
	require.NoError(t, r.RecordLeaderboard(events.Leaderboard{Entries: []events.LeaderboardEntry{{ID: 1, Score: 1}}}))

	now = base.Add(48 * time.Hour)
	require.NoError(t, r.RecordFeed(FeedDeath, 2, "new"))

	removed, err := r.Prune(base.Add(24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	feed, err := r.RecentFeed(10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "new", feed[0].Nick)
	assert.Equal(t, now.UnixMilli(), feed[0].CreatedAt.UnixMilli())

	lb, err := r.LatestLeaderboard()
	require.NoError(t, err)
	assert.Empty(t, lb.Entries)
}

func TestRecorderSessionsAndMaps(t *testing.T) {
	r := newTestRecorder(t)
	bus := events.NewEventBus()
	r.Attach(bus)

	bus.OnOpen()
	bus.OnMapConfig(2, 100, 200)
	bus.OnEnterGame(12)
	bus.OnClose("shutdown")

	var sessions, maps int
	require.NoError(t, r.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&sessions))
	require.NoError(t, r.db.QueryRow("SELECT COUNT(*) FROM maps").Scan(&maps))
	assert.Equal(t, 3, sessions)
	assert.Equal(t, 1, maps)

	var detail string
	require.NoError(t, r.db.QueryRow("SELECT detail FROM sessions WHERE event = ?", "close").Scan(&detail))
	assert.Equal(t, "shutdown", detail)
}
