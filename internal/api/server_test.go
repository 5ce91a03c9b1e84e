package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flailbot/flailbot/internal/config"
	"github.com/flailbot/flailbot/internal/db"
	"github.com/flailbot/flailbot/internal/events"
	"github.com/flailbot/flailbot/internal/world"
)

type fakeHistory struct {
	err error
}

func (f *fakeHistory) RecentFeed(limit int) ([]db.FeedEntry, error) {
	return []db.FeedEntry{{Kind: db.FeedKill, EntityID: uint16(limit)}}, f.err
}

func (f *fakeHistory) Kings(limit int) ([]db.KingEntry, error) {
	return []db.KingEntry{{EntityID: 5}}, f.err
}

func (f *fakeHistory) Stats() (db.FeedStats, error) {
	return db.FeedStats{Kills: 3, Deaths: 1}, f.err
}

func (f *fakeHistory) LatestLeaderboard() (events.Leaderboard, error) {
	return events.Leaderboard{}, f.err
}

type testServer struct {
	srv   *Server
	bus   *events.EventBus
	state *WorldState
	cfg   *config.Config
}

func newTestServer(t *testing.T, history History) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), config.DefaultConfigFile))

	bus := events.NewEventBus()
	state := NewWorldState()
	state.Attach(bus)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "flailbot_test_total", Help: "test"}))

	srv := NewServer(cfg, state, "1.2.3")
	srv.SetDependencies(history, reg)
	return &testServer{srv: srv, bus: bus, state: state, cfg: cfg}
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestPing(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/api/public/ping", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestWorldRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/world/king", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/world/map", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ship, err := world.New(8, world.ClassPlayer, 0, "pilot")
	require.NoError(t, err)
	ts.bus.OnOpen()
	ts.bus.OnMapConfig(2, 500, 600)
	ts.bus.OnCreateEntity(ship)
	ts.bus.OnKing(8, 3, 4)
	ts.bus.OnLeaderboard(events.Leaderboard{Entries: []events.LeaderboardEntry{{ID: 8, Score: 77, Nick: "pilot"}}})

	rec = ts.do(t, http.MethodGet, "/api/world/entities?kind=ship", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Entities []EntitySnapshot `json:"entities"`
		Total    int              `json:"total"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, "pilot", list.Entities[0].Nick)

	rec = ts.do(t, http.MethodGet, "/api/world/entities?kind=atom", nil)
	decode(t, rec, &list)
	assert.Zero(t, list.Total)

	rec = ts.do(t, http.MethodGet, "/api/world/entities/8", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/world/entities/9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/world/entities/nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/world/king", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var king King
	decode(t, rec, &king)
	assert.Equal(t, King{ID: 8, X: 3, Y: 4, Nick: "pilot"}, king)

	rec = ts.do(t, http.MethodGet, "/api/world/leaderboard", nil)
	var lb events.Leaderboard
	decode(t, rec, &lb)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, uint32(77), lb.Entries[0].Score)

	rec = ts.do(t, http.MethodGet, "/api/world/map", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/status", nil)
	var status Status
	decode(t, rec, &status)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, status.Entities)
}

func TestHistoryRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/api/history/feed", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts = newTestServer(t, &fakeHistory{})
	rec = ts.do(t, http.MethodGet, "/api/history/feed?limit=5000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feed struct {
		Feed []db.FeedEntry `json:"feed"`
	}
	decode(t, rec, &feed)
	require.Len(t, feed.Feed, 1)
	assert.Equal(t, uint16(1000), feed.Feed[0].EntityID)

	rec = ts.do(t, http.MethodGet, "/api/history/stats", nil)
	var stats db.FeedStats
	decode(t, rec, &stats)
	assert.Equal(t, db.FeedStats{Kills: 3, Deaths: 1}, stats)

	ts = newTestServer(t, &fakeHistory{err: errors.New("locked")})
	rec = ts.do(t, http.MethodGet, "/api/history/kings", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestConfigRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	client := ts.cfg.GetClient()
	client.Nick = "renamed"
	body, err := json.Marshal(client)
	require.NoError(t, err)
	rec = ts.do(t, http.MethodPost, "/api/config/client", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renamed", ts.cfg.GetClient().Nick)

	client.Intents = []string{"telepathy"}
	body, err = json.Marshal(client)
	require.NoError(t, err)
	rec = ts.do(t, http.MethodPost, "/api/config/client", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/config/client", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsAndNoRoute(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flailbot_test_total")

	rec = ts.do(t, http.MethodGet, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.cfg.API.RateLimitRPS = 1
	ts.srv.router = nil

	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		codes[ts.do(t, http.MethodGet, "/api/public/ping", nil).Code]++
	}
	assert.Equal(t, 2, codes[http.StatusOK])
	assert.Equal(t, 3, codes[http.StatusTooManyRequests])
}
