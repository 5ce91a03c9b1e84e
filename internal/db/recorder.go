package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/flailbot/flailbot/internal/events"
)

// Feed kinds.
const (
	FeedKill  = "kill"
	FeedDeath = "death"
)

// FeedEntry is one recorded kill feed line.
type FeedEntry struct {
	Kind      string    `json:"kind"`
	EntityID  uint16    `json:"entity_id"`
	Nick      string    `json:"nick"`
	CreatedAt time.Time `json:"created_at"`
}

// KingEntry is one recorded change of king.
type KingEntry struct {
	EntityID  uint16    `json:"entity_id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedStats counts recorded kills and deaths.
type FeedStats struct {
	Kills  int `json:"kills"`
	Deaths int `json:"deaths"`
}

// Recorder persists decoded events. Timestamps are stored as unix
// milliseconds.
type Recorder struct {
	db     *Database
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastKing uint16
}

// NewRecorder opens the database at path and migrates the schema.
func NewRecorder(path string) (*Recorder, error) {
	database, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		db:     database,
		logger: log.With().Str("component", "recorder").Logger(),
		now:    time.Now,
	}

	if err := r.migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate recorder database: %w", err)
	}

	return r, nil
}

// recorderMigrations is the recorder schema history.
var recorderMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial",
		SQL: `
		CREATE TABLE IF NOT EXISTS feed (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			entity_id INTEGER NOT NULL,
			nick TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS kings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_id INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS leaderboards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS leaderboard_entries (
			leaderboard_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			entity_id INTEGER NOT NULL,
			score INTEGER NOT NULL,
			nick TEXT NOT NULL DEFAULT '',
			rank INTEGER NOT NULL DEFAULT 0,
			me INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (leaderboard_id, position),
			FOREIGN KEY (leaderboard_id) REFERENCES leaderboards(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS maps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL,
			width REAL NOT NULL,
			height REAL NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_feed_created ON feed(created_at);
		CREATE INDEX IF NOT EXISTS idx_kings_created ON kings(created_at);
		CREATE INDEX IF NOT EXISTS idx_leaderboards_created ON leaderboards(created_at);
	`,
	},
	{
		Version: 2,
		Name:    "prune_indexes",
		SQL: `
		CREATE INDEX IF NOT EXISTS idx_maps_created ON maps(created_at);
		CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	`,
	},
}

// migrate brings the schema up to the latest recorder migration.
func (r *Recorder) migrate() error {
	version, err := r.db.Migrate(recorderMigrations)
	if err != nil {
		return err
	}
	r.logger.Debug().Int("schema_version", version).Msg("database schema ready")
	return nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Recorder) Path() string {
	return r.db.Path()
}

// Attach subscribes the recorder to the bus.
func (r *Recorder) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventOpen, "recorder.open", r.onSession)
	bus.Subscribe(events.EventClose, "recorder.close", r.onSession)
	bus.Subscribe(events.EventEnterGame, "recorder.enterGame", r.onSession)
	bus.Subscribe(events.EventKill, "recorder.kill", r.onFeed)
	bus.Subscribe(events.EventDeath, "recorder.death", r.onFeed)
	bus.Subscribe(events.EventKing, "recorder.king", r.onKing)
	bus.Subscribe(events.EventLeaderboard, "recorder.leaderboard", r.onLeaderboard)
	bus.Subscribe(events.EventMapConfig, "recorder.map", r.onMap)
}

func (r *Recorder) stamp() int64 {
	return r.now().UnixMilli()
}

// Event handlers

func (r *Recorder) onSession(ctx context.Context, event events.Event) error {
	var detail string
	switch p := event.Payload.(type) {
	case events.ClosePayload:
		detail = p.Reason
	case events.EnterGamePayload:
		detail = fmt.Sprintf("id=%d", p.ID)
	}
	_, err := r.db.Exec("INSERT INTO sessions (event, detail, created_at) VALUES (?, ?, ?)",
		string(event.Type), detail, r.stamp())
	return err
}

func (r *Recorder) onFeed(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.KillPayload)
	if !ok {
		return fmt.Errorf("unexpected feed payload %T", event.Payload)
	}
	kind := FeedKill
	if event.Type == events.EventDeath {
		kind = FeedDeath
	}
	return r.RecordFeed(kind, p.ID, p.Nick)
}

func (r *Recorder) onKing(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.KingPayload)
	if !ok {
		return fmt.Errorf("unexpected king payload %T", event.Payload)
	}

	r.mu.Lock()
	changed := p.ID != r.lastKing
	r.lastKing = p.ID
	r.mu.Unlock()

	if !changed {
		return nil
	}
	return r.RecordKing(p.ID, p.X, p.Y)
}

func (r *Recorder) onLeaderboard(ctx context.Context, event events.Event) error {
	lb, ok := event.Payload.(events.Leaderboard)
	if !ok {
		return fmt.Errorf("unexpected leaderboard payload %T", event.Payload)
	}
	return r.RecordLeaderboard(lb)
}

func (r *Recorder) onMap(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.MapConfigPayload)
	if !ok {
		return fmt.Errorf("unexpected map payload %T", event.Payload)
	}
	_, err := r.db.Exec("INSERT INTO maps (version, width, height, created_at) VALUES (?, ?, ?, ?)",
		p.Version, p.Width, p.Height, r.stamp())
	return err
}

// RecordFeed stores a kill feed line.
func (r *Recorder) RecordFeed(kind string, id uint16, nick string) error {
	_, err := r.db.Exec("INSERT INTO feed (kind, entity_id, nick, created_at) VALUES (?, ?, ?, ?)",
		kind, id, nick, r.stamp())
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", kind, err)
	}
	return nil
}

// RecordKing stores a king sighting.
func (r *Recorder) RecordKing(id uint16, x, y float64) error {
	_, err := r.db.Exec("INSERT INTO kings (entity_id, x, y, created_at) VALUES (?, ?, ?, ?)",
		id, x, y, r.stamp())
	if err != nil {
		return fmt.Errorf("failed to record king: %w", err)
	}
	return nil
}

// RecordLeaderboard stores a leaderboard snapshot with its rows in order.
func (r *Recorder) RecordLeaderboard(lb events.Leaderboard) error {
	return r.db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec("INSERT INTO leaderboards (created_at) VALUES (?)", r.stamp())
		if err != nil {
			return fmt.Errorf("failed to record leaderboard: %w", err)
		}
		boardID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		for i, e := range lb.Entries {
			_, err := tx.Exec(`INSERT INTO leaderboard_entries
				(leaderboard_id, position, entity_id, score, nick, rank, me)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				boardID, i, e.ID, e.Score, e.Nick, e.Rank, e.Me)
			if err != nil {
				return fmt.Errorf("failed to record leaderboard row %d: %w", i, err)
			}
		}
		return nil
	})
}

// RecentFeed returns the newest kill feed lines, newest first.
func (r *Recorder) RecentFeed(limit int) ([]FeedEntry, error) {
	rows, err := r.db.Query(
		"SELECT kind, entity_id, nick, created_at FROM feed ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}
	defer rows.Close()

	var out []FeedEntry
	for rows.Next() {
		var (
			e  FeedEntry
			ms int64
		)
		if err := rows.Scan(&e.Kind, &e.EntityID, &e.Nick, &ms); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats counts recorded kills and deaths.
func (r *Recorder) Stats() (FeedStats, error) {
	var s FeedStats
	err := r.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0)
		FROM feed`, FeedKill, FeedDeath).Scan(&s.Kills, &s.Deaths)
	if err != nil {
		return s, fmt.Errorf("failed to count feed: %w", err)
	}
	return s, nil
}

// Kings returns the newest king changes, newest first.
func (r *Recorder) Kings(limit int) ([]KingEntry, error) {
	rows, err := r.db.Query(
		"SELECT entity_id, x, y, created_at FROM kings ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query kings: %w", err)
	}
	defer rows.Close()

	var out []KingEntry
	for rows.Next() {
		var (
			k  KingEntry
			ms int64
		)
		if err := rows.Scan(&k.EntityID, &k.X, &k.Y, &ms); err != nil {
			return nil, err
		}
		k.CreatedAt = time.UnixMilli(ms)
		out = append(out, k)
	}
	return out, rows.Err()
}

// LatestLeaderboard returns the newest recorded leaderboard, or an empty
// one when none was recorded.
func (r *Recorder) LatestLeaderboard() (events.Leaderboard, error) {
	var lb events.Leaderboard
	rows, err := r.db.Query(`
		SELECT entity_id, score, nick, rank, me FROM leaderboard_entries
		WHERE leaderboard_id = (SELECT MAX(id) FROM leaderboards)
		ORDER BY position`)
	if err != nil {
		return lb, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e events.LeaderboardEntry
		if err := rows.Scan(&e.ID, &e.Score, &e.Nick, &e.Rank, &e.Me); err != nil {
			return lb, err
		}
		lb.Entries = append(lb.Entries, e)
	}
	if n := len(lb.Entries); n > 0 && lb.Entries[n-1].Me {
		lb.Me = &lb.Entries[n-1]
	}
	return lb, rows.Err()
}

// Prune deletes everything recorded before cutoff and returns the number
// of rows removed.
func (r *Recorder) Prune(cutoff time.Time) (int64, error) {
	ms := cutoff.UnixMilli()
	var total int64

	err := r.db.Transaction(func(tx *sql.Tx) error {
		for _, table := range []string{"feed", "kings", "leaderboards", "maps", "sessions"} {
			res, err := tx.Exec("DELETE FROM "+table+" WHERE created_at < ?", ms)
			if err != nil {
				return fmt.Errorf("failed to prune %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Info().Int64("rows", total).Time("cutoff", cutoff).Msg("recorder pruned")
	return total, nil
}
