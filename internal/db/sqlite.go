// Package db implements the SQLite recorder that keeps a history of the
// kill feed, king changes, leaderboards and map configs seen by the client.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// BusyTimeoutMs is how long a write waits on a locked database before
// failing. The API reads while the parser goroutine records.
const BusyTimeoutMs = 5000

// connPragmas are applied by the driver to every pooled connection.
// Leaderboard entries rely on foreign keys for cascading prunes.
var connPragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(1)",
	fmt.Sprintf("busy_timeout(%d)", BusyTimeoutMs),
	"synchronous(NORMAL)",
}

// Migration is one numbered schema step. Versions are tracked in
// PRAGMA user_version and applied in ascending order.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Database wraps a SQLite connection. Writes are serialized.
type Database struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func dsn(path string) string {
	params := make([]string, 0, len(connPragmas))
	for _, p := range connPragmas {
		params = append(params, "_pragma="+p)
	}
	return path + "?" + strings.Join(params, "&")
}

// NewDatabase opens or creates the database at dbPath, creating its
// directory when missing.
func NewDatabase(dbPath string) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	// One writer; WAL still lets readers proceed.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil || fk != 1 {
		db.Close()
		return nil, fmt.Errorf("foreign keys unavailable on %s", dbPath)
	}

	log.Info().Str("path", dbPath).Msg("database opened")

	return &Database{
		db:   db,
		path: dbPath,
	}, nil
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// SchemaVersion returns the highest migration applied.
func (d *Database) SchemaVersion() (int, error) {
	var v int
	if err := d.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Migrate applies every migration newer than the stored schema version,
// each in its own transaction, and returns the resulting version. A
// database newer than the known migrations is an error.
func (d *Database) Migrate(migrations []Migration) (int, error) {
	current, err := d.SchemaVersion()
	if err != nil {
		return 0, err
	}

	latest := 0
	for _, m := range migrations {
		if m.Version <= latest {
			return current, fmt.Errorf("migration %d (%s) out of order", m.Version, m.Name)
		}
		latest = m.Version
	}
	if current > latest {
		return current, fmt.Errorf("database schema version %d is newer than supported %d", current, latest)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		err := d.Transaction(func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version))
			return err
		})
		if err != nil {
			return current, fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		current = m.Version
		log.Debug().
			Int("version", m.Version).
			Str("migration", m.Name).
			Msg("schema migration applied")
	}

	return current, nil
}

// Exec executes a query without returning rows.
func (d *Database) Exec(query string, args ...interface{}) (sql.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Exec(query, args...)
}

// Query executes a query that returns rows.
func (d *Database) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return d.db.Query(query, args...)
}

// QueryRow executes a query that returns a single row.
func (d *Database) QueryRow(query string, args ...interface{}) *sql.Row {
	return d.db.QueryRow(query, args...)
}

// Transaction runs fn in a transaction, rolling back when it fails.
func (d *Database) Transaction(fn func(tx *sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
