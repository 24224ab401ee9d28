// Package store persists checkpoints, settings and per step statistics in
// SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"ringsim/internal/ring"
)

// ErrNotFound is returned when a checkpoint does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// CheckpointRow describes a saved checkpoint without its payload
type CheckpointRow struct {
	ID        int64     `json:"id"`
	Label     string    `json:"label"`
	Step      int       `json:"step"`
	SimTime   float64   `json:"sim_time"`
	Rings     int       `json:"rings"`
	CreatedAt time.Time `json:"created_at"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		label TEXT NOT NULL DEFAULT '',
		step INTEGER NOT NULL DEFAULT 0,
		sim_time REAL NOT NULL DEFAULT 0,
		rings INTEGER NOT NULL DEFAULT 0,
		payload BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS step_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		step INTEGER NOT NULL,
		sim_time REAL NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		overlaps INTEGER NOT NULL DEFAULT 0,
		invasions INTEGER NOT NULL DEFAULT 0,
		zero_speed INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		removed INTEGER NOT NULL DEFAULT 0,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_step_stats_step ON step_stats(step);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("store: migration error: %v", err)
	}
	return err
}

// GetSetting returns a setting value, or "" when it is not set
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("store: get setting %s: %v", key, err)
		}
		return ""
	}
	return value
}

// SetSetting creates or replaces a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// SaveCheckpoint stores a ring population and returns its id
func (db *DB) SaveCheckpoint(label string, step int, simTime float64, cp *ring.Checkpoint) (int64, error) {
	payload, err := msgpack.Marshal(cp)
	if err != nil {
		return 0, fmt.Errorf("store: encode checkpoint: %w", err)
	}
	res, err := db.conn.Exec(
		"INSERT INTO checkpoints (label, step, sim_time, rings, payload) VALUES (?, ?, ?, ?, ?)",
		label, step, simTime, cp.Len(), payload,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetCheckpoint loads a checkpoint by id
func (db *DB) GetCheckpoint(id int64) (*CheckpointRow, *ring.Checkpoint, error) {
	row := db.conn.QueryRow(
		"SELECT id, label, step, sim_time, rings, created_at, payload FROM checkpoints WHERE id = ?",
		id,
	)
	r := &CheckpointRow{}
	var payload []byte
	err := row.Scan(&r.ID, &r.Label, &r.Step, &r.SimTime, &r.Rings, &r.CreatedAt, &payload)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("checkpoint %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	cp := &ring.Checkpoint{}
	if err := msgpack.Unmarshal(payload, cp); err != nil {
		return nil, nil, fmt.Errorf("store: decode checkpoint %d: %w", id, err)
	}
	return r, cp, nil
}

// ListCheckpoints returns the most recent checkpoints first
func (db *DB) ListCheckpoints(limit int) ([]CheckpointRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, label, step, sim_time, rings, created_at
		FROM checkpoints
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CheckpointRow
	for rows.Next() {
		var r CheckpointRow
		if err := rows.Scan(&r.ID, &r.Label, &r.Step, &r.SimTime, &r.Rings, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// RecentStats returns the last recorded step statistics, newest first
func (db *DB) RecentStats(limit int) ([]StepStat, error) {
	rows, err := db.conn.Query(`
		SELECT step, sim_time, active, overlaps, invasions, zero_speed, created, removed, recorded_at
		FROM step_stats
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StepStat
	for rows.Next() {
		var s StepStat
		var at string
		if err := rows.Scan(&s.Step, &s.SimTime, &s.Active, &s.Overlaps, &s.Invasions,
			&s.ZeroSpeed, &s.Created, &s.Removed, &at); err != nil {
			return nil, err
		}
		s.At, _ = time.Parse(time.RFC3339, at)
		result = append(result, s)
	}
	return result, rows.Err()
}
