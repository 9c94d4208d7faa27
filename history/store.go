// Package history persists PatternMatchEvents (and, optionally, the
// ToneEvents behind them) to SQLite so a tuner UI or offline analysis can
// review past detections. Grounded on dougsko-js8d's
// pkg/storage/message_store.go: same WAL connection string, same
// create-tables-then-indexes split, same row-count-cap cleanup.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	alarm "alarmwatch"
)

// Store is a SQLite-backed append-only log of detections.
type Store struct {
	db         *sql.DB
	path       string
	maxRecords int
}

// New opens (creating if necessary) a detection history database at path,
// retaining at most maxRecords rows of each kind. maxRecords <= 0 means no
// limit.
func New(path string, maxRecords int) (*Store, error) {
	s := &Store{path: path, maxRecords: maxRecords}
	if err := s.initialize(); err != nil {
		return nil, fmt.Errorf("initialize history store: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}

	connectionString := s.path + "?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	s.db = db

	if err := s.createTables(); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if err := s.createIndexes(); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}

	alarm.Logger.Info("history store initialized", "path", s.path, "max_records", s.maxRecords)
	return nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		profile_name TEXT NOT NULL,
		match_timestamp REAL NOT NULL,
		duration REAL NOT NULL,
		cycle_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tone_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		event_timestamp REAL NOT NULL,
		duration REAL NOT NULL,
		frequency REAL NOT NULL,
		magnitude REAL NOT NULL,
		confidence REAL NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_matches_profile_name ON matches(profile_name)",
		"CREATE INDEX IF NOT EXISTS idx_matches_recorded_at ON matches(recorded_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_tone_events_recorded_at ON tone_events(recorded_at DESC)",
	}
	for _, stmt := range indexes {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// RecordMatch appends a PatternMatchEvent and enforces the retention cap.
func (s *Store) RecordMatch(m alarm.PatternMatchEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO matches (profile_name, match_timestamp, duration, cycle_count) VALUES (?, ?, ?, ?)`,
		m.ProfileName, m.Timestamp, m.Duration, m.CycleCount,
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}

	if err := s.cleanup(tx, "matches"); err != nil {
		alarm.Logger.Warn("history cleanup failed", "table", "matches", "error", err)
	}

	return tx.Commit()
}

// RecordToneEvent appends a ToneEvent for offline inspection.
func (s *Store) RecordToneEvent(e alarm.ToneEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO tone_events (event_timestamp, duration, frequency, magnitude, confidence) VALUES (?, ?, ?, ?, ?)`,
		e.Timestamp, e.Duration, e.Frequency, e.Magnitude, e.Confidence,
	)
	if err != nil {
		return fmt.Errorf("insert tone event: %w", err)
	}

	if err := s.cleanup(tx, "tone_events"); err != nil {
		alarm.Logger.Warn("history cleanup failed", "table", "tone_events", "error", err)
	}

	return tx.Commit()
}

func (s *Store) cleanup(tx *sql.Tx, table string) error {
	if s.maxRecords <= 0 {
		return nil
	}

	var count int
	if err := tx.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
		return err
	}
	if count <= s.maxRecords {
		return nil
	}

	excess := count - s.maxRecords
	_, err := tx.Exec(fmt.Sprintf(
		"DELETE FROM %s WHERE id IN (SELECT id FROM %s ORDER BY recorded_at ASC LIMIT ?)", table, table,
	), excess)
	return err
}

// RecentMatches returns up to limit of the most recently recorded
// PatternMatchEvents, newest first.
func (s *Store) RecentMatches(limit int) ([]alarm.PatternMatchEvent, error) {
	rows, err := s.db.Query(
		`SELECT profile_name, match_timestamp, duration, cycle_count FROM matches ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent matches: %w", err)
	}
	defer rows.Close()

	var out []alarm.PatternMatchEvent
	for rows.Next() {
		var m alarm.PatternMatchEvent
		if err := rows.Scan(&m.ProfileName, &m.Timestamp, &m.Duration, &m.CycleCount); err != nil {
			return nil, fmt.Errorf("scan match row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
