// Package catalog persists source definitions in SQLite so the engine can
// restore its source set across restarts.
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Akash9179/Project-Argus/internal/ingest"
)

// Store handles SQLite catalog operations.
type Store struct {
	db *sql.DB
}

// SourceRecord is a persisted source definition. Password never leaves the
// process through JSON.
type SourceRecord struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	URI               string    `json:"uri"`
	SourceType        string    `json:"source_type"`
	TargetFPS         int       `json:"target_fps"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	ReconnectDelayS   float64   `json:"reconnect_delay_s"`
	TimeoutS          float64   `json:"timeout_s"`
	Username          string    `json:"username,omitempty"`
	Password          string    `json:"-"`
	Width             int       `json:"width"`
	Height            int       `json:"height"`
	LoopPlayback      bool      `json:"loop_playback"`
	Enabled           bool      `json:"enabled"`
	CreatedAt         time.Time `json:"created_at"`
}

// IngestConfig converts a record into the capture configuration it defines.
func (r *SourceRecord) IngestConfig() ingest.Config {
	return ingest.Config{
		SourceID:          r.ID,
		Name:              r.Name,
		URI:               r.URI,
		TargetFPS:         r.TargetFPS,
		ReconnectAttempts: r.ReconnectAttempts,
		ReconnectDelay:    time.Duration(r.ReconnectDelayS * float64(time.Second)),
		Timeout:           time.Duration(r.TimeoutS * float64(time.Second)),
		Username:          r.Username,
		Password:          r.Password,
		Width:             r.Width,
		Height:            r.Height,
		LoopPlayback:      r.LoopPlayback,
	}
}

// Open creates a catalog store at the given path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// WAL mode for concurrent reads while the engine writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			uri TEXT NOT NULL,
			source_type TEXT NOT NULL,
			target_fps INTEGER DEFAULT 10,
			reconnect_attempts INTEGER DEFAULT -1,
			reconnect_delay_s REAL DEFAULT 5,
			timeout_s REAL DEFAULT 10,
			username TEXT DEFAULT '',
			password TEXT DEFAULT '',
			width INTEGER DEFAULT 640,
			height INTEGER DEFAULT 480,
			loop_playback INTEGER DEFAULT 0,
			enabled INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_enabled ON sources(enabled)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const sourceColumns = `id, name, uri, source_type, target_fps, reconnect_attempts,
	reconnect_delay_s, timeout_s, username, password, width, height,
	loop_playback, enabled, created_at`

// Save inserts or updates a source definition.
func (s *Store) Save(rec *SourceRecord) error {
	query := `INSERT INTO sources (` + sourceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			uri = excluded.uri,
			source_type = excluded.source_type,
			target_fps = excluded.target_fps,
			reconnect_attempts = excluded.reconnect_attempts,
			reconnect_delay_s = excluded.reconnect_delay_s,
			timeout_s = excluded.timeout_s,
			username = excluded.username,
			password = excluded.password,
			width = excluded.width,
			height = excluded.height,
			loop_playback = excluded.loop_playback,
			enabled = excluded.enabled`

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(query, rec.ID.String(), rec.Name, rec.URI, rec.SourceType,
		rec.TargetFPS, rec.ReconnectAttempts, rec.ReconnectDelayS, rec.TimeoutS,
		rec.Username, rec.Password, rec.Width, rec.Height,
		boolToInt(rec.LoopPlayback), boolToInt(rec.Enabled), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save source: %w", err)
	}
	return nil
}

// Get retrieves a source by id, (nil, nil) when absent.
func (s *Store) Get(id uuid.UUID) (*SourceRecord, error) {
	row := s.db.QueryRow(`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id.String())
	rec, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return rec, nil
}

// List returns all sources, newest first.
func (s *Store) List() ([]*SourceRecord, error) {
	rows, err := s.db.Query(`SELECT ` + sourceColumns + ` FROM sources ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var records []*SourceRecord
	for rows.Next() {
		rec, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListEnabled returns the sources that should start with the engine.
func (s *Store) ListEnabled() ([]*SourceRecord, error) {
	rows, err := s.db.Query(`SELECT ` + sourceColumns + ` FROM sources WHERE enabled = 1 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled sources: %w", err)
	}
	defer rows.Close()

	var records []*SourceRecord
	for rows.Next() {
		rec, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes a source by id. Reports whether a row existed.
func (s *Store) Delete(id uuid.UUID) (bool, error) {
	res, err := s.db.Exec("DELETE FROM sources WHERE id = ?", id.String())
	if err != nil {
		return false, fmt.Errorf("failed to delete source: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetEnabled flips whether a source starts with the engine.
func (s *Store) SetEnabled(id uuid.UUID, enabled bool) error {
	_, err := s.db.Exec("UPDATE sources SET enabled = ? WHERE id = ?", boolToInt(enabled), id.String())
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*SourceRecord, error) {
	var rec SourceRecord
	var id string
	var loop, enabled int
	err := row.Scan(&id, &rec.Name, &rec.URI, &rec.SourceType, &rec.TargetFPS,
		&rec.ReconnectAttempts, &rec.ReconnectDelayS, &rec.TimeoutS,
		&rec.Username, &rec.Password, &rec.Width, &rec.Height,
		&loop, &enabled, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad source id %q: %w", id, err)
	}
	rec.LoopPlayback = loop == 1
	rec.Enabled = enabled == 1
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
