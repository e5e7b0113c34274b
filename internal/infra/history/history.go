// Package history records what each player has played in a SQLite database.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	// DefaultDBPath is the default path for the history database.
	DefaultDBPath = "/var/lib/slimserver/history.db"
)

// Play is one entry in the playback history.
type Play struct {
	PlayerID  string
	Artist    string
	Album     string
	Title     string
	StartedAt time.Time
}

// Store persists playback history in SQLite.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewStore creates a new history store instance.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultDBPath
	}
	return &Store{
		path: path,
	}
}

// Open opens the database and initializes the schema.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", s.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s.db = db

	if err := s.initSchema(); err != nil {
		s.db.Close()
		s.db = nil
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", s.path).Msg("History database opened")
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// initSchema initializes the database schema.
func (s *Store) initSchema() error {
	currentVersion := s.getSchemaVersion()

	if currentVersion == "" {
		// Fresh database, create all tables
		if err := s.createSchema(); err != nil {
			return err
		}
		return s.setMeta("schema_version", CurrentSchemaVersion)
	}

	if currentVersion != CurrentSchemaVersion {
		log.Info().
			Str("current", currentVersion).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating history schema")
		// Add migration logic here when schema changes
		return s.setMeta("schema_version", CurrentSchemaVersion)
	}

	return nil
}

// createSchema creates all database tables.
func (s *Store) createSchema() error {
	schema := `
	-- Playback history
	CREATE TABLE IF NOT EXISTS plays (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id TEXT NOT NULL,
		artist TEXT,
		album TEXT,
		title TEXT NOT NULL,
		started_at TEXT NOT NULL
	);

	-- History metadata
	CREATE TABLE IF NOT EXISTS history_meta (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_plays_started ON plays(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_plays_player ON plays(player_id);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info().Msg("History schema created")
	return nil
}

// getSchemaVersion returns the current schema version.
func (s *Store) getSchemaVersion() string {
	var version string
	err := s.db.QueryRow("SELECT value FROM history_meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

// setMeta sets a metadata value.
func (s *Store) setMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO history_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?
	`, key, value, time.Now().Format(time.RFC3339), value, time.Now().Format(time.RFC3339))
	return err
}

// Record appends a play to the history.
func (s *Store) Record(play Play) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return fmt.Errorf("database not open")
	}

	startedAt := play.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO plays (player_id, artist, album, title, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, play.PlayerID, play.Artist, play.Album, play.Title, startedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	return nil
}

// Recent returns the most recent plays, newest first.
func (s *Store) Recent(limit int) ([]Play, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, fmt.Errorf("database not open")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT player_id, artist, album, title, started_at
		FROM plays
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plays []Play
	for rows.Next() {
		var play Play
		var artist, album sql.NullString
		var startedAt string
		if err := rows.Scan(&play.PlayerID, &artist, &album, &play.Title, &startedAt); err != nil {
			return nil, err
		}
		if artist.Valid {
			play.Artist = artist.String
		}
		if album.Valid {
			play.Album = album.String
		}
		play.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		plays = append(plays, play)
	}
	return plays, rows.Err()
}

// RecentForPlayer returns the most recent plays for one player, newest first.
func (s *Store) RecentForPlayer(playerID string, limit int) ([]Play, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, fmt.Errorf("database not open")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT player_id, artist, album, title, started_at
		FROM plays
		WHERE player_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plays []Play
	for rows.Next() {
		var play Play
		var artist, album sql.NullString
		var startedAt string
		if err := rows.Scan(&play.PlayerID, &artist, &album, &play.Title, &startedAt); err != nil {
			return nil, err
		}
		if artist.Valid {
			play.Artist = artist.String
		}
		if album.Valid {
			play.Album = album.String
		}
		play.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		plays = append(plays, play)
	}
	return plays, rows.Err()
}

// Count returns the total number of recorded plays.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return 0, fmt.Errorf("database not open")
	}

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM plays").Scan(&count)
	return count, err
}
