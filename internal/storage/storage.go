package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

// ErrConflict is returned when a source URL collides with a different item id.
// Deterministic hashing should make this impossible; callers treat it as a
// data-integrity fault, log it, and skip the item.
var ErrConflict = errors.New("storage: source url bound to a different item id")

// builder is the shared squirrel statement builder (SQLite uses ? placeholders).
var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Open opens (creating if needed) the SQLite database at path and applies all
// pending migrations.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY under overlapping runs.
	db.SetMaxOpenConns(1)

	if err := NewMigrationRunner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// formatTime renders timestamps the way every table stores them.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime tries the formats SQLite may hand back.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}
