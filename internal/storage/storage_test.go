package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"FinWire/internal/domain"
)

// openTestDB creates a migrated in-memory database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, NewMigrationRunner(db).Run())
	return db
}

// seedItem inserts a test item and its id for ledger tests.
func seedItem(t *testing.T, db *sql.DB, title, url string, publishedAt time.Time) domain.Item {
	t.Helper()
	item := domain.Item{
		ID:          domain.ItemID(title, publishedAt),
		Title:       title,
		SourceURL:   url,
		Source:      "test-feed",
		PublishedAt: publishedAt,
		IngestedAt:  time.Now(),
	}
	require.NoError(t, NewItemStore(db).Upsert(context.Background(), item))
	return item
}

func testPublishedAt() time.Time {
	return time.Date(2026, time.August, 20, 9, 0, 0, 0, time.UTC)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationRunner(db).Run())
	require.NoError(t, NewMigrationRunner(db).Run())
}
