package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"FinWire/internal/domain"
	"FinWire/internal/ports"
)

// SyncStore records remote publications. A row here means the item was
// delivered; its absence means publication may be attempted.
type SyncStore struct {
	db *sql.DB
}

var _ ports.SyncStore = (*SyncStore)(nil)

// NewSyncStore wires an already-opened and migrated database.
func NewSyncStore(db *sql.DB) *SyncStore {
	return &SyncStore{db: db}
}

// Exists is the pre-flight idempotency check for publication.
func (s *SyncStore) Exists(ctx context.Context, itemID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_records WHERE item_id = ?", itemID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check sync record: %w", err)
	}
	return count > 0, nil
}

// Save records the remote page id for a freshly published item. Re-saving the
// same item keeps the original row.
func (s *SyncStore) Save(ctx context.Context, record domain.SyncRecord) error {
	syncedAt := record.SyncedAt
	if syncedAt.IsZero() {
		syncedAt = time.Now()
	}

	query, args, err := builder.
		Insert("sync_records").
		Columns("item_id", "remote_page_id", "synced_at").
		Values(record.ItemID, record.RemotePageID, formatTime(syncedAt)).
		Suffix("ON CONFLICT(item_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save sync record for %s: %w", record.ItemID, err)
	}
	return nil
}

// FindSyncedBetween returns records with synced_at in [from, to), oldest first.
// The digest aggregator uses this to collect a period's published items.
func (s *SyncStore) FindSyncedBetween(ctx context.Context, from, to time.Time) ([]domain.SyncRecord, error) {
	query, args, err := builder.
		Select("item_id", "remote_page_id", "synced_at").
		From("sync_records").
		Where(sq.GtOrEq{"synced_at": formatTime(from)}).
		Where(sq.Lt{"synced_at": formatTime(to)}).
		OrderBy("synced_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sync records: %w", err)
	}
	defer rows.Close()

	var records []domain.SyncRecord
	for rows.Next() {
		var record domain.SyncRecord
		var syncedAt string
		if err := rows.Scan(&record.ItemID, &record.RemotePageID, &syncedAt); err != nil {
			return nil, fmt.Errorf("scan sync record: %w", err)
		}
		if record.SyncedAt, err = parseTime(syncedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
