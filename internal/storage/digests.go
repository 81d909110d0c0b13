package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinWire/internal/domain"
	"FinWire/internal/ports"
)

// DigestStore persists one digest per (kind, period key). The composite
// primary key is what makes digest generation idempotent across runs.
type DigestStore struct {
	db *sql.DB
}

var _ ports.DigestStore = (*DigestStore)(nil)

// NewDigestStore wires an already-opened and migrated database.
func NewDigestStore(db *sql.DB) *DigestStore {
	return &DigestStore{db: db}
}

// Exists reports whether the period has already been digested.
func (s *DigestStore) Exists(ctx context.Context, kind domain.PeriodKind, key string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM digest_records WHERE kind = ? AND period_key = ?",
		string(kind), key,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check digest record: %w", err)
	}
	return count > 0, nil
}

// Save writes the digest row. A concurrent run that already wrote the same
// (kind, key) wins; the insert is silently skipped.
func (s *DigestStore) Save(ctx context.Context, record domain.DigestRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO digest_records (kind, period_key, item_count, narrative, remote_page_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, period_key) DO NOTHING
	`, string(record.Kind), record.PeriodKey, record.ItemCount, record.Narrative,
		record.RemotePageID, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("save digest %s/%s: %w", record.Kind, record.PeriodKey, err)
	}
	return nil
}

// SetRemotePageID stores the remote page id after a successful best-effort
// publication of an already-persisted digest.
func (s *DigestStore) SetRemotePageID(ctx context.Context, kind domain.PeriodKind, key, pageID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE digest_records SET remote_page_id = ? WHERE kind = ? AND period_key = ?",
		pageID, string(kind), key,
	)
	if err != nil {
		return fmt.Errorf("set digest page id %s/%s: %w", kind, key, err)
	}
	return nil
}

// Find loads one digest row, or nil when the period has no record.
func (s *DigestStore) Find(ctx context.Context, kind domain.PeriodKind, key string) (*domain.DigestRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT kind, period_key, item_count, narrative, remote_page_id, created_at
		FROM digest_records WHERE kind = ? AND period_key = ?
	`, string(kind), key)

	var (
		record    domain.DigestRecord
		kindStr   string
		createdAt string
	)
	err := row.Scan(&kindStr, &record.PeriodKey, &record.ItemCount,
		&record.Narrative, &record.RemotePageID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find digest %s/%s: %w", kind, key, err)
	}

	record.Kind = domain.PeriodKind(kindStr)
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &record, nil
}

// Count returns the total number of digest rows, for the status command.
func (s *DigestStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM digest_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("count digests: %w", err)
	}
	return count, nil
}
