package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinWire/internal/domain"
	"FinWire/internal/ports"
)

// SummaryStore persists generated summaries, one row per item, latest write wins.
type SummaryStore struct {
	db *sql.DB
}

var _ ports.SummaryStore = (*SummaryStore)(nil)

// NewSummaryStore wires an already-opened and migrated database.
func NewSummaryStore(db *sql.DB) *SummaryStore {
	return &SummaryStore{db: db}
}

// Upsert writes the summary, replacing any previous one for the item.
func (s *SummaryStore) Upsert(ctx context.Context, summary domain.Summary) error {
	updatedAt := summary.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (item_id, short_text, long_text, tokens_used, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			short_text = excluded.short_text,
			long_text = excluded.long_text,
			tokens_used = excluded.tokens_used,
			updated_at = excluded.updated_at
	`, summary.ItemID, summary.Short, summary.Long, summary.TokensUsed, formatTime(updatedAt))
	if err != nil {
		return fmt.Errorf("upsert summary for %s: %w", summary.ItemID, err)
	}
	return nil
}

// FindByItemID returns the item's summary or nil when none exists.
func (s *SummaryStore) FindByItemID(ctx context.Context, itemID string) (*domain.Summary, error) {
	var summary domain.Summary
	var updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT item_id, short_text, long_text, tokens_used, updated_at
		FROM summaries WHERE item_id = ?
	`, itemID).Scan(&summary.ItemID, &summary.Short, &summary.Long, &summary.TokensUsed, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find summary for %s: %w", itemID, err)
	}

	if summary.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &summary, nil
}
