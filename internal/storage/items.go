package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"FinWire/internal/domain"
	"FinWire/internal/ports"
)

// minSubstantialBody is the body length above which an existing body is kept
// instead of being overwritten by a re-extraction.
const minSubstantialBody = 100

// ItemStore persists ingested items in SQLite.
type ItemStore struct {
	db *sql.DB
}

var _ ports.ItemStore = (*ItemStore)(nil)

// NewItemStore wires an already-opened and migrated database.
func NewItemStore(db *sql.DB) *ItemStore {
	return &ItemStore{db: db}
}

// Upsert inserts the item if its id is new and is a no-op for an existing id.
// A source URL already bound to a different id returns ErrConflict.
func (s *ItemStore) Upsert(ctx context.Context, item domain.Item) error {
	var existingID string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM items WHERE source_url = ?", item.SourceURL,
	).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		// fresh URL
	case err != nil:
		return fmt.Errorf("check source url: %w", err)
	case existingID != item.ID:
		return fmt.Errorf("%w: url %s has id %s, got %s", ErrConflict, item.SourceURL, existingID, item.ID)
	default:
		return nil
	}

	query, args, err := builder.
		Insert("items").
		Columns("id", "title", "source_url", "body", "source", "published_at", "ingested_at").
		Values(item.ID, item.Title, item.SourceURL, item.Body, item.Source,
			formatTime(item.PublishedAt), formatTime(item.IngestedAt)).
		Suffix("ON CONFLICT(id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

// ExistsByURL reports whether any item was ingested from the given URL.
func (s *ItemStore) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM items WHERE source_url = ?", url,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("exists by url: %w", err)
	}
	return count > 0, nil
}

// FindByID returns the item or nil when it does not exist.
func (s *ItemStore) FindByID(ctx context.Context, id string) (*domain.Item, error) {
	query, args, err := itemSelect().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	item, err := scanItem(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find item %s: %w", id, err)
	}
	return item, nil
}

// UpdateBody fills in extracted content. A body that is already substantial is
// kept, so a degraded re-extraction never clobbers good content.
func (s *ItemStore) UpdateBody(ctx context.Context, id, body string) error {
	query, args, err := builder.
		Update("items").
		Set("body", body).
		Where(sq.Eq{"id": id}).
		Where(fmt.Sprintf("LENGTH(body) <= %d", minSubstantialBody)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update body: %w", err)
	}
	return nil
}

// FindNeedingBody returns items whose body is still empty or trivially short,
// newest first.
func (s *ItemStore) FindNeedingBody(ctx context.Context, limit int) ([]domain.Item, error) {
	if limit <= 0 {
		limit = 50
	}

	query, args, err := itemSelect().
		Where(fmt.Sprintf("LENGTH(body) <= %d", minSubstantialBody)).
		OrderBy("published_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	return queryItems(ctx, s.db, query, args...)
}

func itemSelect() sq.SelectBuilder {
	return builder.
		Select("id", "title", "source_url", "body", "source", "published_at", "ingested_at").
		From("items")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	var item domain.Item
	var publishedAt, ingestedAt string

	if err := row.Scan(&item.ID, &item.Title, &item.SourceURL, &item.Body,
		&item.Source, &publishedAt, &ingestedAt); err != nil {
		return nil, err
	}

	var err error
	if item.PublishedAt, err = parseTime(publishedAt); err != nil {
		return nil, err
	}
	if item.IngestedAt, err = parseTime(ingestedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

func queryItems(ctx context.Context, db *sql.DB, query string, args ...any) ([]domain.Item, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
