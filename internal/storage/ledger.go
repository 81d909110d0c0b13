package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"FinWire/internal/domain"
	"FinWire/internal/ports"
)

// LedgerStore is the append-only stage ledger. An item's pipeline position is
// always derived from these rows; there is no mutable status column anywhere.
type LedgerStore struct {
	db *sql.DB
}

var _ ports.StageLedger = (*LedgerStore)(nil)

// NewLedgerStore wires an already-opened and migrated database.
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Record appends one stage-completion event. A second success for the same
// (item, stage) violates the partial unique index and is reported as an error.
func (s *LedgerStore) Record(ctx context.Context, itemID string, stage domain.Stage, outcome domain.Outcome, errorDetail string) error {
	query, args, err := builder.
		Insert("stage_events").
		Columns("item_id", "stage", "outcome", "error_detail", "occurred_at").
		Values(itemID, string(stage), string(outcome), errorDetail, formatTime(time.Now())).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record %s/%s for %s: %w", stage, outcome, itemID, err)
	}
	return nil
}

// ItemsEligibleFor returns the items that need processing at the given stage.
// For the first stage these are items with no ledger rows at all. For a later
// stage N they are items with a success at stage N-1 and zero rows of any
// outcome at stage N: a failed or skipped attempt parks the item until an
// explicit requeue.
func (s *LedgerStore) ItemsEligibleFor(ctx context.Context, stage domain.Stage, limit int) ([]domain.Item, error) {
	if limit <= 0 {
		limit = 100
	}

	sel := itemSelect().
		Where(sq.Expr(
			"NOT EXISTS (SELECT 1 FROM stage_events cur WHERE cur.item_id = items.id AND cur.stage = ?)",
			string(stage),
		))

	if prev := stage.Prev(); prev != "" {
		sel = sel.Where(sq.Expr(
			"EXISTS (SELECT 1 FROM stage_events prev WHERE prev.item_id = items.id AND prev.stage = ? AND prev.outcome = 'success')",
			string(prev),
		))
	} else {
		sel = sel.Where(sq.Expr(
			"NOT EXISTS (SELECT 1 FROM stage_events any_event WHERE any_event.item_id = items.id)",
		))
	}

	query, args, err := sel.
		OrderBy("published_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build eligibility query: %w", err)
	}

	return queryItems(ctx, s.db, query, args...)
}

// LatestOutcome returns the most recent outcome at a stage, or "" when the
// item has no events there.
func (s *LedgerStore) LatestOutcome(ctx context.Context, itemID string, stage domain.Stage) (domain.Outcome, error) {
	var outcome string
	err := s.db.QueryRowContext(ctx, `
		SELECT outcome FROM stage_events
		WHERE item_id = ? AND stage = ?
		ORDER BY id DESC LIMIT 1
	`, itemID, string(stage)).Scan(&outcome)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest outcome: %w", err)
	}
	return domain.Outcome(outcome), nil
}

// Requeue clears non-success events at the given stage and every later stage,
// making a parked item eligible again. This is the single sanctioned
// exception to the ledger's append-only rule, reachable only through the
// operator-facing requeue command.
func (s *LedgerStore) Requeue(ctx context.Context, itemID string, stage domain.Stage) error {
	stages := domain.Stages()
	var clear []string
	found := false
	for _, st := range stages {
		if st == stage {
			found = true
		}
		if found {
			clear = append(clear, string(st))
		}
	}
	if !found {
		return fmt.Errorf("unknown stage %q", stage)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(clear)), ", ")
	args := make([]any, 0, len(clear)+1)
	args = append(args, itemID)
	for _, st := range clear {
		args = append(args, st)
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM stage_events
		WHERE item_id = ? AND stage IN (%s) AND outcome != 'success'
	`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("requeue %s at %s: %w", itemID, stage, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item %s has no failed or skipped events at or after stage %s", itemID, stage)
	}
	return nil
}

// StageCounts returns, per stage, how many items currently hold a success
// event there. Used by the status command.
func (s *LedgerStore) StageCounts(ctx context.Context) (map[domain.Stage]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, COUNT(*) FROM stage_events
		WHERE outcome = 'success'
		GROUP BY stage
	`)
	if err != nil {
		return nil, fmt.Errorf("stage counts: %w", err)
	}
	defer rows.Close()

	counts := map[domain.Stage]int{}
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, fmt.Errorf("scan stage count: %w", err)
		}
		counts[domain.Stage(stage)] = count
	}
	return counts, rows.Err()
}

// FailedItems lists item ids currently parked at the given stage, for
// operator inspection before a requeue.
func (s *LedgerStore) FailedItems(ctx context.Context, stage domain.Stage) ([]domain.StageEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.item_id, e.outcome, e.error_detail, e.occurred_at
		FROM stage_events e
		WHERE e.stage = ? AND e.outcome != 'success'
		  AND NOT EXISTS (
			SELECT 1 FROM stage_events ok
			WHERE ok.item_id = e.item_id AND ok.stage = e.stage AND ok.outcome = 'success'
		  )
		ORDER BY e.occurred_at DESC
	`, string(stage))
	if err != nil {
		return nil, fmt.Errorf("failed items: %w", err)
	}
	defer rows.Close()

	var events []domain.StageEvent
	for rows.Next() {
		var ev domain.StageEvent
		var occurredAt string
		if err := rows.Scan(&ev.ItemID, &ev.Outcome, &ev.ErrorDetail, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Stage = stage
		if ev.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
