package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"FinWire/internal/domain"
	"FinWire/internal/filter"
	"FinWire/internal/ports"
)

// Filter applies the weighted keyword table to ingested items. Items below
// the threshold are marked skipped and never advance; nothing is deleted.
type Filter struct {
	table    *filter.Table
	ledger   ports.StageLedger
	logger   *slog.Logger
	maxItems int
}

// NewFilter wires the relevance stage.
func NewFilter(table *filter.Table, ledger ports.StageLedger, logger *slog.Logger, maxItems int) *Filter {
	return &Filter{
		table:    table,
		ledger:   ledger,
		logger:   logger,
		maxItems: maxItems,
	}
}

// Run scores every eligible item and records the verdict. The stage is
// deterministic, so only storage errors can fail it.
func (u *Filter) Run(ctx context.Context) (int, error) {
	items, err := u.ledger.ItemsEligibleFor(ctx, domain.StageFiltered, u.maxItems)
	if err != nil {
		return 0, fmt.Errorf("eligible items: %w", err)
	}

	matched := 0
	for _, item := range items {
		res := u.table.Match(item.Title, item.Body)

		outcome := domain.OutcomeSkipped
		if res.Matched {
			outcome = domain.OutcomeSuccess
			matched++
		}

		if err := u.ledger.Record(ctx, item.ID, domain.StageFiltered, outcome, ""); err != nil {
			return matched, fmt.Errorf("record filter verdict %s: %w", item.ID, err)
		}

		u.logger.Debug("filter verdict",
			"id", item.ID,
			"matched", res.Matched,
			"score", res.Score,
			"keywords", res.Keywords)
	}

	u.logger.Info("filter done", "scored", len(items), "matched", matched)
	return matched, nil
}
