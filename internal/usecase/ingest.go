package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"FinWire/internal/domain"
	"FinWire/internal/ports"
	"FinWire/internal/retry"
	"FinWire/internal/storage"
)

// Ingest pulls candidates from the feed sources, stores the new ones and
// backfills article bodies for items whose feed entry carried no usable text.
type Ingest struct {
	source    ports.FeedSource
	extractor ports.ContentExtractor
	items     ports.ItemStore
	ledger    ports.StageLedger
	gate      *retry.Gate
	logger    *slog.Logger
	maxItems  int
}

// NewIngest wires the ingestion stage.
func NewIngest(
	source ports.FeedSource,
	extractor ports.ContentExtractor,
	items ports.ItemStore,
	ledger ports.StageLedger,
	gate *retry.Gate,
	logger *slog.Logger,
	maxItems int,
) *Ingest {
	return &Ingest{
		source:    source,
		extractor: extractor,
		items:     items,
		ledger:    ledger,
		gate:      gate,
		logger:    logger,
		maxItems:  maxItems,
	}
}

// Run fetches candidates, stores the ones not seen before and records an
// ingested success for each. Re-delivered items are recognized by their
// content-derived id and skipped without touching the ledger.
func (u *Ingest) Run(ctx context.Context) (int, error) {
	candidates, err := u.source.FetchCandidates(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch candidates: %w", err)
	}

	ingested := 0
	for _, c := range candidates {
		if u.maxItems > 0 && ingested >= u.maxItems {
			break
		}

		id := domain.ItemID(c.Title, c.PublishedAt)

		outcome, err := u.ledger.LatestOutcome(ctx, id, domain.StageIngested)
		if err != nil {
			return ingested, fmt.Errorf("check ledger for %s: %w", id, err)
		}
		if outcome != "" {
			continue
		}

		item := domain.Item{
			ID:          id,
			Title:       c.Title,
			SourceURL:   c.URL,
			Body:        c.RawContent,
			Source:      c.Source,
			PublishedAt: c.PublishedAt,
			IngestedAt:  time.Now().UTC(),
		}
		if err := u.items.Upsert(ctx, item); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				u.logger.Warn("url already bound to a different item, skipping",
					"url", c.URL, "id", id)
				continue
			}
			return ingested, fmt.Errorf("store item %s: %w", id, err)
		}

		if err := u.ledger.Record(ctx, id, domain.StageIngested, domain.OutcomeSuccess, ""); err != nil {
			return ingested, fmt.Errorf("record ingested %s: %w", id, err)
		}
		ingested++
	}

	u.backfillBodies(ctx)

	u.logger.Info("ingest done", "candidates", len(candidates), "ingested", ingested)
	return ingested, nil
}

// backfillBodies fetches full text for items whose feed entry was too thin.
// Extraction failures are logged and left alone; the item proceeds with its
// feed description and title only.
func (u *Ingest) backfillBodies(ctx context.Context) {
	items, err := u.items.FindNeedingBody(ctx, u.maxItems)
	if err != nil {
		u.logger.Error("find items needing body", "error", err)
		return
	}

	for _, item := range items {
		if err := u.gate.Acquire(ctx); err != nil {
			return
		}

		body, err := u.extractor.ExtractBody(ctx, item.SourceURL)
		if err != nil || body == "" {
			u.logger.Warn("body extraction failed, keeping feed text",
				"id", item.ID, "url", item.SourceURL, "error", err)
			continue
		}

		if err := u.items.UpdateBody(ctx, item.ID, body); err != nil {
			u.logger.Error("update body", "id", item.ID, "error", err)
		}
	}
}
