package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"FinWire/internal/domain"
	"FinWire/internal/ports"
	"FinWire/internal/retry"
)

// destinationFields are the database properties every published page fills.
var destinationFields = []string{"Name", "Source", "URL", "Published"}

// Publish pushes summarized items to the destination. The sync record is the
// idempotency guard: an item with one is never sent again, so a crash between
// the remote call and the ledger write cannot produce a duplicate page.
type Publish struct {
	dest      ports.Destination
	syncs     ports.SyncStore
	summaries ports.SummaryStore
	ledger    ports.StageLedger
	gate      *retry.Gate
	policy    retry.Policy
	logger    *slog.Logger
	maxItems  int

	schemaReady bool
}

// NewPublish wires the publication stage.
func NewPublish(
	dest ports.Destination,
	syncs ports.SyncStore,
	summaries ports.SummaryStore,
	ledger ports.StageLedger,
	gate *retry.Gate,
	policy retry.Policy,
	logger *slog.Logger,
	maxItems int,
) *Publish {
	return &Publish{
		dest:      dest,
		syncs:     syncs,
		summaries: summaries,
		ledger:    ledger,
		gate:      gate,
		policy:    policy,
		logger:    logger,
		maxItems:  maxItems,
	}
}

// Run publishes every eligible item sequentially, paced by the gate.
func (u *Publish) Run(ctx context.Context) (int, error) {
	items, err := u.ledger.ItemsEligibleFor(ctx, domain.StagePublished, u.maxItems)
	if err != nil {
		return 0, fmt.Errorf("eligible items: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	if err := u.ensureSchema(ctx); err != nil {
		return 0, fmt.Errorf("ensure destination schema: %w", err)
	}

	published := 0
	for _, item := range items {
		if u.publishOne(ctx, item) {
			published++
		}
	}

	u.logger.Info("publish done", "eligible", len(items), "published", published)
	return published, nil
}

func (u *Publish) ensureSchema(ctx context.Context) error {
	if u.schemaReady {
		return nil
	}
	if err := u.dest.EnsureSchema(ctx, destinationFields); err != nil {
		return err
	}
	u.schemaReady = true
	return nil
}

// publishOne sends a single item and reports whether it ended in success.
// Failures are parked on the ledger, never returned.
func (u *Publish) publishOne(ctx context.Context, item domain.Item) bool {
	synced, err := u.syncs.Exists(ctx, item.ID)
	if err != nil {
		u.logger.Error("check sync record", "id", item.ID, "error", err)
		return false
	}
	if synced {
		// Already delivered in an earlier run that crashed before the
		// ledger write. Close the gap without calling the destination.
		if err := u.ledger.Record(ctx, item.ID, domain.StagePublished, domain.OutcomeSuccess, ""); err != nil {
			u.logger.Error("record publish success", "id", item.ID, "error", err)
			return false
		}
		return true
	}

	content := item.Body
	if summary, err := u.summaries.FindByItemID(ctx, item.ID); err != nil {
		u.logger.Error("load summary", "id", item.ID, "error", err)
	} else if summary != nil && summary.Long != "" {
		content = summary.Long
	}

	props := map[string]string{
		"Name":      item.Title,
		"Source":    item.Source,
		"URL":       item.SourceURL,
		"Published": item.PublishedAt.UTC().Format(time.RFC3339),
	}

	var pageID string
	err = retry.Do(ctx, u.policy, func(ctx context.Context) error {
		if err := u.gate.Acquire(ctx); err != nil {
			return retry.Permanent{Err: err}
		}
		var callErr error
		pageID, callErr = u.dest.CreatePage(ctx, props, content)
		return callErr
	})
	if err != nil {
		u.logger.Warn("publish failed", "id", item.ID, "error", err)
		if recErr := u.ledger.Record(ctx, item.ID, domain.StagePublished, domain.OutcomeFailed, err.Error()); recErr != nil {
			u.logger.Error("record publish failure", "id", item.ID, "error", recErr)
		}
		return false
	}

	// Order matters: the sync record lands first so a crash here leaves a
	// recoverable state instead of a future duplicate page.
	record := domain.SyncRecord{
		ItemID:       item.ID,
		RemotePageID: pageID,
		SyncedAt:     time.Now().UTC(),
	}
	if err := u.syncs.Save(ctx, record); err != nil {
		u.logger.Error("save sync record", "id", item.ID, "error", err)
		return false
	}

	if err := u.ledger.Record(ctx, item.ID, domain.StagePublished, domain.OutcomeSuccess, ""); err != nil {
		u.logger.Error("record publish success", "id", item.ID, "error", err)
		return false
	}
	return true
}
