package ports

import (
	"context"
	"time"

	"FinWire/internal/domain"
)

// FeedSource pulls candidate items from upstream feeds.
type FeedSource interface {
	FetchCandidates(ctx context.Context) ([]domain.CandidateItem, error)
}

// ContentExtractor backfills full-text bodies for items that arrived without one.
type ContentExtractor interface {
	ExtractBody(ctx context.Context, url string) (string, error)
}

// TextService is the external completion API used for summaries and digest
// narratives. Fallible and retryable; the caller owns the retry policy.
type TextService interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (text string, tokensUsed int, err error)
}

// Destination creates remote pages for published items and digests.
type Destination interface {
	EnsureSchema(ctx context.Context, requiredFields []string) error
	CreatePage(ctx context.Context, properties map[string]string, content string) (pageID string, err error)
}

// ItemStore persists ingested items and their bodies.
type ItemStore interface {
	Upsert(ctx context.Context, item domain.Item) error
	ExistsByURL(ctx context.Context, url string) (bool, error)
	FindByID(ctx context.Context, id string) (*domain.Item, error)
	UpdateBody(ctx context.Context, id, body string) error
	FindNeedingBody(ctx context.Context, limit int) ([]domain.Item, error)
}

// StageLedger is the append-only log of stage outcomes, the single source of
// truth for an item's position in the pipeline.
type StageLedger interface {
	Record(ctx context.Context, itemID string, stage domain.Stage, outcome domain.Outcome, errorDetail string) error
	ItemsEligibleFor(ctx context.Context, stage domain.Stage, limit int) ([]domain.Item, error)
	LatestOutcome(ctx context.Context, itemID string, stage domain.Stage) (domain.Outcome, error)
	Requeue(ctx context.Context, itemID string, stage domain.Stage) error
}

// SummaryStore persists generated summaries, latest write wins.
type SummaryStore interface {
	Upsert(ctx context.Context, summary domain.Summary) error
	FindByItemID(ctx context.Context, itemID string) (*domain.Summary, error)
}

// SyncStore records which items have been published remotely.
type SyncStore interface {
	Exists(ctx context.Context, itemID string) (bool, error)
	Save(ctx context.Context, record domain.SyncRecord) error
	FindSyncedBetween(ctx context.Context, from, to time.Time) ([]domain.SyncRecord, error)
}

// DigestStore persists one digest per (kind, period key).
type DigestStore interface {
	Exists(ctx context.Context, kind domain.PeriodKind, key string) (bool, error)
	Save(ctx context.Context, record domain.DigestRecord) error
	SetRemotePageID(ctx context.Context, kind domain.PeriodKind, key, pageID string) error
}
