package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Item is a core entity describing one ingested news item.
type Item struct {
	ID          string
	Title       string
	SourceURL   string
	Body        string
	Source      string
	PublishedAt time.Time
	IngestedAt  time.Time
}

// CandidateItem is a raw item as delivered by a feed source, before storage.
type CandidateItem struct {
	Title       string
	URL         string
	Source      string
	PublishedAt time.Time
	RawContent  string
}

// Stage enumerates the fixed processing sequence.
type Stage string

const (
	StageIngested   Stage = "ingested"
	StageFiltered   Stage = "filtered"
	StageSummarized Stage = "summarized"
	StagePublished  Stage = "published"
)

// Stages lists all stages in processing order.
func Stages() []Stage {
	return []Stage{StageIngested, StageFiltered, StageSummarized, StagePublished}
}

// Prev returns the stage preceding s, or empty for the first stage.
func (s Stage) Prev() Stage {
	all := Stages()
	for i, stage := range all {
		if stage == s && i > 0 {
			return all[i-1]
		}
	}
	return ""
}

// Outcome is the result of one stage attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// StageEvent is one append-only ledger row: a single (item, stage, attempt).
type StageEvent struct {
	ItemID      string
	Stage       Stage
	Outcome     Outcome
	ErrorDetail string
	OccurredAt  time.Time
}

// Summary holds the generated short/long summaries for an item.
type Summary struct {
	ItemID     string
	Short      string
	Long       string
	TokensUsed int
	UpdatedAt  time.Time
}

// SyncRecord marks an item as published remotely. Its existence is the
// authoritative idempotency check before calling the destination service.
type SyncRecord struct {
	ItemID       string
	RemotePageID string
	SyncedAt     time.Time
}

// PeriodKind enumerates digest windows.
type PeriodKind string

const (
	PeriodDay   PeriodKind = "day"
	PeriodWeek  PeriodKind = "week"
	PeriodMonth PeriodKind = "month"
)

// DigestRecord is the single digest row per (kind, period key).
type DigestRecord struct {
	Kind         PeriodKind
	PeriodKey    string
	ItemCount    int
	Narrative    string
	RemotePageID string
	CreatedAt    time.Time
}

// RunStats aggregates the outcome of one batch run.
type RunStats struct {
	Ingested   int
	Filtered   int
	Summarized int
	Published  int
	Errors     int
	Duration   time.Duration
}

// ItemID derives the content-based identifier from the normalized title and
// the published timestamp. The same logical item always hashes to the same id
// regardless of title casing or whitespace, so re-ingestion is a no-op.
func ItemID(title string, publishedAt time.Time) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	h := sha256.Sum256([]byte(normalized + "\n" + publishedAt.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(h[:16])
}
