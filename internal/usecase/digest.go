package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"FinWire/internal/domain"
	"FinWire/internal/ports"
	"FinWire/internal/retry"
)

const digestMaxTokens = 800

// Digest aggregates published items into one record per (kind, period key).
// The record is persisted before the remote page is attempted, so a remote
// failure never loses the digest; the page id is patched in when it works.
type Digest struct {
	digests   ports.DigestStore
	syncs     ports.SyncStore
	items     ports.ItemStore
	summaries ports.SummaryStore
	texts     ports.TextService
	dest      ports.Destination
	gate      *retry.Gate
	policy    retry.Policy
	logger    *slog.Logger
	kinds     []domain.PeriodKind
	maxItems  int
	location  *time.Location

	now func() time.Time
}

// NewDigest wires the digest stage.
func NewDigest(
	digests ports.DigestStore,
	syncs ports.SyncStore,
	items ports.ItemStore,
	summaries ports.SummaryStore,
	texts ports.TextService,
	dest ports.Destination,
	gate *retry.Gate,
	policy retry.Policy,
	logger *slog.Logger,
	kinds []domain.PeriodKind,
	maxItems int,
	location *time.Location,
) *Digest {
	if location == nil {
		location = time.UTC
	}
	if maxItems <= 0 {
		maxItems = 100
	}
	return &Digest{
		digests:   digests,
		syncs:     syncs,
		items:     items,
		summaries: summaries,
		texts:     texts,
		dest:      dest,
		gate:      gate,
		policy:    policy,
		logger:    logger,
		kinds:     kinds,
		maxItems:  maxItems,
		location:  location,
		now:       time.Now,
	}
}

// Run produces any digests whose period key has no record yet. Existing
// records make the whole kind a no-op, so re-runs are free.
func (u *Digest) Run(ctx context.Context) (int, error) {
	created := 0
	for _, kind := range u.kinds {
		key, from, to := periodWindow(kind, u.now().In(u.location))

		exists, err := u.digests.Exists(ctx, kind, key)
		if err != nil {
			return created, fmt.Errorf("check digest %s/%s: %w", kind, key, err)
		}
		if exists {
			continue
		}

		if err := u.buildDigest(ctx, kind, key, from, to); err != nil {
			return created, fmt.Errorf("build digest %s/%s: %w", kind, key, err)
		}
		created++
	}
	return created, nil
}

func (u *Digest) buildDigest(ctx context.Context, kind domain.PeriodKind, key string, from, to time.Time) error {
	records, err := u.syncs.FindSyncedBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("find synced items: %w", err)
	}

	narrative := u.narrative(ctx, kind, key, records)

	digest := domain.DigestRecord{
		Kind:      kind,
		PeriodKey: key,
		ItemCount: len(records),
		Narrative: narrative,
		CreatedAt: time.Now().UTC(),
	}
	if err := u.digests.Save(ctx, digest); err != nil {
		return fmt.Errorf("save digest: %w", err)
	}

	u.publishDigest(ctx, digest)

	u.logger.Info("digest created", "kind", kind, "period", key, "items", len(records))
	return nil
}

// narrative asks the completion service for a period overview, falling back
// to a plain count line when the call fails or there is nothing to say.
func (u *Digest) narrative(ctx context.Context, kind domain.PeriodKind, key string, records []domain.SyncRecord) string {
	fallback := fmt.Sprintf("%d items published in %s period %s.", len(records), kind, key)
	if len(records) == 0 {
		return fallback
	}

	lines := u.itemLines(ctx, records)
	if len(lines) == 0 {
		return fallback
	}

	prompt := fmt.Sprintf(
		"Write a short narrative digest of the news published in the %s period %s. Items:\n%s",
		kind, key, strings.Join(lines, "\n"))

	var text string
	err := retry.Do(ctx, u.policy, func(ctx context.Context) error {
		if err := u.gate.Acquire(ctx); err != nil {
			return retry.Permanent{Err: err}
		}
		var callErr error
		text, _, callErr = u.texts.Complete(ctx, "You write concise news digests.", prompt, digestMaxTokens)
		return callErr
	})
	if err != nil || strings.TrimSpace(text) == "" {
		u.logger.Warn("digest narrative failed, using fallback",
			"kind", kind, "period", key, "error", err)
		return fallback
	}
	return strings.TrimSpace(text)
}

// itemLines builds the narrative context: one line per synced item, its title
// joined with its short summary when one exists.
func (u *Digest) itemLines(ctx context.Context, records []domain.SyncRecord) []string {
	var lines []string
	for _, record := range records {
		if len(lines) >= u.maxItems {
			break
		}
		item, err := u.items.FindByID(ctx, record.ItemID)
		if err != nil || item == nil {
			continue
		}

		line := "- " + item.Title
		if summary, err := u.summaries.FindByItemID(ctx, record.ItemID); err != nil {
			u.logger.Warn("load summary for digest", "id", record.ItemID, "error", err)
		} else if summary != nil && summary.Short != "" {
			line += ": " + summary.Short
		}
		lines = append(lines, line)
	}
	return lines
}

// publishDigest pushes the digest page best effort, paced by the same gate as
// every other destination call. The record already sits in storage, so any
// failure here only costs the remote copy.
func (u *Digest) publishDigest(ctx context.Context, digest domain.DigestRecord) {
	props := map[string]string{
		"Name":   fmt.Sprintf("Digest %s %s", digest.Kind, digest.PeriodKey),
		"Source": "digest",
	}

	var pageID string
	err := retry.Do(ctx, u.policy, func(ctx context.Context) error {
		if err := u.gate.Acquire(ctx); err != nil {
			return retry.Permanent{Err: err}
		}
		var callErr error
		pageID, callErr = u.dest.CreatePage(ctx, props, digest.Narrative)
		return callErr
	})
	if err != nil {
		u.logger.Warn("digest page not published",
			"kind", digest.Kind, "period", digest.PeriodKey, "error", err)
		return
	}

	if err := u.digests.SetRemotePageID(ctx, digest.Kind, digest.PeriodKey, pageID); err != nil {
		u.logger.Error("store digest page id",
			"kind", digest.Kind, "period", digest.PeriodKey, "error", err)
	}
}

// periodWindow resolves the period key and its half-open [from, to) bounds.
// Day covers today; week covers the previous ISO week keyed by its Monday;
// month covers the previous calendar month.
func periodWindow(kind domain.PeriodKind, now time.Time) (string, time.Time, time.Time) {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch kind {
	case domain.PeriodWeek:
		weekday := int(today.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		thisMonday := today.AddDate(0, 0, 1-weekday)
		prevMonday := thisMonday.AddDate(0, 0, -7)
		return prevMonday.Format("2006-01-02"), prevMonday, thisMonday

	case domain.PeriodMonth:
		thisFirst := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		prevFirst := thisFirst.AddDate(0, -1, 0)
		return prevFirst.Format("2006-01"), prevFirst, thisFirst

	default:
		return today.Format("2006-01-02"), today, today.AddDate(0, 0, 1)
	}
}
