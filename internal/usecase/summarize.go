package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"FinWire/internal/domain"
	"FinWire/internal/ports"
	"FinWire/internal/retry"
)

const (
	maxPromptBodyLen = 4000
	maxShortLen      = 280
	summaryMaxTokens = 500
)

// Summarize generates summaries for filtered items through the completion
// service. Each item is retried independently; an item whose retries are
// exhausted is parked with a failed event and the run continues.
type Summarize struct {
	texts        ports.TextService
	summaries    ports.SummaryStore
	ledger       ports.StageLedger
	gate         *retry.Gate
	policy       retry.Policy
	logger       *slog.Logger
	systemPrompt string
	workers      int
	maxItems     int
}

// NewSummarize wires the summarization stage.
func NewSummarize(
	texts ports.TextService,
	summaries ports.SummaryStore,
	ledger ports.StageLedger,
	gate *retry.Gate,
	policy retry.Policy,
	logger *slog.Logger,
	systemPrompt string,
	workers int,
	maxItems int,
) *Summarize {
	if workers <= 0 {
		workers = 2
	}
	return &Summarize{
		texts:        texts,
		summaries:    summaries,
		ledger:       ledger,
		gate:         gate,
		policy:       policy,
		logger:       logger,
		systemPrompt: systemPrompt,
		workers:      workers,
		maxItems:     maxItems,
	}
}

// Run summarizes every eligible item with a bounded worker pool.
func (u *Summarize) Run(ctx context.Context) (int, error) {
	items, err := u.ledger.ItemsEligibleFor(ctx, domain.StageSummarized, u.maxItems)
	if err != nil {
		return 0, fmt.Errorf("eligible items: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	var (
		mu        sync.Mutex
		succeeded int
		wg        sync.WaitGroup
	)

	jobs := make(chan domain.Item)
	for i := 0; i < u.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				if u.summarizeOne(ctx, item) {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}
		}()
	}

	for _, item := range items {
		jobs <- item
	}
	close(jobs)
	wg.Wait()

	u.logger.Info("summarize done", "eligible", len(items), "succeeded", succeeded)
	return succeeded, nil
}

// summarizeOne handles a single item end to end and reports whether it
// succeeded. Failures are recorded on the ledger, never returned.
func (u *Summarize) summarizeOne(ctx context.Context, item domain.Item) bool {
	var (
		text   string
		tokens int
	)

	err := retry.Do(ctx, u.policy, func(ctx context.Context) error {
		if err := u.gate.Acquire(ctx); err != nil {
			return retry.Permanent{Err: err}
		}
		var callErr error
		text, tokens, callErr = u.texts.Complete(ctx, u.systemPrompt, buildSummaryPrompt(item), summaryMaxTokens)
		return callErr
	})
	if err != nil {
		u.logger.Warn("summarize failed", "id", item.ID, "error", err)
		if recErr := u.ledger.Record(ctx, item.ID, domain.StageSummarized, domain.OutcomeFailed, err.Error()); recErr != nil {
			u.logger.Error("record summarize failure", "id", item.ID, "error", recErr)
		}
		return false
	}

	short, long := splitSummary(text)
	summary := domain.Summary{
		ItemID:     item.ID,
		Short:      short,
		Long:       long,
		TokensUsed: tokens,
		UpdatedAt:  time.Now().UTC(),
	}

	if err := u.summaries.Upsert(ctx, summary); err != nil {
		u.logger.Error("store summary", "id", item.ID, "error", err)
		if recErr := u.ledger.Record(ctx, item.ID, domain.StageSummarized, domain.OutcomeFailed, err.Error()); recErr != nil {
			u.logger.Error("record summarize failure", "id", item.ID, "error", recErr)
		}
		return false
	}

	if err := u.ledger.Record(ctx, item.ID, domain.StageSummarized, domain.OutcomeSuccess, ""); err != nil {
		u.logger.Error("record summarize success", "id", item.ID, "error", err)
		return false
	}
	return true
}

func buildSummaryPrompt(item domain.Item) string {
	body := item.Body
	if runes := []rune(body); len(runes) > maxPromptBodyLen {
		body = string(runes[:maxPromptBodyLen])
	}

	var b strings.Builder
	b.WriteString("Summarize the following news item. ")
	b.WriteString("Start with a single-sentence summary, then a blank line, then a short paragraph with the key facts.\n\n")
	b.WriteString("Title: ")
	b.WriteString(item.Title)
	if item.Source != "" {
		b.WriteString("\nSource: ")
		b.WriteString(item.Source)
	}
	if body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}
	return b.String()
}

// splitSummary separates the one-liner from the detailed part. When the model
// returns a single block, the first sentence-ish prefix becomes the short form.
func splitSummary(text string) (short, long string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}

	if head, _, ok := strings.Cut(text, "\n\n"); ok {
		return clampShort(strings.TrimSpace(head)), text
	}
	return clampShort(text), text
}

func clampShort(s string) string {
	runes := []rune(s)
	if len(runes) <= maxShortLen {
		return s
	}
	return string(runes[:maxShortLen])
}
