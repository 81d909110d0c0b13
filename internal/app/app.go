package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"FinWire/internal/config"
	"FinWire/internal/domain"
	"FinWire/internal/filter"
	"FinWire/internal/infrastructure/extract"
	"FinWire/internal/infrastructure/feeds"
	"FinWire/internal/infrastructure/llm"
	"FinWire/internal/infrastructure/notion"
	"FinWire/internal/logging"
	"FinWire/internal/retry"
	"FinWire/internal/storage"
	"FinWire/internal/usecase"
)

// App owns the wired pipeline and the stores the CLI commands need.
type App struct {
	cfg      config.Config
	db       *sql.DB
	logger   *slog.Logger
	pipeline *usecase.Pipeline

	Ledger  *storage.LedgerStore
	Digests *storage.DigestStore
}

// New loads configuration, opens storage and assembles the pipeline.
func New(cfg config.Config) (*App, error) {
	logger := logging.New(cfg.Logging.Level)

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	items := storage.NewItemStore(db)
	ledger := storage.NewLedgerStore(db)
	summaries := storage.NewSummaryStore(db)
	syncs := storage.NewSyncStore(db)
	digests := storage.NewDigestStore(db)

	source := feeds.NewRSSSource(cfg.Feeds, logger.With("component", "feeds"))
	extractor := extract.NewExtractor(&http.Client{Timeout: 20 * time.Second})
	texts := llm.NewClient(cfg.LLM)
	dest := notion.NewClient(cfg.Notion)

	policy := retry.Policy{
		MaxAttempts:  cfg.Pipeline.RetryAttempts,
		InitialDelay: cfg.Pipeline.RetryInitialWaitDuration(),
		MaxDelay:     cfg.Pipeline.RetryMaxWaitDuration(),
	}
	gate := retry.NewGate(cfg.Pipeline.CallDelayDuration())
	maxItems := cfg.Pipeline.MaxItemsPerStage

	ingest := usecase.NewIngest(source, extractor, items, ledger, gate,
		logger.With("component", "ingest"), maxItems)
	filterStage := usecase.NewFilter(filter.NewTable(cfg.Filter), ledger,
		logger.With("component", "filter"), maxItems)
	summarize := usecase.NewSummarize(texts, summaries, ledger, gate, policy,
		logger.With("component", "summarize"),
		cfg.LLM.SystemPrompt, cfg.Pipeline.WorkerCount, maxItems)
	publish := usecase.NewPublish(dest, syncs, summaries, ledger, gate, policy,
		logger.With("component", "publish"), maxItems)
	digest := usecase.NewDigest(digests, syncs, items, summaries, texts, dest, gate, policy,
		logger.With("component", "digest"),
		digestKinds(cfg.Digest.Kinds), cfg.Digest.MaxItems, cfg.Location())

	return &App{
		cfg:      cfg,
		db:       db,
		logger:   logger,
		pipeline: usecase.NewPipeline(ingest, filterStage, summarize, publish, digest, logger),
		Ledger:   ledger,
		Digests:  digests,
	}, nil
}

// Run executes one pipeline pass.
func (a *App) Run(ctx context.Context, opts usecase.RunOptions) domain.RunStats {
	return a.pipeline.Run(ctx, opts)
}

// Logger exposes the application logger for command-level output.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Close releases the database handle.
func (a *App) Close() error {
	return a.db.Close()
}

func digestKinds(names []string) []domain.PeriodKind {
	var kinds []domain.PeriodKind
	for _, name := range names {
		switch domain.PeriodKind(name) {
		case domain.PeriodDay, domain.PeriodWeek, domain.PeriodMonth:
			kinds = append(kinds, domain.PeriodKind(name))
		}
	}
	return kinds
}
