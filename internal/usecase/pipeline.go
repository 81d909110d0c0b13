package usecase

import (
	"context"
	"log/slog"
	"time"

	"FinWire/internal/domain"
)

// RunOptions selects which stages a pipeline run executes.
type RunOptions struct {
	SkipIngest    bool
	SkipFilter    bool
	SkipSummarize bool
	SkipPublish   bool
	SkipDigest    bool
}

// Pipeline runs the stages in their fixed order. A stage that fails wholesale
// is counted and logged, and the run moves on; downstream stages simply find
// fewer eligible items.
type Pipeline struct {
	ingest    *Ingest
	filter    *Filter
	summarize *Summarize
	publish   *Publish
	digest    *Digest
	logger    *slog.Logger
}

// NewPipeline assembles the full pipeline.
func NewPipeline(
	ingest *Ingest,
	filter *Filter,
	summarize *Summarize,
	publish *Publish,
	digest *Digest,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		ingest:    ingest,
		filter:    filter,
		summarize: summarize,
		publish:   publish,
		digest:    digest,
		logger:    logger,
	}
}

// Run executes one batch pass and reports per-stage counts.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) domain.RunStats {
	started := time.Now()
	var stats domain.RunStats

	if !opts.SkipIngest {
		stats.Ingested = p.runStage(ctx, "ingest", &stats, p.ingest.Run)
	}
	if !opts.SkipFilter {
		stats.Filtered = p.runStage(ctx, "filter", &stats, p.filter.Run)
	}
	if !opts.SkipSummarize {
		stats.Summarized = p.runStage(ctx, "summarize", &stats, p.summarize.Run)
	}
	if !opts.SkipPublish {
		stats.Published = p.runStage(ctx, "publish", &stats, p.publish.Run)
	}
	if !opts.SkipDigest {
		p.runStage(ctx, "digest", &stats, p.digest.Run)
	}

	stats.Duration = time.Since(started)
	p.logger.Info("pipeline run done",
		"ingested", stats.Ingested,
		"filtered", stats.Filtered,
		"summarized", stats.Summarized,
		"published", stats.Published,
		"errors", stats.Errors,
		"duration", stats.Duration)
	return stats
}

func (p *Pipeline) runStage(ctx context.Context, name string, stats *domain.RunStats, run func(context.Context) (int, error)) int {
	count, err := run(ctx)
	if err != nil {
		p.logger.Error("stage failed", "stage", name, "error", err)
		stats.Errors++
	}
	return count
}
