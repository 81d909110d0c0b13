package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinWire/internal/domain"
)

func newPipelineForTest(s testStores, source *fakeFeedSource, texts *fakeTextService, dest *fakeDestination) *Pipeline {
	logger := testLogger()
	gate := testGate()
	policy := testPolicy()

	ingest := NewIngest(source, &fakeExtractor{}, s.items, s.ledger, gate, logger, 50)
	filterStage := NewFilter(testFilterTable(), s.ledger, logger, 50)
	summarize := NewSummarize(texts, s.summaries, s.ledger, gate, policy, logger, "You summarize news.", 2, 50)
	publish := NewPublish(dest, s.syncs, s.summaries, s.ledger, gate, policy, logger, 50)
	digest := NewDigest(s.digests, s.syncs, s.items, s.summaries, texts, dest, gate, policy, logger,
		[]domain.PeriodKind{domain.PeriodDay}, 100, time.UTC)
	digest.now = func() time.Time { return digestNow }

	return NewPipeline(ingest, filterStage, summarize, publish, digest, logger)
}

func TestPipelineEndToEnd(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	source := &fakeFeedSource{candidates: []domain.CandidateItem{
		testCandidate("NVIDIA unveils new AI chip", "https://news.example.com/a"),
		testCandidate("Local bakery wins pie contest", "https://news.example.com/b"),
	}}
	texts := &fakeTextService{text: "One-liner.\n\nThe details.", tokens: 40}
	dest := &fakeDestination{}

	stats := newPipelineForTest(s, source, texts, dest).Run(ctx, RunOptions{})

	assert.Equal(t, 2, stats.Ingested)
	assert.Equal(t, 1, stats.Filtered, "only the relevant story passes")
	assert.Equal(t, 1, stats.Summarized)
	assert.Equal(t, 1, stats.Published)
	assert.Zero(t, stats.Errors)

	// One item page plus one digest page.
	assert.Equal(t, 2, dest.pageCount())
}

func TestPipelineSecondRunIsIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	source := &fakeFeedSource{candidates: []domain.CandidateItem{
		testCandidate("NVIDIA unveils new AI chip", "https://news.example.com/a"),
	}}
	texts := &fakeTextService{text: "One-liner.\n\nThe details.", tokens: 40}
	dest := &fakeDestination{}
	pipeline := newPipelineForTest(s, source, texts, dest)

	first := pipeline.Run(ctx, RunOptions{})
	require.Equal(t, 1, first.Published)

	second := pipeline.Run(ctx, RunOptions{})
	assert.Zero(t, second.Ingested)
	assert.Zero(t, second.Filtered)
	assert.Zero(t, second.Summarized)
	assert.Zero(t, second.Published)
	assert.Zero(t, second.Errors)
	assert.Equal(t, 2, dest.pageCount(), "no new remote pages on the second pass")
}

func TestPipelineIngestFailureIsContained(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	source := &fakeFeedSource{err: assert.AnError}
	texts := &fakeTextService{text: "One-liner.", tokens: 10}
	dest := &fakeDestination{}

	stats := newPipelineForTest(s, source, texts, dest).Run(ctx, RunOptions{})

	assert.Equal(t, 1, stats.Errors)
	assert.Zero(t, stats.Ingested)
}

func TestPipelineSkipFlags(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	source := &fakeFeedSource{candidates: []domain.CandidateItem{
		testCandidate("NVIDIA unveils new AI chip", "https://news.example.com/a"),
	}}
	texts := &fakeTextService{text: "One-liner.", tokens: 10}
	dest := &fakeDestination{}

	stats := newPipelineForTest(s, source, texts, dest).Run(ctx, RunOptions{
		SkipSummarize: true,
		SkipPublish:   true,
		SkipDigest:    true,
	})

	assert.Equal(t, 1, stats.Ingested)
	assert.Equal(t, 1, stats.Filtered)
	assert.Zero(t, stats.Summarized)
	assert.Zero(t, stats.Published)
	assert.Zero(t, dest.pageCount())

	// The filtered item is parked at summarize eligibility, ready for the
	// next run to pick up.
	eligible, err := s.ledger.ItemsEligibleFor(ctx, domain.StageSummarized, 10)
	require.NoError(t, err)
	assert.Len(t, eligible, 1)
}
