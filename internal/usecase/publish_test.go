package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinWire/internal/domain"
)

func newPublishForTest(s testStores, dest *fakeDestination) *Publish {
	return NewPublish(dest, s.syncs, s.summaries, s.ledger, testGate(), testPolicy(), testLogger(), 50)
}

func TestPublishCreatesPageAndSyncRecord(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	item := newsItem("NVIDIA unveils new AI chip", time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	seedThrough(t, s, item, domain.StageSummarized)

	dest := &fakeDestination{}
	count, err := newPublishForTest(s, dest).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, dest.pageCount())

	synced, err := s.syncs.Exists(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, synced)

	outcome, err := s.ledger.LatestOutcome(ctx, item.ID, domain.StagePublished)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, outcome)
}

func TestPublishSkipsAlreadySyncedItem(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	item := newsItem("NVIDIA unveils new AI chip", time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	seedThrough(t, s, item, domain.StageSummarized)

	// Simulate a crash after the remote call landed but before the ledger
	// write: the sync record exists, the published success does not.
	require.NoError(t, s.syncs.Save(ctx, domain.SyncRecord{
		ItemID:       item.ID,
		RemotePageID: "page-existing",
		SyncedAt:     time.Now().UTC(),
	}))

	dest := &fakeDestination{}
	count, err := newPublishForTest(s, dest).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Zero(t, dest.pageCount(), "no second remote page for a synced item")

	outcome, err := s.ledger.LatestOutcome(ctx, item.ID, domain.StagePublished)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, outcome)
}

func TestPublishFailureParksItem(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	item := newsItem("NVIDIA unveils new AI chip", time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	seedThrough(t, s, item, domain.StageSummarized)

	dest := &fakeDestination{createErr: assert.AnError}
	count, err := newPublishForTest(s, dest).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	synced, err := s.syncs.Exists(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, synced, "no sync record without a remote page")

	outcome, err := s.ledger.LatestOutcome(ctx, item.ID, domain.StagePublished)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, outcome)
}

func TestPublishEnsuresSchemaOncePerInstance(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	at := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	first := newsItem("NVIDIA unveils new AI chip", at)
	seedThrough(t, s, first, domain.StageSummarized)

	dest := &fakeDestination{}
	uc := newPublishForTest(s, dest)

	_, err := uc.Run(ctx)
	require.NoError(t, err)

	second := newsItem("OpenAI raises funding", at.Add(time.Minute))
	seedThrough(t, s, second, domain.StageSummarized)

	_, err = uc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, dest.schemaCalls)
}

func TestPublishPrefersLongSummaryAsContent(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	item := newsItem("NVIDIA unveils new AI chip", time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))
	seedThrough(t, s, item, domain.StageSummarized)
	require.NoError(t, s.summaries.Upsert(ctx, domain.Summary{
		ItemID:    item.ID,
		Short:     "Chip launched.",
		Long:      "Chip launched.\n\nFull details here.",
		UpdatedAt: time.Now().UTC(),
	}))

	dest := &fakeDestination{}
	count, err := newPublishForTest(s, dest).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	props := dest.pages[0]
	assert.Equal(t, item.Title, props["Name"])
	assert.Equal(t, item.SourceURL, props["URL"])
	assert.Equal(t, "tech-wire", props["Source"])
}
