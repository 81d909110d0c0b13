package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinWire/internal/domain"
	"FinWire/internal/retry"
)

// 2026-08-20 is a Thursday.
var digestNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func newDigestForTest(s testStores, texts *fakeTextService, dest *fakeDestination, kinds ...domain.PeriodKind) *Digest {
	d := NewDigest(s.digests, s.syncs, s.items, s.summaries, texts, dest, testGate(),
		testPolicy(), testLogger(), kinds, 100, time.UTC)
	d.now = func() time.Time { return digestNow }
	return d
}

func syncItemAt(t *testing.T, s testStores, title string, syncedAt time.Time) domain.Item {
	t.Helper()
	ctx := context.Background()
	item := newsItem(title, syncedAt.Add(-time.Hour))
	seedThrough(t, s, item, domain.StagePublished)
	require.NoError(t, s.syncs.Save(ctx, domain.SyncRecord{
		ItemID:       item.ID,
		RemotePageID: "page-" + item.ID[:6],
		SyncedAt:     syncedAt,
	}))
	return item
}

func TestPeriodWindow(t *testing.T) {
	t.Parallel()

	key, from, to := periodWindow(domain.PeriodDay, digestNow)
	assert.Equal(t, "2026-08-20", key)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC), to)

	key, from, to = periodWindow(domain.PeriodWeek, digestNow)
	assert.Equal(t, "2026-08-10", key, "previous ISO week keyed by its Monday")
	assert.Equal(t, time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), to)

	key, from, to = periodWindow(domain.PeriodMonth, digestNow)
	assert.Equal(t, "2026-07", key)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), to)

	// A Sunday belongs to the week starting the previous Monday.
	sunday := time.Date(2026, 8, 23, 23, 0, 0, 0, time.UTC)
	key, _, _ = periodWindow(domain.PeriodWeek, sunday)
	assert.Equal(t, "2026-08-10", key)
}

func TestDigestDayAggregatesSyncedItems(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	syncItemAt(t, s, "NVIDIA unveils new AI chip", digestNow.Add(-2*time.Hour))
	syncItemAt(t, s, "OpenAI raises funding", digestNow.Add(-time.Hour))
	// Outside today's window, must not be counted.
	syncItemAt(t, s, "Old story", digestNow.AddDate(0, 0, -3))

	texts := &fakeTextService{text: "Two stories dominated the day.", tokens: 60}
	dest := &fakeDestination{}

	created, err := newDigestForTest(s, texts, dest, domain.PeriodDay).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	record, err := s.digests.Find(ctx, domain.PeriodDay, "2026-08-20")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 2, record.ItemCount)
	assert.Equal(t, "Two stories dominated the day.", record.Narrative)
	assert.Equal(t, "page-1", record.RemotePageID)
}

func TestDigestContextJoinsTitlesWithShortSummaries(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	item := syncItemAt(t, s, "NVIDIA unveils new AI chip", digestNow.Add(-time.Hour))
	require.NoError(t, s.summaries.Upsert(ctx, domain.Summary{
		ItemID:    item.ID,
		Short:     "NVIDIA launched a data center accelerator.",
		Long:      "NVIDIA launched a data center accelerator.\n\nMore detail.",
		UpdatedAt: digestNow,
	}))

	texts := &fakeTextService{text: "Narrative.", tokens: 10}
	dest := &fakeDestination{}

	_, err := newDigestForTest(s, texts, dest, domain.PeriodDay).Run(ctx)
	require.NoError(t, err)

	prompt := texts.lastPrompt()
	assert.Contains(t, prompt, "- NVIDIA unveils new AI chip: NVIDIA launched a data center accelerator.")
}

func TestDigestContextWithoutSummaryKeepsTitleOnly(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	syncItemAt(t, s, "NVIDIA unveils new AI chip", digestNow.Add(-time.Hour))

	texts := &fakeTextService{text: "Narrative.", tokens: 10}
	dest := &fakeDestination{}

	_, err := newDigestForTest(s, texts, dest, domain.PeriodDay).Run(ctx)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(texts.lastPrompt(), "- NVIDIA unveils new AI chip"),
		"no summary yet, the line is the bare title")
}

func TestDigestCallsArePacedByGate(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	syncItemAt(t, s, "NVIDIA unveils new AI chip", digestNow.Add(-time.Hour))

	texts := &fakeTextService{text: "Narrative.", tokens: 10}
	dest := &fakeDestination{}

	interval := 20 * time.Millisecond
	d := NewDigest(s.digests, s.syncs, s.items, s.summaries, texts, dest,
		retry.NewGate(interval), testPolicy(), testLogger(),
		[]domain.PeriodKind{domain.PeriodDay}, 100, time.UTC)
	d.now = func() time.Time { return digestNow }

	started := time.Now()
	_, err := d.Run(ctx)
	require.NoError(t, err)

	// Two gated calls (narrative, page); the second must wait out the interval.
	assert.GreaterOrEqual(t, time.Since(started), interval)
	assert.Equal(t, 1, dest.pageCount())
}

func TestDigestRerunIsNoOp(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	syncItemAt(t, s, "NVIDIA unveils new AI chip", digestNow.Add(-time.Hour))

	texts := &fakeTextService{text: "Narrative.", tokens: 10}
	dest := &fakeDestination{}
	uc := newDigestForTest(s, texts, dest, domain.PeriodDay)

	first, err := uc.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first)

	second, err := uc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, second)
	assert.Equal(t, 1, dest.pageCount(), "existing record suppresses everything")
}

func TestDigestEmptyPeriodWritesZeroCountRecord(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	texts := &fakeTextService{text: "unused", tokens: 0}
	dest := &fakeDestination{}

	created, err := newDigestForTest(s, texts, dest, domain.PeriodDay).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Zero(t, texts.callCount(), "no completion call for an empty period")

	record, err := s.digests.Find(ctx, domain.PeriodDay, "2026-08-20")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Zero(t, record.ItemCount)
	assert.Contains(t, record.Narrative, "0 items")
}

func TestDigestNarrativeFailureUsesFallback(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	syncItemAt(t, s, "NVIDIA unveils new AI chip", digestNow.Add(-time.Hour))

	texts := &fakeTextService{err: assert.AnError}
	dest := &fakeDestination{}

	created, err := newDigestForTest(s, texts, dest, domain.PeriodDay).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	record, err := s.digests.Find(ctx, domain.PeriodDay, "2026-08-20")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 1, record.ItemCount)
	assert.Contains(t, record.Narrative, "1 items published")
}

func TestDigestRemoteFailureStillPersistsRecord(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	syncItemAt(t, s, "NVIDIA unveils new AI chip", digestNow.Add(-time.Hour))

	texts := &fakeTextService{text: "Narrative.", tokens: 10}
	dest := &fakeDestination{createErr: assert.AnError}

	created, err := newDigestForTest(s, texts, dest, domain.PeriodDay).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	record, err := s.digests.Find(ctx, domain.PeriodDay, "2026-08-20")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Empty(t, record.RemotePageID, "record survives without a remote page")
}

func TestDigestKindsAreIndependent(t *testing.T) {
	t.Parallel()
	s := newTestStores(t)
	ctx := context.Background()

	texts := &fakeTextService{text: "Narrative.", tokens: 10}
	dest := &fakeDestination{}

	created, err := newDigestForTest(s, texts, dest,
		domain.PeriodDay, domain.PeriodWeek, domain.PeriodMonth).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	count, err := s.digests.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
