package usecase

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"FinWire/internal/domain"
	"FinWire/internal/retry"
	"FinWire/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type testStores struct {
	items     *storage.ItemStore
	ledger    *storage.LedgerStore
	summaries *storage.SummaryStore
	syncs     *storage.SyncStore
	digests   *storage.DigestStore
}

func newTestStores(t *testing.T) testStores {
	t.Helper()
	db := openTestDB(t)
	return testStores{
		items:     storage.NewItemStore(db),
		ledger:    storage.NewLedgerStore(db),
		summaries: storage.NewSummaryStore(db),
		syncs:     storage.NewSyncStore(db),
		digests:   storage.NewDigestStore(db),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	}
}

func testGate() *retry.Gate {
	return retry.NewGate(0)
}

// seedThrough stores an item and records successes through the given stage.
func seedThrough(t *testing.T, s testStores, item domain.Item, through domain.Stage) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.items.Upsert(ctx, item))
	for _, stage := range domain.Stages() {
		require.NoError(t, s.ledger.Record(ctx, item.ID, stage, domain.OutcomeSuccess, ""))
		if stage == through {
			return
		}
	}
}

func newsItem(title string, publishedAt time.Time) domain.Item {
	return domain.Item{
		ID:          domain.ItemID(title, publishedAt),
		Title:       title,
		SourceURL:   "https://news.example.com/" + domain.ItemID(title, publishedAt),
		Body:        "NVIDIA shipped a new AI accelerator with strong data center demand.",
		Source:      "tech-wire",
		PublishedAt: publishedAt,
	}
}

type fakeFeedSource struct {
	candidates []domain.CandidateItem
	err        error
}

func (f *fakeFeedSource) FetchCandidates(ctx context.Context) ([]domain.CandidateItem, error) {
	return f.candidates, f.err
}

type fakeExtractor struct {
	body string
	err  error

	mu    sync.Mutex
	calls int
}

func (f *fakeExtractor) ExtractBody(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.body, f.err
}

type fakeTextService struct {
	text   string
	tokens int
	err    error

	mu      sync.Mutex
	calls   int
	prompts []string
}

func (f *fakeTextService) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, int, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, userPrompt)
	f.mu.Unlock()
	if f.err != nil {
		return "", 0, f.err
	}
	return f.text, f.tokens, nil
}

func (f *fakeTextService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTextService) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type fakeDestination struct {
	createErr error

	mu          sync.Mutex
	schemaCalls int
	pages       []map[string]string
}

func (f *fakeDestination) EnsureSchema(ctx context.Context, requiredFields []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemaCalls++
	return nil
}

func (f *fakeDestination) CreatePage(ctx context.Context, properties map[string]string, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.pages = append(f.pages, properties)
	return fmt.Sprintf("page-%d", len(f.pages)), nil
}

func (f *fakeDestination) pageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pages)
}
