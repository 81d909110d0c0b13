package feeds

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"FinWire/internal/config"
	"FinWire/internal/domain"
	"FinWire/internal/ports"
)

const maxDescriptionLen = 2000

// RSSSource fetches candidate items from the configured RSS/Atom feeds.
type RSSSource struct {
	feeds  []config.FeedConfig
	parser *gofeed.Parser
	logger *slog.Logger
}

var _ ports.FeedSource = (*RSSSource)(nil)

// NewRSSSource wires the configured feeds.
func NewRSSSource(feeds []config.FeedConfig, logger *slog.Logger) *RSSSource {
	return &RSSSource{
		feeds:  feeds,
		parser: gofeed.NewParser(),
		logger: logger,
	}
}

// FetchCandidates pulls every configured feed concurrently and returns the
// combined candidates. A feed that fails to fetch is logged and skipped;
// one broken feed never hides the others.
func (s *RSSSource) FetchCandidates(ctx context.Context) ([]domain.CandidateItem, error) {
	var (
		mu         sync.Mutex
		candidates []domain.CandidateItem
		wg         sync.WaitGroup
	)

	for _, feedCfg := range s.feeds {
		wg.Add(1)
		go func(fc config.FeedConfig) {
			defer wg.Done()
			items, err := s.fetchFeed(ctx, fc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.warn("fetch feed failed", "feed", fc.Name, "error", err)
				return
			}
			candidates = append(candidates, items...)
		}(feedCfg)
	}

	wg.Wait()

	// Deduplicate by URL across feeds; the first occurrence wins.
	seen := map[string]struct{}{}
	unique := candidates[:0]
	for _, c := range candidates {
		if _, ok := seen[c.URL]; ok {
			continue
		}
		seen[c.URL] = struct{}{}
		unique = append(unique, c)
	}

	s.debug("fetch candidates done", "feeds", len(s.feeds), "candidates", len(unique))
	return unique, nil
}

func (s *RSSSource) fetchFeed(ctx context.Context, fc config.FeedConfig) ([]domain.CandidateItem, error) {
	feed, err := s.parser.ParseURLWithContext(fc.URL, ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	candidates := make([]domain.CandidateItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" || strings.TrimSpace(item.Title) == "" {
			continue
		}

		publishedAt := now
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			publishedAt = *item.UpdatedParsed
		}

		raw := item.Content
		if raw == "" {
			raw = item.Description
		}

		candidates = append(candidates, domain.CandidateItem{
			Title:       strings.TrimSpace(item.Title),
			URL:         item.Link,
			Source:      fc.Name,
			PublishedAt: publishedAt,
			RawContent:  truncate(stripHTML(raw), maxDescriptionLen),
		})
	}

	return candidates, nil
}

// stripHTML drops tags and collapses whitespace in feed descriptions.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (s *RSSSource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *RSSSource) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
