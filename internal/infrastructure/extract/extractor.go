package extract

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"FinWire/internal/ports"
)

// Extractor downloads an article page and pulls out its readable text.
type Extractor struct {
	client *http.Client
}

var _ ports.ContentExtractor = (*Extractor)(nil)

// NewExtractor wires an HTTP client; a nil client gets a 20s-timeout default.
func NewExtractor(client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Extractor{client: client}
}

// ExtractBody fetches the page and returns its paragraph text, article
// elements first, falling back to all paragraphs on the page.
func (e *Extractor) ExtractBody(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "FinWire/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}

	doc.Find("script, style, nav, header, footer, aside").Remove()

	text := collectParagraphs(doc.Find("article"))
	if text == "" {
		text = collectParagraphs(doc.Selection)
	}
	return text, nil
}

func collectParagraphs(sel *goquery.Selection) string {
	var parts []string
	sel.Find("p").Each(func(i int, p *goquery.Selection) {
		t := strings.Join(strings.Fields(p.Text()), " ")
		if t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n\n")
}
