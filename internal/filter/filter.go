package filter

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"FinWire/internal/config"
)

// shortKeywordLen is the length below which a keyword only matches on word
// boundaries, to avoid false positives on short tokens ("ai" inside "maintain").
const shortKeywordLen = 4

// Keyword is one entry of the weighted table, flattened from its category.
type Keyword struct {
	Text           string
	Category       string
	CategoryWeight float64

	folded string
}

// Table is the compiled keyword table used for relevance decisions.
type Table struct {
	keywords    []Keyword
	titleWeight float64
	bodyWeight  float64
	threshold   float64
}

// Result carries the full match outcome, not just the boolean, so scores and
// matched terms can be logged and tuned.
type Result struct {
	Matched    bool
	Score      float64
	Keywords   []string
	Categories []string
}

// NewTable compiles the configured categories into a flat keyword table.
func NewTable(cfg config.FilterConfig) *Table {
	t := &Table{
		titleWeight: cfg.TitleWeight,
		bodyWeight:  cfg.BodyWeight,
		threshold:   cfg.Threshold,
	}
	if t.titleWeight == 0 {
		t.titleWeight = 3
	}
	if t.bodyWeight == 0 {
		t.bodyWeight = 1
	}

	for _, cat := range cfg.Categories {
		for _, kw := range cat.Keywords {
			text := strings.TrimSpace(kw)
			if text == "" {
				continue
			}
			t.keywords = append(t.keywords, Keyword{
				Text:           text,
				Category:       cat.Name,
				CategoryWeight: cat.Weight,
				folded:         fold(text),
			})
		}
	}

	return t
}

// Match scores an item's title and body against the table. Pure and
// deterministic: identical inputs always produce the identical result. An
// empty body simply contributes nothing.
func (t *Table) Match(title, body string) Result {
	foldedTitle := fold(title)
	foldedBody := fold(body)

	var result Result
	seenCategories := map[string]bool{}

	for _, kw := range t.keywords {
		location := 0.0
		switch {
		case contains(foldedTitle, kw.folded):
			location = t.titleWeight
		case contains(foldedBody, kw.folded):
			location = t.bodyWeight
		default:
			continue
		}

		result.Score += location * kw.CategoryWeight
		result.Keywords = append(result.Keywords, kw.Text)
		if !seenCategories[kw.Category] {
			seenCategories[kw.Category] = true
			result.Categories = append(result.Categories, kw.Category)
		}
	}

	result.Matched = result.Score >= t.threshold
	return result
}

// contains reports whether keyword occurs in text. Keywords shorter than
// shortKeywordLen must sit on word boundaries.
func contains(text, keyword string) bool {
	if keyword == "" || text == "" {
		return false
	}
	if len([]rune(keyword)) >= shortKeywordLen {
		return strings.Contains(text, keyword)
	}

	for offset := 0; ; {
		idx := strings.Index(text[offset:], keyword)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(keyword)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		offset = start + 1
	}
}

func boundaryBefore(text string, pos int) bool {
	if pos == 0 {
		return true
	}
	r := []rune(text[:pos])
	return !isWordRune(r[len(r)-1])
}

func boundaryAfter(text string, pos int) bool {
	if pos >= len(text) {
		return true
	}
	r := []rune(text[pos:])
	return !isWordRune(r[0])
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// fold lowercases and strips diacritics so "Société" matches "societe".
// The transformer chain is stateful, so each call builds its own.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}
