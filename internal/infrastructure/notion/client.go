package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"FinWire/internal/config"
	"FinWire/internal/ports"
)

const (
	apiBase    = "https://api.notion.com/v1"
	apiVersion = "2022-06-28"

	// Notion caps rich_text blocks at 2000 characters.
	maxBlockLen = 2000
)

// Client publishes pages into a Notion database.
type Client struct {
	baseURL    string
	token      string
	databaseID string
	httpClient *http.Client
}

var _ ports.Destination = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.NotionConfig) *Client {
	return &Client{
		baseURL:    apiBase,
		token:      cfg.Token,
		databaseID: cfg.DatabaseID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// EnsureSchema checks the target database and adds any missing rich_text
// properties. Existing properties are left untouched, so repeated calls are
// no-ops once the schema is in place.
func (c *Client) EnsureSchema(ctx context.Context, requiredFields []string) error {
	var database struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := c.do(ctx, http.MethodGet, "/databases/"+c.databaseID, nil, &database); err != nil {
		return fmt.Errorf("fetch database: %w", err)
	}

	missing := map[string]any{}
	for _, field := range requiredFields {
		if _, ok := database.Properties[field]; ok {
			continue
		}
		missing[field] = map[string]any{"rich_text": map[string]any{}}
	}
	if len(missing) == 0 {
		return nil
	}

	payload := map[string]any{"properties": missing}
	if err := c.do(ctx, http.MethodPatch, "/databases/"+c.databaseID, payload, nil); err != nil {
		return fmt.Errorf("update database schema: %w", err)
	}
	return nil
}

// CreatePage creates one page in the database and returns its id. The first
// property named "Name" (or "Title") becomes the page title; the rest go in
// as rich_text. Content is split into paragraph blocks.
func (c *Client) CreatePage(ctx context.Context, properties map[string]string, content string) (string, error) {
	props := map[string]any{}
	for name, value := range properties {
		if name == "Name" || name == "Title" {
			props[name] = map[string]any{
				"title": []any{textObject(truncateBlock(value))},
			}
			continue
		}
		props[name] = map[string]any{
			"rich_text": []any{textObject(truncateBlock(value))},
		}
	}

	payload := map[string]any{
		"parent":     map[string]any{"database_id": c.databaseID},
		"properties": props,
	}
	if blocks := contentBlocks(content); len(blocks) > 0 {
		payload["children"] = blocks
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/pages", payload, &created); err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create page: response has no id")
	}
	return created.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if c.token == "" || c.databaseID == "" {
		return fmt.Errorf("notion client misconfigured")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notion error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func textObject(s string) map[string]any {
	return map[string]any{
		"type": "text",
		"text": map[string]any{"content": s},
	}
}

func contentBlocks(content string) []any {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var blocks []any
	for _, paragraph := range strings.Split(content, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		blocks = append(blocks, map[string]any{
			"object": "block",
			"type":   "paragraph",
			"paragraph": map[string]any{
				"rich_text": []any{textObject(truncateBlock(paragraph))},
			},
		})
	}
	return blocks
}

func truncateBlock(s string) string {
	runes := []rune(s)
	if len(runes) <= maxBlockLen {
		return s
	}
	return string(runes[:maxBlockLen])
}
