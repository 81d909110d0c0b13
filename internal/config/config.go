package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "FINWIRE_CONFIG"
	databasePathEnv = "FINWIRE_DB_PATH"
	llmAPIKeyEnv    = "LLM_API_KEY"
	llmModelEnv     = "LLM_MODEL"
	notionTokenEnv  = "NOTION_TOKEN"
	notionDBEnv     = "NOTION_DATABASE_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database    DatabaseConfig `yaml:"database"`
	Logging     LoggingConfig  `yaml:"logging"`
	Feeds       []FeedConfig   `yaml:"feeds"`
	Filter      FilterConfig   `yaml:"filter"`
	LLM         LLMConfig      `yaml:"llm"`
	Notion      NotionConfig   `yaml:"notion"`
	Pipeline    PipelineConfig `yaml:"pipeline"`
	Digest      DigestConfig   `yaml:"digest"`
	Timezone    string         `yaml:"timezone"`
	location    *time.Location `yaml:"-"`
}

// DatabaseConfig describes the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// FeedConfig describes a single RSS/Atom feed endpoint.
type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// FilterConfig carries the weighted keyword table and decision threshold.
type FilterConfig struct {
	Threshold   float64          `yaml:"threshold"`
	TitleWeight float64          `yaml:"titleWeight"`
	BodyWeight  float64          `yaml:"bodyWeight"`
	Categories  []CategoryConfig `yaml:"categories"`
}

// CategoryConfig is one keyword category with its weight multiplier.
type CategoryConfig struct {
	Name     string   `yaml:"name"`
	Weight   float64  `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
}

// LLMConfig defines how to contact the completion API.
type LLMConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// NotionConfig wires the destination page store.
type NotionConfig struct {
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"databaseId"`
}

// PipelineConfig bounds per-run work and external call pacing. Durations are
// strings in time.ParseDuration syntax ("500ms", "15s").
type PipelineConfig struct {
	MaxItemsPerStage int    `yaml:"maxItemsPerStage"`
	WorkerCount      int    `yaml:"workerCount"`
	CallDelay        string `yaml:"callDelay"`
	RetryAttempts    int    `yaml:"retryAttempts"`
	RetryInitialWait string `yaml:"retryInitialWait"`
	RetryMaxWait     string `yaml:"retryMaxWait"`
}

// CallDelayDuration parses the inter-call delay, defaulting to 500ms.
func (p PipelineConfig) CallDelayDuration() time.Duration {
	return parseDuration(p.CallDelay, 500*time.Millisecond)
}

// RetryInitialWaitDuration parses the first backoff wait, defaulting to 1s.
func (p PipelineConfig) RetryInitialWaitDuration() time.Duration {
	return parseDuration(p.RetryInitialWait, time.Second)
}

// RetryMaxWaitDuration parses the backoff cap, defaulting to 15s.
func (p PipelineConfig) RetryMaxWaitDuration() time.Duration {
	return parseDuration(p.RetryMaxWait, 15*time.Second)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// DigestConfig selects which period kinds are generated each run.
type DigestConfig struct {
	Kinds    []string `yaml:"kinds"`
	MaxItems int      `yaml:"maxItems"`
}

// Location resolves the configured timezone string to a time.Location.
func (c Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Filter.Categories) == 0 {
		cfg.Filter.Categories = defaultConfig().Filter.Categories
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}

	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv(notionTokenEnv); v != "" {
		c.Notion.Token = v
	}

	if v := os.Getenv(notionDBEnv); v != "" {
		c.Notion.DatabaseID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if len(override.Feeds) > 0 {
		base.Feeds = override.Feeds
	}

	if override.Filter.Threshold != 0 {
		base.Filter.Threshold = override.Filter.Threshold
	}
	if override.Filter.TitleWeight != 0 {
		base.Filter.TitleWeight = override.Filter.TitleWeight
	}
	if override.Filter.BodyWeight != 0 {
		base.Filter.BodyWeight = override.Filter.BodyWeight
	}
	if len(override.Filter.Categories) > 0 {
		base.Filter.Categories = override.Filter.Categories
	}

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.SystemPrompt != "" {
		base.LLM.SystemPrompt = override.LLM.SystemPrompt
	}

	if override.Notion.Token != "" {
		base.Notion.Token = override.Notion.Token
	}
	if override.Notion.DatabaseID != "" {
		base.Notion.DatabaseID = override.Notion.DatabaseID
	}

	if override.Pipeline.MaxItemsPerStage != 0 {
		base.Pipeline.MaxItemsPerStage = override.Pipeline.MaxItemsPerStage
	}
	if override.Pipeline.WorkerCount != 0 {
		base.Pipeline.WorkerCount = override.Pipeline.WorkerCount
	}
	if override.Pipeline.CallDelay != "" {
		base.Pipeline.CallDelay = override.Pipeline.CallDelay
	}
	if override.Pipeline.RetryAttempts != 0 {
		base.Pipeline.RetryAttempts = override.Pipeline.RetryAttempts
	}
	if override.Pipeline.RetryInitialWait != "" {
		base.Pipeline.RetryInitialWait = override.Pipeline.RetryInitialWait
	}
	if override.Pipeline.RetryMaxWait != "" {
		base.Pipeline.RetryMaxWait = override.Pipeline.RetryMaxWait
	}

	if len(override.Digest.Kinds) > 0 {
		base.Digest.Kinds = override.Digest.Kinds
	}
	if override.Digest.MaxItems != 0 {
		base.Digest.MaxItems = override.Digest.MaxItems
	}

	if override.Timezone != "" {
		base.Timezone = override.Timezone
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database: DatabaseConfig{Path: "finwire.db"},
		Logging:  LoggingConfig{Level: "info"},
		Feeds: []FeedConfig{
			{Name: "hn-frontpage", URL: "https://hnrss.org/frontpage"},
		},
		Filter: FilterConfig{
			Threshold:   2,
			TitleWeight: 3,
			BodyWeight:  1,
			Categories: []CategoryConfig{
				{
					Name:   "entities",
					Weight: 2,
					Keywords: []string{
						"nvidia", "openai", "anthropic", "google", "microsoft",
						"amazon", "meta", "apple", "tsmc", "intel", "amd",
					},
				},
				{
					Name:   "themes",
					Weight: 1.5,
					Keywords: []string{
						"ai", "artificial intelligence", "machine learning", "llm",
						"semiconductor", "chip", "data center", "cloud",
					},
				},
				{
					Name:   "generic",
					Weight: 1,
					Keywords: []string{
						"earnings", "acquisition", "ipo", "funding", "regulation",
						"layoffs", "launch",
					},
				},
			},
		},
		LLM: LLMConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			APIKey:       "",
			SystemPrompt: "You summarize financial and technology news.",
		},
		Notion: NotionConfig{Token: "", DatabaseID: ""},
		Pipeline: PipelineConfig{
			MaxItemsPerStage: 50,
			WorkerCount:      2,
			CallDelay:        "500ms",
			RetryAttempts:    3,
			RetryInitialWait: "1s",
			RetryMaxWait:     "15s",
		},
		Digest: DigestConfig{
			Kinds:    []string{"day", "week", "month"},
			MaxItems: 100,
		},
		Timezone: defaultTimezone,
		location: tz,
	}
}
