// Package config loads the single immutable configuration value used by every
// lexrag component. Values come from defaults, then an optional YAML file, then
// a .env file, then the process environment. Validate must pass before any
// component is constructed.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/poiesic/lexrag/core"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates a configuration value outside its allowed range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete application configuration. It is passed by value.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	Collection string `yaml:"collection"`
	UploadsDir string `yaml:"uploads_dir"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Crawl     CrawlConfig     `yaml:"crawl"`
	Extract   ExtractConfig   `yaml:"extract"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	Search    SearchConfig    `yaml:"search"`
	Ingestion IngestionConfig `yaml:"ingestion"`

	Sources []SourceConfig `yaml:"sources"`
}

// SchedulerConfig controls periodic re-ingestion.
type SchedulerConfig struct {
	Enabled       bool `yaml:"enabled"`
	IntervalHours int  `yaml:"interval_hours"`
	RunOnStartup  bool `yaml:"run_on_startup"`
}

// CrawlConfig controls the web fetcher.
type CrawlConfig struct {
	MaxPages        int           `yaml:"max_pages"`
	MaxDepth        int           `yaml:"max_depth"`
	TimeoutSeconds  int           `yaml:"timeout_seconds"`
	RequestDelay    time.Duration `yaml:"request_delay"`
	PageConcurrency int           `yaml:"page_concurrency"`
	UserAgent       string        `yaml:"user_agent"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// ExtractConfig bounds extracted text length.
type ExtractConfig struct {
	MinChars       int `yaml:"min_chars"`
	MaxChars       int `yaml:"max_chars"`
	MaxUploadChars int `yaml:"max_upload_chars"`
}

// ChunkingConfig sets the chunk window.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig describes the embedding capability.
type EmbeddingConfig struct {
	Host        string        `yaml:"host"`
	Model       string        `yaml:"model"`
	Dimension   int           `yaml:"dimension"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ChatConfig describes the answer generation capability.
type ChatConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// SearchConfig holds retrieval defaults.
type SearchConfig struct {
	TopK            int     `yaml:"top_k"`
	ScoreThreshold  float32 `yaml:"score_threshold"`
	MaxContextChars int     `yaml:"max_context_chars"`
}

// IngestionConfig bounds run-level parallelism and store latency.
type IngestionConfig struct {
	MaxWorkers   int           `yaml:"max_workers"`
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// SourceConfig seeds the source repository on first start.
type SourceConfig struct {
	Name            string   `yaml:"name"`
	URL             string   `yaml:"url"`
	Selector        string   `yaml:"selector"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		DataDir:    "./rag_index",
		Collection: "legal_documents",
		UploadsDir: "data/pdfs",
		Scheduler: SchedulerConfig{
			Enabled:       true,
			IntervalHours: 72,
		},
		Crawl: CrawlConfig{
			MaxPages:        50,
			MaxDepth:        2,
			TimeoutSeconds:  30,
			RequestDelay:    time.Second,
			PageConcurrency: 2,
			UserAgent:       "LexRAGBot/1.0 (+https://lexrag.local/bot)",
			RetryAttempts:   3,
			RetryDelay:      500 * time.Millisecond,
			MaxBodyBytes:    10 << 20,
		},
		Extract: ExtractConfig{
			MinChars:       100,
			MaxChars:       5000,
			MaxUploadChars: 1_000_000,
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Embedding: EmbeddingConfig{
			Host:        "http://localhost:11434/v1",
			Model:       "all-minilm",
			Dimension:   384,
			BatchSize:   16,
			Concurrency: 4,
			Timeout:     60 * time.Second,
		},
		Chat: ChatConfig{
			Host:  "http://localhost:11434/v1",
			Model: "qwen2.5:3b",
		},
		Search: SearchConfig{
			TopK:            3,
			ScoreThreshold:  0.3,
			MaxContextChars: 2000,
		},
		Ingestion: IngestionConfig{
			MaxWorkers:   3,
			StoreTimeout: 30 * time.Second,
		},
		Sources: []SourceConfig{
			{
				Name:            "Ministry of Justice",
				URL:             "https://www.justice.gov",
				Selector:        "main, article, .content",
				ExcludePatterns: []string{"/admin", "/login", "/internal"},
			},
			{
				Name:            "Parliament/Legislature",
				URL:             "https://www.parliament.gov",
				Selector:        "main, .legislation",
				ExcludePatterns: []string{"/admin"},
			},
			{
				Name:            "Court System",
				URL:             "https://www.courts.gov",
				Selector:        "main, .decisions",
				ExcludePatterns: []string{"/admin"},
			},
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when path
// is empty or the file does not exist) and the environment. The .env files are
// read into the environment first without overriding variables already set.
// The result is validated.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("%w: parsing %s: %w", ErrInvalidConfig, path, err)
			}
		}
	}

	if err := loadDotEnv(envFiles...); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Interval returns the scheduler cadence.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Scheduler.IntervalHours) * time.Hour
}

// FetchTimeout returns the per-request HTTP timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawl.TimeoutSeconds) * time.Second
}

// SeedSources converts the configured sources to domain values.
func (c Config) SeedSources() []*core.Source {
	out := make([]*core.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, &core.Source{
			Name:            s.Name,
			URL:             s.URL,
			Selector:        s.Selector,
			ExcludePatterns: append([]string(nil), s.ExcludePatterns...),
		})
	}
	return out
}

// Validate rejects invalid option combinations.
func (c Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrChunkConfig, c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", core.ErrChunkConfig, c.Chunking.Overlap, c.Chunking.Size)
	}

	checks := []struct {
		ok  bool
		msg string
	}{
		{c.DataDir != "", "data_dir is required"},
		{c.Collection != "", "collection is required"},
		{c.Scheduler.IntervalHours > 0, "scheduler.interval_hours must be positive"},
		{c.Crawl.MaxPages > 0, "crawl.max_pages must be positive"},
		{c.Crawl.MaxDepth >= 0, "crawl.max_depth must not be negative"},
		{c.Crawl.TimeoutSeconds > 0, "crawl.timeout_seconds must be positive"},
		{c.Crawl.RequestDelay >= 0, "crawl.request_delay must not be negative"},
		{c.Crawl.PageConcurrency > 0, "crawl.page_concurrency must be positive"},
		{c.Crawl.UserAgent != "", "crawl.user_agent is required"},
		{c.Crawl.RetryAttempts > 0, "crawl.retry_attempts must be positive"},
		{c.Crawl.MaxBodyBytes > 0, "crawl.max_body_bytes must be positive"},
		{c.Extract.MinChars >= 0, "extract.min_chars must not be negative"},
		{c.Extract.MaxChars >= c.Extract.MinChars, "extract.max_chars must be at least min_chars"},
		{c.Extract.MaxUploadChars >= c.Extract.MinChars, "extract.max_upload_chars must be at least min_chars"},
		{c.Embedding.Dimension > 0, "embedding.dimension must be positive"},
		{c.Embedding.BatchSize > 0, "embedding.batch_size must be positive"},
		{c.Embedding.Concurrency > 0, "embedding.concurrency must be positive"},
		{c.Embedding.Timeout > 0, "embedding.timeout must be positive"},
		{c.Search.TopK > 0, "search.top_k must be positive"},
		{c.Search.ScoreThreshold >= 0 && c.Search.ScoreThreshold <= 1, "search.score_threshold must be within [0, 1]"},
		{c.Search.MaxContextChars > 0, "search.max_context_chars must be positive"},
		{c.Ingestion.MaxWorkers > 0, "ingestion.max_workers must be positive"},
		{c.Ingestion.StoreTimeout > 0, "ingestion.store_timeout must be positive"},
	}
	for _, chk := range checks {
		if !chk.ok {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, chk.msg)
		}
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.SeedSources() {
		if err := core.ValidateSource(s); err != nil {
			return fmt.Errorf("%w: source %q: %w", ErrInvalidConfig, s.Name, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate source %q", ErrInvalidConfig, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
