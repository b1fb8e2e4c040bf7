package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvScrapeIntervalHours = "RAG_SCRAPE_INTERVAL_HOURS"
	EnvScrapeEnabled       = "RAG_SCRAPE_ENABLED"
	EnvScrapeOnStartup     = "RAG_SCRAPE_ON_STARTUP"
	EnvIndexPath           = "RAG_INDEX_PATH"
	EnvUploadsDir          = "RAG_UPLOADS_DIR"
	EnvMaxPages            = "RAG_MAX_PAGES"
	EnvFetchTimeoutSeconds = "RAG_FETCH_TIMEOUT_SECONDS"
	EnvChunkSize           = "RAG_CHUNK_SIZE"
	EnvChunkOverlap        = "RAG_CHUNK_OVERLAP"
	EnvMinChars            = "RAG_MIN_CHARS"
	EnvMaxChars            = "RAG_MAX_CHARS"
	EnvScoreThreshold      = "RAG_SCORE_THRESHOLD"
	EnvEmbeddingDimension  = "RAG_EMBEDDING_DIMENSION"
	EnvEmbeddingHost       = "RAG_EMBEDDING_HOST"
	EnvEmbeddingModel      = "RAG_EMBEDDING_MODEL"
	EnvChatHost            = "RAG_CHAT_HOST"
	EnvChatModel           = "RAG_CHAT_MODEL"
	EnvMaxWorkers          = "RAG_MAX_WORKERS"
	EnvRequestDelay        = "RAG_REQUEST_DELAY"
)

// loadDotEnv loads the given .env files (default ".env") into the process
// environment. Missing files are ignored; existing variables win.
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: loading %s: %w", ErrInvalidConfig, f, err)
		}
	}
	return nil
}

// applyEnv overrides cfg with variables found through lookup.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.int(EnvScrapeIntervalHours, &cfg.Scheduler.IntervalHours)
	e.bool(EnvScrapeEnabled, &cfg.Scheduler.Enabled)
	e.bool(EnvScrapeOnStartup, &cfg.Scheduler.RunOnStartup)
	e.str(EnvIndexPath, &cfg.DataDir)
	e.str(EnvUploadsDir, &cfg.UploadsDir)
	e.int(EnvMaxPages, &cfg.Crawl.MaxPages)
	e.int(EnvFetchTimeoutSeconds, &cfg.Crawl.TimeoutSeconds)
	e.int(EnvChunkSize, &cfg.Chunking.Size)
	e.int(EnvChunkOverlap, &cfg.Chunking.Overlap)
	e.int(EnvMinChars, &cfg.Extract.MinChars)
	e.int(EnvMaxChars, &cfg.Extract.MaxChars)
	e.float32(EnvScoreThreshold, &cfg.Search.ScoreThreshold)
	e.int(EnvEmbeddingDimension, &cfg.Embedding.Dimension)
	e.str(EnvEmbeddingHost, &cfg.Embedding.Host)
	e.str(EnvEmbeddingModel, &cfg.Embedding.Model)
	e.str(EnvChatHost, &cfg.Chat.Host)
	e.str(EnvChatModel, &cfg.Chat.Model)
	e.int(EnvMaxWorkers, &cfg.Ingestion.MaxWorkers)
	if v, ok := e.get(EnvRequestDelay); ok {
		cfg.Crawl.RequestDelay = durationOrDefault(v, cfg.Crawl.RequestDelay)
	}

	return e.err
}

// envReader records the first parse failure and ignores later variables.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) fail(name, value string, err error) {
	e.err = fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, name, value, err)
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) int(name string, dst *int) {
	if v, ok := e.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) bool(name string, dst *bool) {
	if v, ok := e.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) float32(name string, dst *float32) {
	if v, ok := e.get(name); ok {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = float32(f)
	}
}

// durationOrDefault parses s as a duration, falling back to def when empty or invalid.
func durationOrDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
