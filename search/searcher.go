package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/lexrag/ai"
	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/storage"
)

// Defaults
const (
	DefaultTopK            = 3
	DefaultScoreThreshold  = float32(0.3)
	DefaultMaxContextChars = 2000
)

// Searcher retrieves indexed chunks for natural-language queries.
type Searcher struct {
	store           storage.VectorStore
	embedder        ai.Embedder
	generator       ai.Generator
	topK            int
	threshold       float32
	maxContextChars int
	logger          *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithTopK sets the default number of results.
func WithTopK(k int) Option {
	return func(s *Searcher) error {
		if k < 1 {
			return errors.New("top k must be positive")
		}
		s.topK = k
		return nil
	}
}

// WithScoreThreshold sets the default minimum score.
func WithScoreThreshold(threshold float32) Option {
	return func(s *Searcher) error {
		if threshold < 0 || threshold > 1 {
			return errors.New("score threshold must be in [0, 1]")
		}
		s.threshold = threshold
		return nil
	}
}

// WithMaxContextChars bounds the context assembled for answers.
func WithMaxContextChars(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			return errors.New("max context chars must be positive")
		}
		s.maxContextChars = n
		return nil
	}
}

// WithGenerator enables Answer.
func WithGenerator(generator ai.Generator) Option {
	return func(s *Searcher) error {
		s.generator = generator
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(store storage.VectorStore, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		store:           store,
		embedder:        embedder,
		topK:            DefaultTopK,
		threshold:       DefaultScoreThreshold,
		maxContextChars: DefaultMaxContextChars,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")
	return s, nil
}

// Search returns up to topK chunks scoring at least threshold, best first.
// topK <= 0 and threshold < 0 select the configured defaults.
func (s *Searcher) Search(ctx context.Context, query string, topK int, threshold float32) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, topK, threshold, nil)
}

// SearchWithMonitor is Search with a monitor receiving callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, topK int, threshold float32, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.topK
	}
	if threshold < 0 {
		threshold = s.threshold
	}
	monitor.Start(query, topK, threshold)

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	if dim := s.store.Dimension(); len(vector) != dim {
		return nil, fmt.Errorf("%w: %w: got %d, want %d", core.ErrEmbedding, core.ErrDimensionMismatch, len(vector), dim)
	}
	if core.IsZeroVector(vector) {
		return nil, fmt.Errorf("%w: query embedding has zero norm", core.ErrEmbedding)
	}
	monitor.AfterEmbedding(len(vector))

	results, err := s.store.Search(ctx, core.NormalizeVector(vector), topK, threshold)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(results)

	for _, r := range results {
		if containsAllQueryWords(r.Entry.Text, query) {
			r.KeywordMatch = true
			monitor.KeywordHit(r)
		}
	}
	monitor.Finish(results)

	s.logger.Debug("search finished", "query", query, "hits", len(results))
	return results, nil
}

// Answer is a generated reply together with the chunks it was grounded on.
type Answer struct {
	Question string
	Text     string
	Sources  []*core.SearchResult
}

// Answer retrieves context for question and asks the generator for a reply.
// When nothing passes the threshold the bare question is sent.
func (s *Searcher) Answer(ctx context.Context, question string) (*Answer, error) {
	if s.generator == nil {
		return nil, ErrGeneratorRequired
	}
	results, err := s.Search(ctx, question, 0, -1)
	if err != nil {
		return nil, err
	}

	text, err := s.generator.Generate(ctx, BuildPrompt(question, results, s.maxContextChars))
	if err != nil {
		s.logger.Error("error generating answer", "err", err)
		return nil, err
	}
	return &Answer{
		Question: strings.TrimSpace(question),
		Text:     text,
		Sources:  results,
	}, nil
}
