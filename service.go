// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lexrag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/lexrag/ai"
	"github.com/poiesic/lexrag/ai/openai"
	"github.com/poiesic/lexrag/chunker"
	"github.com/poiesic/lexrag/config"
	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/crawler"
	"github.com/poiesic/lexrag/extract"
	"github.com/poiesic/lexrag/ingestion"
	"github.com/poiesic/lexrag/reembed"
	"github.com/poiesic/lexrag/scheduler"
	"github.com/poiesic/lexrag/search"
	"github.com/poiesic/lexrag/storage"
	"github.com/poiesic/lexrag/storage/badger"
)

// ShutdownTimeout bounds how long Close waits for an in-flight run before
// cancelling it.
const ShutdownTimeout = 30 * time.Second

// Service owns the index and every pipeline component built from one
// Config. Ingestion of any kind shares the scheduler's single run slot.
type Service struct {
	cfg       config.Config
	backend   *badger.Backend
	store     storage.VectorStore
	sources   storage.SourceRepository
	runs      storage.RunLog
	provider  ai.AIProvider
	pipeline  *ingestion.Pipeline
	searcher  *search.Searcher
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	now       func() time.Time
	closeOnce sync.Once
	closeErr  error
}

// StoreHealth describes the vector index.
type StoreHealth struct {
	Collection string
	Count      int
	Dimension  int
	Path       string // Empty for an in-memory index
}

// IngestionRequest lists ad-hoc inputs for a synchronous run. An empty
// request ingests the configured sources and the uploads directory.
type IngestionRequest struct {
	Sources []*core.Source
	Files   []ingestion.FileInput
}

// NewService opens the index under cfg.DataDir and wires every component.
// Configured seed sources are stored when the source repository is empty.
// The scheduler is not started; call Start.
func NewService(cfg config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &serviceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger

	path := cfg.DataDir
	if options.inMemory {
		path = ""
	}
	backend, err := badger.OpenBackend(path, options.inMemory)
	if err != nil {
		return nil, fmt.Errorf("%w: opening index: %w", core.ErrStore, err)
	}

	svc := &Service{
		cfg:     cfg,
		backend: backend,
		sources: badger.NewSourceRepository(backend),
		runs:    badger.NewRunLog(backend),
		logger:  logger.With("component", "service"),
		now:     time.Now,
	}
	if options.clock != nil {
		svc.now = options.clock.Now
	}
	if err := svc.wire(cfg, options); err != nil {
		svc.release()
		return nil, err
	}
	if err := svc.seedSources(context.Background()); err != nil {
		svc.release()
		return nil, err
	}
	return svc, nil
}

func (s *Service) wire(cfg config.Config, options *serviceOptions) error {
	logger := options.logger

	store, err := badger.NewVectorStore(s.backend, cfg.Collection, cfg.Embedding.Dimension,
		badger.WithVectorStoreLogger(logger))
	if err != nil {
		return err
	}
	s.store = store

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(ai.NewConfig(
			ai.WithEmbeddingHost(cfg.Embedding.Host),
			ai.WithEmbeddingModel(cfg.Embedding.Model),
			ai.WithChatHost(cfg.Chat.Host),
			ai.WithChatModel(cfg.Chat.Model),
			ai.WithDimension(cfg.Embedding.Dimension),
			ai.WithBatchSize(cfg.Embedding.BatchSize),
			ai.WithTimeout(cfg.Embedding.Timeout),
		))
		if err != nil {
			return err
		}
	}
	s.provider = provider

	extractor := extract.New(
		extract.WithMinChars(cfg.Extract.MinChars),
		extract.WithMaxChars(cfg.Extract.MaxChars),
		extract.WithMaxUploadChars(cfg.Extract.MaxUploadChars),
	)
	chunks, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return err
	}

	crawlOpts := []crawler.Option{
		crawler.WithMaxPages(cfg.Crawl.MaxPages),
		crawler.WithMaxDepth(cfg.Crawl.MaxDepth),
		crawler.WithTimeout(cfg.FetchTimeout()),
		crawler.WithRequestDelay(cfg.Crawl.RequestDelay),
		crawler.WithPageConcurrency(cfg.Crawl.PageConcurrency),
		crawler.WithRetry(cfg.Crawl.RetryAttempts, cfg.Crawl.RetryDelay),
		crawler.WithUserAgent(cfg.Crawl.UserAgent),
		crawler.WithMaxBodyBytes(cfg.Crawl.MaxBodyBytes),
		crawler.WithLogger(logger),
	}
	if options.httpClient != nil {
		crawlOpts = append(crawlOpts, crawler.WithHTTPClient(options.httpClient))
	}
	pages, err := crawler.New(extractor, crawlOpts...)
	if err != nil {
		return err
	}

	s.pipeline, err = ingestion.NewPipeline(s.store, pages, extractor, chunks, provider.Embedder(),
		ingestion.WithMaxWorkers(cfg.Ingestion.MaxWorkers),
		ingestion.WithEmbedConcurrency(cfg.Embedding.Concurrency),
		ingestion.WithEmbedBatchSize(cfg.Embedding.BatchSize),
		ingestion.WithEmbedRetry(cfg.Crawl.RetryAttempts, cfg.Crawl.RetryDelay),
		ingestion.WithStoreTimeout(cfg.Ingestion.StoreTimeout),
		ingestion.WithUploadsDir(cfg.UploadsDir),
		ingestion.WithRunLog(s.runs),
		ingestion.WithClock(s.now),
		ingestion.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	s.searcher, err = search.NewSearcher(s.store, provider.Embedder(),
		search.WithTopK(cfg.Search.TopK),
		search.WithScoreThreshold(cfg.Search.ScoreThreshold),
		search.WithMaxContextChars(cfg.Search.MaxContextChars),
		search.WithGenerator(provider.Generator()),
		search.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	s.scheduler, err = scheduler.New(s.scheduledRun, scheduler.Options{
		Interval:     cfg.Interval(),
		RunOnStartup: cfg.Scheduler.RunOnStartup,
		Enabled:      cfg.Scheduler.Enabled,
		Clock:        options.clock,
		Logger:       logger,
	})
	return err
}

func (s *Service) seedSources(ctx context.Context) error {
	n, err := s.sources.CountSources(ctx)
	if err != nil {
		return err
	}
	seed := s.cfg.SeedSources()
	if n > 0 || len(seed) == 0 {
		return nil
	}
	if err := s.sources.PutSources(ctx, seed...); err != nil {
		return fmt.Errorf("seeding sources: %w", err)
	}
	s.logger.Info("seeded sources from configuration", "count", len(seed))
	return nil
}

// scheduledRun ingests every configured source plus the uploads directory.
func (s *Service) scheduledRun(ctx context.Context, trigger string) (*core.RunReport, error) {
	sources, err := s.sources.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing sources: %w", core.ErrStore, err)
	}
	report, err := s.pipeline.Run(ctx, ingestion.Request{
		Sources:        sources,
		IncludeUploads: true,
		Trigger:        trigger,
	})
	if errors.Is(err, ingestion.ErrNothingToIngest) {
		s.logger.Info("nothing to ingest", "trigger", trigger)
		now := s.now().UTC()
		report = core.NewRunReport(trigger, now)
		report.Finish(now, nil)
		return report, nil
	}
	return report, err
}

// Start arms the scheduler.
func (s *Service) Start(ctx context.Context) error {
	return s.scheduler.Start(ctx)
}

// AddSource stores a new source.
func (s *Service) AddSource(ctx context.Context, source *core.Source) (*core.Source, error) {
	added, err := s.sources.AddSource(ctx, source)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil, fmt.Errorf("%w: %q", ErrSourceExists, source.Name)
	}
	return added, err
}

// UpdateSource replaces the URL, selector and exclude patterns of a source.
func (s *Service) UpdateSource(ctx context.Context, source *core.Source) (*core.Source, error) {
	updated, err := s.sources.UpdateSource(ctx, source)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotFound, source.Name)
	}
	return updated, err
}

// UpdateSources sets the URL of each named source, creating missing ones.
// Existing selectors and exclude patterns are kept.
func (s *Service) UpdateSources(ctx context.Context, urls map[string]string) error {
	sources := make([]*core.Source, 0, len(urls))
	for name, url := range urls {
		source, err := s.sources.GetSource(ctx, name)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			source = &core.Source{Name: name}
		case err != nil:
			return err
		}
		source.URL = url
		sources = append(sources, source)
	}
	return s.sources.PutSources(ctx, sources...)
}

// RemoveSource deletes a source. Indexed content from it is kept.
func (s *Service) RemoveSource(ctx context.Context, name string) error {
	err := s.sources.RemoveSource(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %q", ErrSourceNotFound, name)
	}
	return err
}

// ListSources returns every configured source ordered by name.
func (s *Service) ListSources(ctx context.Context) ([]*core.Source, error) {
	return s.sources.ListSources(ctx)
}

// TriggerIngestion starts a run over the configured sources in the
// background. Returns scheduler.ErrAlreadyRunning while a run is in flight.
func (s *Service) TriggerIngestion() error {
	return s.scheduler.TriggerNow()
}

// RunIngestion runs synchronously in the scheduler's run slot and returns
// the report.
func (s *Service) RunIngestion(ctx context.Context, req IngestionRequest) (*core.RunReport, error) {
	if len(req.Sources) == 0 && len(req.Files) == 0 {
		return s.scheduler.RunNow(ctx)
	}
	return s.scheduler.RunWith(ctx, core.TriggerManual, func(ctx context.Context, trigger string) (*core.RunReport, error) {
		return s.pipeline.Run(ctx, ingestion.Request{
			Sources: req.Sources,
			Files:   req.Files,
			Trigger: trigger,
		})
	})
}

// IngestFiles indexes uploaded files in the scheduler's run slot.
func (s *Service) IngestFiles(ctx context.Context, files ...ingestion.FileInput) (*core.RunReport, error) {
	return s.scheduler.RunWith(ctx, core.TriggerUpload, func(ctx context.Context, _ string) (*core.RunReport, error) {
		return s.pipeline.IngestFiles(ctx, files...)
	})
}

// Preview fetches, extracts and chunks without persisting. With no sources
// the configured ones are previewed.
func (s *Service) Preview(ctx context.Context, sources ...*core.Source) ([]ingestion.PreviewDocument, error) {
	if len(sources) == 0 {
		var err error
		if sources, err = s.sources.ListSources(ctx); err != nil {
			return nil, err
		}
	}
	return s.pipeline.Preview(ctx, sources...)
}

// Search returns the chunks most similar to query. topK <= 0 and
// threshold < 0 select the configured defaults.
func (s *Service) Search(ctx context.Context, query string, topK int, threshold float32) ([]*core.SearchResult, error) {
	return s.searcher.Search(ctx, query, topK, threshold)
}

// SearchWithMonitor is Search with per-stage instrumentation.
func (s *Service) SearchWithMonitor(ctx context.Context, query string, topK int, threshold float32, monitor search.SearchMonitor) ([]*core.SearchResult, error) {
	return s.searcher.SearchWithMonitor(ctx, query, topK, threshold, monitor)
}

// Answer retrieves context for question and asks the chat model.
func (s *Service) Answer(ctx context.Context, question string) (*search.Answer, error) {
	return s.searcher.Answer(ctx, question)
}

// SchedulerStatus returns a snapshot of the scheduler state.
func (s *Service) SchedulerStatus() core.SchedulerState {
	return s.scheduler.Status()
}

// StoreHealth reports the size and shape of the vector index.
func (s *Service) StoreHealth(ctx context.Context) (StoreHealth, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return StoreHealth{}, err
	}
	return StoreHealth{
		Collection: s.store.Name(),
		Count:      count,
		Dimension:  s.store.Dimension(),
		Path:       s.backend.Path(),
	}, nil
}

// RecentRuns returns up to limit run reports, newest first.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]*core.RunReport, error) {
	return s.runs.RecentRuns(ctx, limit)
}

// Reembed rewrites every stored vector with the current embedding model.
// It does not take the run slot; avoid running it alongside ingestion.
func (s *Service) Reembed(ctx context.Context, cfg *reembed.Config, progress io.Writer) (reembed.Result, error) {
	r, err := reembed.NewReembedder(s.store, s.provider.Embedder(), cfg, progress)
	if err != nil {
		return reembed.Result{}, err
	}
	return r.Run(ctx)
}

// Close stops the scheduler, waiting up to ShutdownTimeout for an in-flight
// run, then releases every resource. Close is idempotent.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.scheduler.Stop(ctx); err != nil {
			s.logger.Warn("in-flight run cancelled at shutdown", "err", err)
		}
		s.closeErr = s.release()
	})
	return s.closeErr
}

func (s *Service) release() error {
	if s.pipeline != nil {
		s.pipeline.Release()
	}

	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("error closing vector store", "err", err)
			return err
		}
	}

	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}
