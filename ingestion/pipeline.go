package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/lexrag/ai"
	"github.com/poiesic/lexrag/chunker"
	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/extract"
	"github.com/poiesic/lexrag/storage"
)

// UploadsSourceName is the source name reported for uploaded files.
const UploadsSourceName = "uploads"

// Defaults
const (
	DefaultMaxWorkers       = 3
	DefaultEmbedConcurrency = 4
	DefaultEmbedBatchSize   = 16
	DefaultRetryAttempts    = 3
	DefaultRetryDelay       = 500 * time.Millisecond
	DefaultStoreTimeout     = 30 * time.Second
	PreviewLength           = 200
)

// uploadExtensions lists the file types picked up from the uploads directory.
var uploadExtensions = []string{".pdf", ".txt", ".md"}

// Pipeline runs ingestion of websites and uploaded files into a vector store.
type Pipeline struct {
	store      storage.VectorStore
	runLog     storage.RunLog
	pages      PageSource
	extractor  *extract.Extractor
	chunker    *chunker.Chunker
	sourcePool *ants.Pool
	embedPool  *ants.Pool
	proc       *embeddingProcessor
	uploadsDir string
	logger     *slog.Logger
	now        func() time.Time

	maxWorkers       int
	embedConcurrency int
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithMaxWorkers sets how many sources and files are processed at once.
func WithMaxWorkers(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return errors.New("max workers must be positive")
		}
		p.maxWorkers = n
		return nil
	}
}

// WithEmbedConcurrency sets how many embedding batches run at once.
func WithEmbedConcurrency(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return errors.New("embed concurrency must be positive")
		}
		p.embedConcurrency = n
		return nil
	}
}

// WithEmbedBatchSize sets the number of chunks per embedding call.
func WithEmbedBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return errors.New("embed batch size must be positive")
		}
		p.proc.batchSize = n
		return nil
	}
}

// WithEmbedRetry sets attempts and base backoff for embedding calls.
func WithEmbedRetry(attempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if attempts < 1 {
			return errors.New("retry attempts must be positive")
		}
		p.proc.retryAttempts = attempts
		p.proc.retryDelay = baseDelay
		return nil
	}
}

// WithStoreTimeout bounds each vector store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return errors.New("store timeout must be positive")
		}
		p.proc.storeTimeout = d
		return nil
	}
}

// WithUploadsDir sets the directory scanned by requests with IncludeUploads.
func WithUploadsDir(dir string) Option {
	return func(p *Pipeline) error {
		p.uploadsDir = dir
		return nil
	}
}

// WithRunLog records every finished run.
func WithRunLog(runLog storage.RunLog) Option {
	return func(p *Pipeline) error {
		p.runLog = runLog
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithClock sets the time source for report and entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		p.now = now
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	store storage.VectorStore,
	pages PageSource,
	extractor *extract.Extractor,
	chunks *chunker.Chunker,
	embedder ai.Embedder,
	opts ...Option,
) (*Pipeline, error) {
	switch {
	case store == nil:
		return nil, ErrVectorStoreRequired
	case pages == nil:
		return nil, ErrCrawlerRequired
	case extractor == nil:
		return nil, ErrExtractorRequired
	case chunks == nil:
		return nil, ErrChunkerRequired
	case embedder == nil:
		return nil, ErrEmbedderRequired
	}

	p := &Pipeline{
		store:            store,
		pages:            pages,
		extractor:        extractor,
		chunker:          chunks,
		logger:           slog.Default(),
		now:              time.Now,
		maxWorkers:       DefaultMaxWorkers,
		embedConcurrency: DefaultEmbedConcurrency,
		proc: &embeddingProcessor{
			store:         store,
			embedder:      embedder,
			chunker:       chunks,
			batchSize:     DefaultEmbedBatchSize,
			retryAttempts: DefaultRetryAttempts,
			retryDelay:    DefaultRetryDelay,
			storeTimeout:  DefaultStoreTimeout,
		},
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")
	p.proc.logger = p.logger.With("processor", "embeddings")
	p.proc.now = p.now

	sourcePool, err := ants.NewPool(p.maxWorkers)
	if err != nil {
		return nil, err
	}
	embedPool, err := ants.NewPool(p.embedConcurrency)
	if err != nil {
		sourcePool.Release()
		return nil, err
	}
	p.sourcePool = sourcePool
	p.embedPool = embedPool
	p.proc.pool = embedPool
	return p, nil
}

// FileInput is an uploaded file.
type FileInput struct {
	Name        string
	ContentType string // Optional; detected from name and content when empty
	Body        []byte
}

// ReadFile loads a file from disk as a FileInput.
func ReadFile(path string) (FileInput, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return FileInput{}, err
	}
	return FileInput{Name: filepath.Base(path), Body: body}, nil
}

// Request describes one ingestion run.
type Request struct {
	Sources        []*core.Source
	Files          []FileInput
	IncludeUploads bool // Also ingest every supported file in the uploads directory
	Trigger        string
}

// Run executes one ingestion run and returns its report. Per-unit failures are
// recorded in the report. A store failure stops the run; the partial report
// is returned together with the error. The report is appended to the run log
// in every case.
func (p *Pipeline) Run(ctx context.Context, req Request) (*core.RunReport, error) {
	files := slices.Clone(req.Files)
	if req.IncludeUploads {
		uploads, err := p.scanUploads()
		if err != nil {
			p.logger.Warn("could not read uploads directory", "dir", p.uploadsDir, "err", err)
		}
		files = append(files, uploads...)
	}
	if len(req.Sources) == 0 && len(files) == 0 {
		return nil, ErrNothingToIngest
	}

	trigger := req.Trigger
	if trigger == "" {
		trigger = core.TriggerManual
	}
	report := core.NewRunReport(trigger, p.now().UTC())
	p.logger.Info("ingestion run started", "trigger", trigger,
		"sources", len(req.Sources), "files", len(files))

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(res core.UnitResult, fatal error) {
		mu.Lock()
		defer mu.Unlock()
		if fatal != nil {
			cancel(fatal)
			return
		}
		if runCtx.Err() != nil && res.Outcome == core.OutcomeFailed && errors.Is(res.Err, context.Canceled) {
			return
		}
		report.Record(res)
	}

	submit := func(task func()) {
		wg.Add(1)
		wrapped := func() {
			defer wg.Done()
			task()
		}
		if err := p.sourcePool.Submit(wrapped); err != nil {
			wrapped()
		}
	}

	for _, source := range req.Sources {
		submit(func() { p.ingestSource(runCtx, source, record) })
	}
	for _, file := range files {
		submit(func() { p.ingestFile(runCtx, file, record) })
	}
	wg.Wait()

	var fatal error
	if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		fatal = cause
	} else if ctx.Err() != nil {
		fatal = ctx.Err()
	}
	report.Finish(p.now().UTC(), fatal)
	p.appendRun(ctx, report)

	p.logger.Info("ingestion run finished",
		"trigger", report.Trigger,
		"status", report.Status,
		"scraped", report.Scraped,
		"documents_added", report.DocumentsAdded,
		"documents_unchanged", report.DocumentsUnchanged,
		"too_short", report.TooShort,
		"failed", report.Failed,
		"chunks_added", report.ChunksAdded,
		"chunks_skipped", report.ChunksSkipped,
		"duration", report.Duration())
	if fatal != nil {
		return report, fatal
	}
	return report, nil
}

// IngestFiles runs ingestion for uploaded files only.
func (p *Pipeline) IngestFiles(ctx context.Context, files ...FileInput) (*core.RunReport, error) {
	return p.Run(ctx, Request{Files: files, Trigger: core.TriggerUpload})
}

func (p *Pipeline) ingestSource(ctx context.Context, source *core.Source, record func(core.UnitResult, error)) {
	logger := p.logger.With("source", source.Name)
	for page := range p.pages.Crawl(ctx, source) {
		if ctx.Err() != nil {
			return
		}
		if page.Err != nil {
			record(unitFailure(source.Name, page.URL, page.Err), nil)
			continue
		}
		res, fatal := p.proc.process(ctx, page.URL, page.Document)
		res.SourceName = source.Name
		if fatal != nil {
			logger.Error("aborting run", "url", page.URL, "err", fatal)
		}
		record(res, fatal)
		if fatal != nil {
			return
		}
	}
}

func (p *Pipeline) ingestFile(ctx context.Context, file FileInput, record func(core.UnitResult, error)) {
	unit := &core.RawUnit{
		Origin:      file.Name,
		ContentType: file.ContentType,
		Body:        file.Body,
		FetchedAt:   p.now(),
	}
	doc, err := p.extractor.File(unit)
	if err != nil {
		record(unitFailure(UploadsSourceName, file.Name, core.NewStageError(core.StageExtract, file.Name, err)), nil)
		return
	}
	res, fatal := p.proc.process(ctx, file.Name, doc)
	res.SourceName = UploadsSourceName
	if fatal != nil {
		p.logger.Error("aborting run", "file", file.Name, "err", fatal)
	}
	record(res, fatal)
}

// unitFailure classifies a fetch or extraction error.
func unitFailure(sourceName, unit string, err error) core.UnitResult {
	res := core.UnitResult{Unit: unit, SourceName: sourceName, Err: err}
	if errors.Is(err, core.ErrContentTooShort) {
		res.Outcome = core.OutcomeTooShort
	} else {
		res.Outcome = core.OutcomeFailed
	}
	return res
}

func (p *Pipeline) appendRun(ctx context.Context, report *core.RunReport) {
	if p.runLog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.proc.storeTimeout)
	defer cancel()
	if err := p.runLog.AppendRun(ctx, report); err != nil {
		p.logger.Error("failed to record run", "err", err)
	}
}

// scanUploads reads every supported file directly inside the uploads directory.
// A missing directory yields no files.
func (p *Pipeline) scanUploads() ([]FileInput, error) {
	if p.uploadsDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(p.uploadsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []FileInput
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(uploadExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		f, err := ReadFile(filepath.Join(p.uploadsDir, e.Name()))
		if err != nil {
			p.logger.Warn("skipping unreadable upload", "file", e.Name(), "err", err)
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

// PreviewDocument describes what ingesting a page would produce.
type PreviewDocument struct {
	ID         string
	Source     string
	URL        string
	Title      string
	CharCount  int
	ChunkCount int
	Preview    string
}

// Preview crawls, extracts and chunks sources without embedding or storing
// anything. Pages that fail or are too short are omitted.
func (p *Pipeline) Preview(ctx context.Context, sources ...*core.Source) ([]PreviewDocument, error) {
	var docs []PreviewDocument
	for _, source := range sources {
		for page := range p.pages.Crawl(ctx, source) {
			if page.Err != nil {
				p.logger.Debug("preview skipped page", "url", page.URL, "err", page.Err)
				continue
			}
			doc := page.Document
			docs = append(docs, PreviewDocument{
				ID:         doc.ID,
				Source:     doc.Source,
				URL:        doc.Metadata[core.MetaURL],
				Title:      doc.Metadata[core.MetaTitle],
				CharCount:  utf8.RuneCountInString(doc.Text),
				ChunkCount: len(p.chunker.Split(doc)),
				Preview:    truncate(doc.Text, PreviewLength),
			})
		}
		if err := ctx.Err(); err != nil {
			return docs, err
		}
	}
	return docs, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// Release releases the worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.sourcePool != nil {
		p.sourcePool.Release()
	}
	if p.embedPool != nil {
		p.embedPool.Release()
	}
}
