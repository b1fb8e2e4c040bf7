package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/lexrag/ai"
	"github.com/poiesic/lexrag/chunker"
	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/retry"
	"github.com/poiesic/lexrag/storage"
)

// embeddingProcessor chunks documents, embeds the chunks that are not yet
// stored and upserts the resulting entries.
type embeddingProcessor struct {
	store         storage.VectorStore
	embedder      ai.Embedder
	chunker       *chunker.Chunker
	pool          *ants.Pool
	batchSize     int
	retryAttempts int
	retryDelay    time.Duration
	storeTimeout  time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

var _ processor = (*embeddingProcessor)(nil)

func (ep *embeddingProcessor) process(ctx context.Context, unit string, doc *core.ExtractedDocument) (core.UnitResult, error) {
	result := core.UnitResult{
		Unit:       unit,
		SourceName: doc.Metadata[core.MetaSourceName],
		DocumentID: doc.ID,
	}

	chunks := ep.chunker.Split(doc)
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}

	present, err := ep.contains(ctx, ids)
	if err != nil {
		return result, err
	}
	pending := slices.DeleteFunc(slices.Clone(chunks), func(c core.Chunk) bool { return present[c.ID] })
	result.ChunksSkipped = len(chunks) - len(pending)
	if len(pending) == 0 {
		ep.logger.Debug("document already indexed", "unit", unit, "doc", doc.ID, "chunks", len(chunks))
		result.Outcome = core.OutcomeUnchanged
		return result, nil
	}

	texts := make([]string, len(pending))
	for i, c := range pending {
		texts[i] = c.Text
	}
	vectors, err := ep.embed(ctx, texts)
	if err != nil {
		result.Outcome = core.OutcomeFailed
		result.Err = core.NewStageError(core.StageEmbed, unit, err)
		return result, nil
	}

	insertedAt := ep.now().UTC()
	entries := make([]*core.IndexedEntry, len(pending))
	for i, c := range pending {
		entries[i] = core.EntryFromChunk(doc, c, vectors[i])
		entries[i].InsertedAt = insertedAt
	}

	upserted, err := ep.upsert(ctx, entries)
	if err != nil {
		return result, core.NewStageError(core.StageStore, unit, err)
	}
	result.ChunksAdded = upserted.Added
	result.ChunksSkipped += upserted.Skipped
	if upserted.Added > 0 {
		result.Outcome = core.OutcomeAdded
	} else {
		result.Outcome = core.OutcomeUnchanged
	}
	ep.logger.Debug("document indexed", "unit", unit, "doc", doc.ID,
		"added", result.ChunksAdded, "skipped", result.ChunksSkipped)
	return result, nil
}

func (ep *embeddingProcessor) contains(ctx context.Context, ids []string) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, ep.storeTimeout)
	defer cancel()
	present, err := ep.store.Contains(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStore, err)
	}
	return present, nil
}

func (ep *embeddingProcessor) upsert(ctx context.Context, entries []*core.IndexedEntry) (storage.UpsertResult, error) {
	ctx, cancel := context.WithTimeout(ctx, ep.storeTimeout)
	defer cancel()
	res, err := ep.store.Upsert(ctx, entries...)
	if err != nil {
		return res, fmt.Errorf("%w: %w", core.ErrStore, err)
	}
	return res, nil
}

// embed embeds texts in batches on the embedding pool and returns unit
// vectors in input order. Any batch failing fails the whole call.
func (ep *embeddingProcessor) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for start := 0; start < len(texts); start += ep.batchSize {
		end := min(start+ep.batchSize, len(texts))
		wg.Add(1)
		task := func() {
			defer wg.Done()
			batch, err := ep.embedBatch(ctx, texts[start:end])
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			copy(vectors[start:end], batch)
		}
		if err := ep.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

func (ep *embeddingProcessor) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	dim := ep.store.Dimension()
	var vectors [][]float32
	err := retry.WithBackoff(ctx, func() error {
		out, err := ep.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(out) != len(texts) {
			return fmt.Errorf("embedding result mismatch: expected %d, received %d", len(texts), len(out))
		}
		for i, v := range out {
			if len(v) != dim {
				return retry.Permanent(fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(v), dim))
			}
			if core.IsZeroVector(v) {
				return retry.Permanent(fmt.Errorf("%w: zero-norm vector for text %d", core.ErrEmbedding, i))
			}
			out[i] = core.NormalizeVector(v)
		}
		vectors = out
		return nil
	}, ep.retryAttempts, ep.retryDelay)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		ep.logger.Warn("embedding failed", "texts", len(texts), "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	return vectors, nil
}
