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

package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/lexrag/ai"
	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of entries to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of entries)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Result summarizes a completed run.
type Result struct {
	Processed int
	Elapsed   time.Duration
}

// Reembedder orchestrates the reembedding of every entry in a collection.
type Reembedder struct {
	store     storage.VectorStore
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(store storage.VectorStore, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if store == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		store:     store,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(store, embedder, config.MaxRetries, config.RetryDelay),
	}, nil
}

// Run re-embeds every entry in the collection and reports progress to the
// configured writer. A failing batch stops the run; batches already written
// keep their new vectors.
func (r *Reembedder) Run(ctx context.Context) (Result, error) {
	total, err := r.store.Count(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to count entries: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No entries found in collection %q\n", r.store.Name())
		return Result{}, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d entries in %q (batch size: %d)\n",
		total, r.store.Name(), r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.store.ForEach(ctx, r.config.BatchSize, func(batch []*core.IndexedEntry) error {
		if err := r.processor.Process(ctx, batch); err != nil {
			return fmt.Errorf("failed to process batch at entry %d: %w", processed, err)
		}
		processed += len(batch)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		return Result{Processed: processed, Elapsed: tracker.Elapsed()}, err
	}

	tracker.Finish()
	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d entries in %v (%.1f entries/sec)\n",
		processed, elapsed.Round(time.Millisecond), float64(processed)/max(elapsed.Seconds(), 1e-9))

	return Result{Processed: processed, Elapsed: elapsed}, nil
}
