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
	"time"

	"github.com/poiesic/lexrag/ai"
	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/retry"
	"github.com/poiesic/lexrag/storage"
)

// BatchProcessor re-embeds one batch of entries and writes the new vectors back.
type BatchProcessor struct {
	store          storage.VectorStore
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

func NewBatchProcessor(store storage.VectorStore, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		store:          store,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

func (bp *BatchProcessor) Process(ctx context.Context, entries []*core.IndexedEntry) error {
	if len(entries) == 0 {
		return nil
	}

	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Text
	}

	var embeddings [][]float32
	err := retry.WithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("%w: failed after %d attempts: %w", core.ErrEmbedding, bp.maxRetries, err)
	}

	if len(embeddings) != len(entries) {
		return fmt.Errorf("%w: embedding count mismatch: expected %d, got %d", core.ErrEmbedding, len(entries), len(embeddings))
	}

	vectors := make(map[string][]float32, len(entries))
	for i, entry := range entries {
		if core.IsZeroVector(embeddings[i]) {
			return fmt.Errorf("%w: zero-norm vector for entry %s", core.ErrEmbedding, entry.ID)
		}
		vectors[entry.ID] = core.NormalizeVector(embeddings[i])
	}

	if err := bp.store.UpdateVectors(ctx, vectors); err != nil {
		return fmt.Errorf("failed to update entries: %w", err)
	}
	return nil
}
