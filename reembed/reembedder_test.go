package reembed

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/lexrag/ai/mock"
	"github.com/poiesic/lexrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		BatchSize:      2,
		ReportInterval: 1,
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
	}
}

func TestReembedder_Run(t *testing.T) {
	store, entries := setupStore(t, 5)
	ctx := context.Background()
	embedder := mock.NewMockEmbedderWithDimension(testDim)

	var progress bytes.Buffer
	r, err := NewReembedder(store, embedder, testConfig(), &progress)
	require.NoError(t, err)

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, 3, embedder.CallCount(), "5 entries in batches of 2")
	assert.Equal(t, 5, embedder.TextCount())

	for _, entry := range entries {
		updated, err := store.Get(ctx, entry.ID)
		require.NoError(t, err)
		assert.InDeltaSlice(t, mock.BagOfWords(entry.Text, testDim), updated.Vector, 1e-5)
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count, "reembedding should not add or drop entries")

	output := progress.String()
	assert.Contains(t, output, "Starting reembedding of 5 entries")
	assert.Contains(t, output, "Reembedding complete. Processed 5 entries")
}

func TestReembedder_EmptyCollection(t *testing.T) {
	store, _ := setupStore(t, 0)
	embedder := mock.NewMockEmbedderWithDimension(testDim)

	var progress bytes.Buffer
	r, err := NewReembedder(store, embedder, nil, &progress)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Zero(t, embedder.CallCount())
	assert.Contains(t, progress.String(), "No entries found")
}

func TestReembedder_EmbeddingError(t *testing.T) {
	store, _ := setupStore(t, 4)
	calls := 0
	embedder := &scriptedEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("model unloaded")
			}
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{0, 1, 0}
			}
			return out, nil
		},
	}

	r, err := NewReembedder(store, embedder, testConfig(), nil)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.Equal(t, 2, result.Processed, "first batch should be kept")

	first, err := store.Get(context.Background(), core.ChunkID("doc", 0))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, first.Vector)

	last, err := store.Get(context.Background(), core.ChunkID("doc", 3))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, last.Vector)
}

func TestReembedder_ContextCancellation(t *testing.T) {
	store, _ := setupStore(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := NewReembedder(store, mock.NewMockEmbedderWithDimension(testDim), testConfig(), nil)
	require.NoError(t, err)

	_, err = r.Run(ctx)
	require.Error(t, err)
}

func TestNewReembedder_Validation(t *testing.T) {
	store, _ := setupStore(t, 0)

	_, err := NewReembedder(nil, &scriptedEmbedder{}, nil, nil)
	assert.ErrorIs(t, err, ErrVectorStoreRequired)

	_, err = NewReembedder(store, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 100, config.BatchSize)
	assert.Equal(t, 100, config.ReportInterval)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 1*time.Second, config.RetryDelay)
}
