package reembed

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/storage"
	"github.com/poiesic/lexrag/storage/badger"
	"github.com/stretchr/testify/require"
)

const testDim = 3

// scriptedEmbedder returns fixed unnormalized vectors unless embedTextsFunc is set.
type scriptedEmbedder struct {
	embedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
	calls          int
}

func (m *scriptedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *scriptedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.embedTextsFunc != nil {
		return m.embedTextsFunc(ctx, texts)
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{0, 3, 4} // magnitude = 5.0
	}
	return result, nil
}

func setupStore(t *testing.T, entries int) (storage.VectorStore, []*core.IndexedEntry) {
	t.Helper()
	store, _, _, backend, err := badger.NewMemoryStores("legal_docs", testDim)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		backend.Close()
	})

	seeded := make([]*core.IndexedEntry, entries)
	for i := range seeded {
		seeded[i] = &core.IndexedEntry{
			ID:         core.ChunkID("doc", i),
			DocumentID: "doc",
			Text:       fmt.Sprintf("clause %d of the lease agreement", i),
			Source:     "uploads",
			Vector:     []float32{1, 0, 0},
		}
	}
	if entries > 0 {
		_, err = store.Upsert(context.Background(), seeded...)
		require.NoError(t, err)
	}
	return store, seeded
}
