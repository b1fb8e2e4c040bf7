package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/lexrag/ai"
	"github.com/poiesic/lexrag/ai/mock"
	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/storage"
	"github.com/poiesic/lexrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 64

var corpus = map[string]string{
	"lease_chunk_0":    "A residential lease may be terminated by the tenant with thirty days written notice.",
	"contract_chunk_0": "A contract is formed when an offer is accepted and consideration is exchanged.",
	"penal_chunk_0":    "The penal code defines criminal offences and sentencing for each offence.",
	"court_chunk_0":    "Appeals from the district court are heard by the court of appeal.",
}

func setupSearcher(t *testing.T, opts ...Option) (*Searcher, *mock.MockEmbedder, *mock.MockGenerator) {
	t.Helper()
	store, _, _, backend, err := badger.NewMemoryStores("legal_documents", testDim)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		backend.Close()
	})

	seed(t, store)

	embedder := mock.NewMockEmbedderWithDimension(testDim)
	generator := mock.NewMockGenerator()
	opts = append([]Option{WithGenerator(generator)}, opts...)
	s, err := NewSearcher(store, embedder, opts...)
	require.NoError(t, err)
	return s, embedder, generator
}

func seed(t *testing.T, store storage.VectorStore) {
	t.Helper()
	entries := make([]*core.IndexedEntry, 0, len(corpus))
	for id, text := range corpus {
		entries = append(entries, &core.IndexedEntry{
			ID:         id,
			DocumentID: strings.TrimSuffix(id, "_chunk_0"),
			Text:       text,
			Source:     core.WebsiteSource("Ministry"),
			Vector:     mock.BagOfWords(text, testDim),
		})
	}
	_, err := store.Upsert(context.Background(), entries...)
	require.NoError(t, err)
}

func TestSearcher_Search(t *testing.T) {
	s, _, _ := setupSearcher(t)

	results, err := s.Search(context.Background(), "tenant lease terminated notice", 0, -1)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), DefaultTopK)
	assert.Equal(t, "lease_chunk_0", results[0].Entry.ID)
	assert.True(t, results[0].KeywordMatch)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, DefaultScoreThreshold)
		assert.LessOrEqual(t, r.Score, float32(1))
	}
}

func TestSearcher_ExactTextScoresOne(t *testing.T) {
	s, _, _ := setupSearcher(t)

	results, err := s.Search(context.Background(), corpus["penal_chunk_0"], 1, 0.99)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "penal_chunk_0", results[0].Entry.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
}

func TestSearcher_ThresholdFiltersEverything(t *testing.T) {
	s, _, _ := setupSearcher(t)

	results, err := s.Search(context.Background(), "maritime salvage rights", 5, 0.95)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearcher_TopKBound(t *testing.T) {
	s, _, _ := setupSearcher(t)

	results, err := s.Search(context.Background(), "court", 2, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearcher_EmptyQuery(t *testing.T) {
	s, embedder, _ := setupSearcher(t)

	_, err := s.Search(context.Background(), "   ", 0, -1)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Zero(t, embedder.CallCount())
}

func TestSearcher_EmbeddingErrors(t *testing.T) {
	s, embedder, _ := setupSearcher(t)

	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("service down")
	}
	_, err := s.Search(context.Background(), "lease", 0, -1)
	assert.ErrorIs(t, err, core.ErrEmbedding)

	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0}, nil
	}
	_, err = s.Search(context.Background(), "lease", 0, -1)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestSearcher_ZeroQueryVector(t *testing.T) {
	s, embedder, _ := setupSearcher(t)

	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return make([]float32, testDim), nil
	}
	results, err := s.Search(context.Background(), "lease", 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.Empty(t, results)
}

func TestSearcher_WithMonitor(t *testing.T) {
	s, _, _ := setupSearcher(t)
	m := &recordingMonitor{}

	results, err := s.SearchWithMonitor(context.Background(), "penal code offences", 3, 0.2, m)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "embedding", "vector", "keyword", "finish"}, m.events)
	assert.Equal(t, len(results), m.finished)
}

type recordingMonitor struct {
	events   []string
	finished int
}

func (m *recordingMonitor) Start(string, int, float32) { m.events = append(m.events, "start") }
func (m *recordingMonitor) AfterEmbedding(int)         { m.events = append(m.events, "embedding") }
func (m *recordingMonitor) AfterVectorSearch([]*core.SearchResult) {
	m.events = append(m.events, "vector")
}
func (m *recordingMonitor) KeywordHit(*core.SearchResult) { m.events = append(m.events, "keyword") }
func (m *recordingMonitor) Finish(results []*core.SearchResult) {
	m.events = append(m.events, "finish")
	m.finished = len(results)
}

func TestSearcher_Answer(t *testing.T) {
	s, _, generator := setupSearcher(t)

	answer, err := s.Answer(context.Background(), "Can a tenant terminate a residential lease?")
	require.NoError(t, err)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "lease_chunk_0", answer.Sources[0].Entry.ID)

	prompt := generator.LastPrompt().User
	assert.True(t, strings.HasPrefix(prompt, "You are a legal assistant."))
	assert.Contains(t, prompt, "[Source: government_website:Ministry (relevance: ")
	assert.Contains(t, prompt, corpus["lease_chunk_0"])
	assert.Contains(t, prompt, "USER QUESTION: Can a tenant terminate a residential lease?")
	assert.Equal(t, "answer: "+prompt, answer.Text)
}

func TestSearcher_AnswerWithoutContext(t *testing.T) {
	s, _, generator := setupSearcher(t, WithScoreThreshold(1))

	answer, err := s.Answer(context.Background(), "What is maritime salvage?")
	require.NoError(t, err)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, ai.Prompt{User: "What is maritime salvage?"}, generator.LastPrompt())
}

func TestSearcher_AnswerRequiresGenerator(t *testing.T) {
	store, _, _, backend, err := badger.NewMemoryStores("legal_documents", testDim)
	require.NoError(t, err)
	defer backend.Close()
	defer store.Close()

	s, err := NewSearcher(store, mock.NewMockEmbedderWithDimension(testDim))
	require.NoError(t, err)
	_, err = s.Answer(context.Background(), "question")
	assert.ErrorIs(t, err, ErrGeneratorRequired)
}

func TestNewSearcher_Validation(t *testing.T) {
	_, err := NewSearcher(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrVectorStoreRequired)
}

func result(source, text string, score float32) *core.SearchResult {
	return &core.SearchResult{Entry: &core.IndexedEntry{Source: source, Text: text}, Score: score}
}

func TestBuildContext(t *testing.T) {
	results := []*core.SearchResult{
		result("pdf:civil.pdf", "First passage.", 0.871),
		result("government_website:Courts", "Second passage.", 0.5),
	}

	ctx := BuildContext(results, 2000)
	assert.Equal(t,
		"[Source: pdf:civil.pdf (relevance: 0.87)]\nFirst passage.\n\n"+
			"[Source: government_website:Courts (relevance: 0.50)]\nSecond passage.\n",
		ctx)

	first := "[Source: pdf:civil.pdf (relevance: 0.87)]\nFirst passage.\n"
	assert.Equal(t, first, BuildContext(results, len(first)), "a block that does not fit ends the context")
	assert.Empty(t, BuildContext(results, 10))
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, ai.Prompt{User: "Question?"}, BuildPrompt(" Question? ", nil, 2000))

	p := BuildPrompt("Question?", []*core.SearchResult{result("file:a.txt", "Passage.", 0.9)}, 2000)
	assert.Contains(t, p.User, "LEGAL CONTEXT:\n[Source: file:a.txt (relevance: 0.90)]\nPassage.\n")
	assert.Contains(t, p.User, "recommend consulting with a qualified lawyer")
}

func TestContainsAllQueryWords(t *testing.T) {
	doc := "A residential lease may be terminated by the tenant."
	assert.True(t, containsAllQueryWords(doc, "Lease terminated?"))
	assert.True(t, containsAllQueryWords(doc, "what is the LEASE"))
	assert.False(t, containsAllQueryWords(doc, "lease eviction"))
	assert.False(t, containsAllQueryWords(doc, "the of and"), "stop words alone never match")
}
