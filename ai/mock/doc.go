// Package mock provides test double implementations of AI service interfaces.
//
// MockEmbedder defaults to a hashed bag-of-words embedding, so texts that
// share words are closer than texts that don't. MockGenerator echoes the
// prompt. Both accept function fields for custom behavior and are safe for
// concurrent use.
//
//	embedder := mock.NewMockEmbedderWithDimension(8)
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("service unavailable")
//	}
package mock
