package ingestion

import "errors"

var (
	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrCrawlerRequired is returned when a crawler is not provided.
	ErrCrawlerRequired = errors.New("crawler required")

	// ErrExtractorRequired is returned when an extractor is not provided.
	ErrExtractorRequired = errors.New("extractor required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrNothingToIngest is returned when a request names no sources, files or uploads.
	ErrNothingToIngest = errors.New("nothing to ingest")
)
