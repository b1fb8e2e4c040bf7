package storage

import (
	"context"

	"github.com/poiesic/lexrag/core"
)

// UpsertResult reports what Upsert did with each entry.
type UpsertResult struct {
	Added    int
	Skipped  int
	AddedIDs []string
}

// VectorStore persists IndexedEntry records of one named collection.
// Every method returns ErrStorageClosed after Close.
type VectorStore interface {
	// Name returns the collection name.
	Name() string

	// Dimension returns the fixed vector length of the collection.
	Dimension() int

	// Upsert persists entries whose id is not yet in the collection and skips
	// the rest. Vectors are normalized before storage. Entries are flushed
	// synchronously; an error leaves previously committed entries intact.
	Upsert(ctx context.Context, entries ...*core.IndexedEntry) (UpsertResult, error)

	// Search returns up to topK entries with score >= threshold, highest
	// score first. Scores are absolute: 1 - |q-v|^2/2 on unit vectors.
	Search(ctx context.Context, vector []float32, topK int, threshold float32) ([]*core.SearchResult, error)

	// Get returns the entry with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*core.IndexedEntry, error)

	// Contains reports which of ids are already stored.
	Contains(ctx context.Context, ids ...string) (map[string]bool, error)

	// Count returns the number of persisted entries.
	Count(ctx context.Context) (int, error)

	// Delete removes entries by id. Missing ids are ignored.
	Delete(ctx context.Context, ids ...string) error

	// DeleteCollection removes every entry of the collection.
	DeleteCollection(ctx context.Context) error

	// ForEach calls fn with consecutive batches of entries ordered by id.
	ForEach(ctx context.Context, batchSize int, fn func(batch []*core.IndexedEntry) error) error

	// UpdateVectors replaces the vectors of existing entries. Unknown ids are ignored.
	UpdateVectors(ctx context.Context, vectors map[string][]float32) error

	// Close releases the store. The underlying backend stays open.
	Close() error
}

// SourceRepository manages the configured websites.
type SourceRepository interface {
	// AddSource stores a new source. Returns ErrDuplicateKey if the name exists.
	AddSource(ctx context.Context, source *core.Source) (*core.Source, error)

	// UpdateSource replaces an existing source. Returns ErrNotFound if absent.
	UpdateSource(ctx context.Context, source *core.Source) (*core.Source, error)

	// PutSources creates or replaces sources by name.
	PutSources(ctx context.Context, sources ...*core.Source) error

	// RemoveSource deletes a source by name. Returns ErrNotFound if absent.
	RemoveSource(ctx context.Context, name string) error

	// GetSource returns a source by name or ErrNotFound.
	GetSource(ctx context.Context, name string) (*core.Source, error)

	// ListSources returns every source ordered by name.
	ListSources(ctx context.Context) ([]*core.Source, error)

	// CountSources returns the number of configured sources.
	CountSources(ctx context.Context) (int, error)
}

// RunLog records ingestion run reports for audit.
type RunLog interface {
	// AppendRun persists a finished report and assigns its ID.
	AppendRun(ctx context.Context, report *core.RunReport) error

	// RecentRuns returns up to limit reports, newest first.
	RecentRuns(ctx context.Context, limit int) ([]*core.RunReport, error)
}
