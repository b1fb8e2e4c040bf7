package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/storage"
)

// VectorStore implements storage.VectorStore on top of BadgerDB.
// Every entry of the collection is loaded into memory when the store is
// created; writes go to disk first and become visible to readers only after
// their transaction commits.
type VectorStore struct {
	backend   *Backend
	name      string
	dimension int
	logger    *slog.Logger
	now       func() time.Time

	writeMu sync.Mutex // serializes all mutations

	mu      sync.RWMutex // guards entries and closed
	entries map[string]*core.IndexedEntry
	closed  bool
}

var _ storage.VectorStore = (*VectorStore)(nil)

// VectorStoreOption configures a VectorStore.
type VectorStoreOption func(*VectorStore) error

// WithVectorStoreLogger sets the logger.
func WithVectorStoreLogger(logger *slog.Logger) VectorStoreOption {
	return func(s *VectorStore) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithClock sets the time source used to stamp new entries.
func WithClock(now func() time.Time) VectorStoreOption {
	return func(s *VectorStore) error {
		s.now = now
		return nil
	}
}

// NewVectorStore opens the named collection and loads its entries.
func NewVectorStore(backend *Backend, collection string, dimension int, opts ...VectorStoreOption) (storage.VectorStore, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if collection == "" || strings.Contains(collection, ":") {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}

	s := &VectorStore{
		backend:   backend,
		name:      collection,
		dimension: dimension,
		logger:    slog.Default(),
		now:       time.Now,
		entries:   make(map[string]*core.IndexedEntry),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "vector-store", "collection", collection)

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("%w: loading collection %s: %w", core.ErrStore, collection, err)
	}
	return s, nil
}

// load reads every persisted entry of the collection into memory.
func (s *VectorStore) load() error {
	skipped := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeCollectionPrefix(s.name)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			var entry *core.IndexedEntry
			err := item.Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalEntry(val)
				return err
			})
			if err != nil {
				s.logger.Warn("skipping unreadable entry", "key", string(item.Key()), "error", err)
				skipped++
				continue
			}
			if len(entry.Vector) != s.dimension {
				s.logger.Warn("skipping entry with wrong dimension", "id", entry.ID, "dimension", len(entry.Vector))
				skipped++
				continue
			}
			s.entries[entry.ID] = entry
		}
		return nil
	}, false)
	if err != nil {
		return err
	}
	s.logger.Debug("collection loaded", "entries", len(s.entries), "skipped", skipped)
	return nil
}

// lockWrite takes the writer lock unless the store was closed meanwhile.
func (s *VectorStore) lockWrite() error {
	s.writeMu.Lock()
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		s.writeMu.Unlock()
		return storage.ErrStorageClosed
	}
	return nil
}

func (s *VectorStore) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed || s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return nil
}

// Name returns the collection name.
func (s *VectorStore) Name() string {
	return s.name
}

// Dimension returns the collection's vector length.
func (s *VectorStore) Dimension() int {
	return s.dimension
}

// Upsert persists entries with unseen ids and skips the rest.
func (s *VectorStore) Upsert(ctx context.Context, entries ...*core.IndexedEntry) (storage.UpsertResult, error) {
	var result storage.UpsertResult
	if err := s.checkOpen(ctx); err != nil {
		return result, err
	}
	for _, e := range entries {
		if err := core.ValidateEntry(e, s.dimension); err != nil {
			return result, err
		}
	}

	if err := s.lockWrite(); err != nil {
		return result, err
	}
	defer s.writeMu.Unlock()

	now := s.now().UTC()
	pending := make([]*core.IndexedEntry, 0, len(entries))
	batch := make(map[string]bool, len(entries))
	s.mu.RLock()
	for _, e := range entries {
		if _, exists := s.entries[e.ID]; exists || batch[e.ID] {
			result.Skipped++
			continue
		}
		batch[e.ID] = true
		stored := cloneEntry(e)
		stored.Vector = core.NormalizeVector(e.Vector)
		if stored.InsertedAt.IsZero() {
			stored.InsertedAt = now
		}
		pending = append(pending, stored)
	}
	s.mu.RUnlock()

	committed, err := s.applyBatch(len(pending), func(tx *badger.Txn, i int) error {
		e := pending[i]
		return tx.Set(makeEntryKey(s.name, e.ID), storage.MarshalEntry(e))
	})

	s.mu.Lock()
	for _, e := range pending[:committed] {
		s.entries[e.ID] = e
		result.AddedIDs = append(result.AddedIDs, e.ID)
	}
	s.mu.Unlock()
	result.Added = committed

	if err != nil {
		return result, fmt.Errorf("%w: upsert: %w", core.ErrStore, err)
	}
	s.logger.Debug("upsert", "added", result.Added, "skipped", result.Skipped)
	return result, nil
}

// applyBatch runs op for indexes 0..n-1 in write transactions, committing and
// starting a new transaction whenever badger reports it is too big. It returns
// how many leading operations were committed.
func (s *VectorStore) applyBatch(n int, op func(tx *badger.Txn, i int) error) (int, error) {
	if n == 0 {
		return 0, nil
	}
	committed := 0
	tx := s.backend.NewTransaction(true)
	defer func() { tx.Discard() }()

	for i := 0; i < n; i++ {
		err := op(tx, i)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := tx.Commit(); err != nil {
				return committed, err
			}
			committed = i
			tx = s.backend.NewTransaction(true)
			err = op(tx, i)
		}
		if err != nil {
			return committed, err
		}
	}
	if err := tx.Commit(); err != nil {
		return committed, err
	}
	return n, nil
}

type scored struct {
	entry *core.IndexedEntry
	dist  float64
	score float32
}

// Search ranks every entry by absolute similarity to vector.
func (s *VectorStore) Search(ctx context.Context, vector []float32, topK int, threshold float32) ([]*core.SearchResult, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, collection has %d", core.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if core.IsZeroVector(vector) {
		return nil, fmt.Errorf("%w: query vector has zero norm", core.ErrEmbedding)
	}
	if topK <= 0 {
		return nil, nil
	}

	query := core.NormalizeVector(vector)
	var candidates []scored

	s.mu.RLock()
	for _, e := range s.entries {
		dist := core.SquaredDistance(query, e.Vector)
		score := core.SimilarityScore(query, e.Vector)
		if score >= threshold {
			candidates = append(candidates, scored{entry: e, dist: dist, score: score})
		}
	}
	s.mu.RUnlock()

	// Rank on the raw distance: scores clamp at 0 for obtuse pairs.
	slices.SortFunc(candidates, func(a, b scored) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return strings.Compare(a.entry.ID, b.entry.ID)
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]*core.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, &core.SearchResult{
			Entry: cloneEntry(c.entry),
			Score: c.score,
		})
	}
	return results, nil
}

// Get returns a copy of the entry with the given id.
func (s *VectorStore) Get(ctx context.Context, id string) (*core.IndexedEntry, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: entry %s", storage.ErrNotFound, id)
	}
	return cloneEntry(e), nil
}

// Contains reports which ids are stored.
func (s *VectorStore) Contains(ctx context.Context, ids ...string) (map[string]bool, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		_, out[id] = s.entries[id]
	}
	return out, nil
}

// Count returns the number of entries in the collection.
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Delete removes entries by id. Unknown ids are ignored.
func (s *VectorStore) Delete(ctx context.Context, ids ...string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	if err := s.lockWrite(); err != nil {
		return err
	}
	defer s.writeMu.Unlock()

	s.mu.RLock()
	var present []string
	for _, id := range ids {
		if _, ok := s.entries[id]; ok {
			present = append(present, id)
		}
	}
	s.mu.RUnlock()

	committed, err := s.applyBatch(len(present), func(tx *badger.Txn, i int) error {
		return tx.Delete(makeEntryKey(s.name, present[i]))
	})

	s.mu.Lock()
	for _, id := range present[:committed] {
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: delete: %w", core.ErrStore, err)
	}
	return nil
}

// DeleteCollection removes every entry of the collection. The store stays usable.
func (s *VectorStore) DeleteCollection(ctx context.Context) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	if err := s.lockWrite(); err != nil {
		return err
	}
	defer s.writeMu.Unlock()

	if err := s.backend.DropPrefix(makeCollectionPrefix(s.name)); err != nil {
		return fmt.Errorf("%w: delete collection: %w", core.ErrStore, err)
	}

	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]*core.IndexedEntry)
	s.mu.Unlock()

	s.logger.Info("collection deleted", "entries", n)
	return nil
}

// ForEach visits entries in id order, batchSize at a time.
func (s *VectorStore) ForEach(ctx context.Context, batchSize int, fn func(batch []*core.IndexedEntry) error) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if batchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	s.mu.RLock()
	ids := slices.Sorted(maps.Keys(s.entries))
	s.mu.RUnlock()

	for chunk := range slices.Chunk(ids, batchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := make([]*core.IndexedEntry, 0, len(chunk))
		s.mu.RLock()
		for _, id := range chunk {
			if e, ok := s.entries[id]; ok {
				batch = append(batch, cloneEntry(e))
			}
		}
		s.mu.RUnlock()
		if len(batch) == 0 {
			continue
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

// UpdateVectors replaces the vectors of existing entries.
func (s *VectorStore) UpdateVectors(ctx context.Context, vectors map[string][]float32) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	for id, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("%w: entry %s has %d", core.ErrDimensionMismatch, id, len(v))
		}
		if core.IsZeroVector(v) {
			return fmt.Errorf("%w: entry %s has a zero-norm vector", core.ErrInvalidEntry, id)
		}
	}

	if err := s.lockWrite(); err != nil {
		return err
	}
	defer s.writeMu.Unlock()

	var updated []*core.IndexedEntry
	s.mu.RLock()
	for _, id := range slices.Sorted(maps.Keys(vectors)) {
		if e, ok := s.entries[id]; ok {
			u := cloneEntry(e)
			u.Vector = core.NormalizeVector(vectors[id])
			updated = append(updated, u)
		}
	}
	s.mu.RUnlock()

	committed, err := s.applyBatch(len(updated), func(tx *badger.Txn, i int) error {
		e := updated[i]
		return tx.Set(makeEntryKey(s.name, e.ID), storage.MarshalEntry(e))
	})

	s.mu.Lock()
	for _, e := range updated[:committed] {
		s.entries[e.ID] = e
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: update vectors: %w", core.ErrStore, err)
	}
	return nil
}

// Close marks the store closed. The backend is owned by the caller.
func (s *VectorStore) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

func cloneEntry(e *core.IndexedEntry) *core.IndexedEntry {
	c := *e
	c.Vector = slices.Clone(e.Vector)
	c.Metadata = maps.Clone(e.Metadata)
	return &c
}
