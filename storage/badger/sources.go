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


package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/storage"
)

// SourceRepository implements storage.SourceRepository for BadgerDB.
type SourceRepository struct {
	backend *Backend
	now     func() time.Time
}

var _ storage.SourceRepository = (*SourceRepository)(nil)

// NewSourceRepository creates a new SourceRepository.
func NewSourceRepository(backend *Backend) storage.SourceRepository {
	return &SourceRepository{
		backend: backend,
		now:     time.Now,
	}
}

// AddSource stores a new source.
func (r *SourceRepository) AddSource(ctx context.Context, source *core.Source) (*core.Source, error) {
	if err := core.ValidateSource(source); err != nil {
		return nil, err
	}
	stored := cloneSource(source)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeSourceKey(stored.Name)
		_, err := tx.Get(key)
		if err == nil {
			return fmt.Errorf("%w: source %q", storage.ErrDuplicateKey, stored.Name)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		now := r.now().UTC()
		stored.CreatedAt = now
		stored.UpdatedAt = now
		if err := tx.Set(key, storage.MarshalSource(stored)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// UpdateSource replaces the URL, selector and exclude patterns of an existing source.
func (r *SourceRepository) UpdateSource(ctx context.Context, source *core.Source) (*core.Source, error) {
	if err := core.ValidateSource(source); err != nil {
		return nil, err
	}
	var updated *core.Source
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := getSource(tx, source.Name)
		if err != nil {
			return err
		}
		updated = cloneSource(source)
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = r.now().UTC()
		if err := tx.Set(makeSourceKey(updated.Name), storage.MarshalSource(updated)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// PutSources creates or replaces sources in a single transaction.
func (r *SourceRepository) PutSources(ctx context.Context, sources ...*core.Source) error {
	for _, s := range sources {
		if err := core.ValidateSource(s); err != nil {
			return err
		}
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		now := r.now().UTC()
		for _, s := range sources {
			stored := cloneSource(s)
			stored.CreatedAt = now
			existing, err := getSource(tx, s.Name)
			switch {
			case err == nil:
				stored.CreatedAt = existing.CreatedAt
			case !errors.Is(err, storage.ErrNotFound):
				return err
			}
			stored.UpdatedAt = now
			if err := tx.Set(makeSourceKey(stored.Name), storage.MarshalSource(stored)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// RemoveSource deletes a source by name.
func (r *SourceRepository) RemoveSource(ctx context.Context, name string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := getSource(tx, name); err != nil {
			return err
		}
		if err := tx.Delete(makeSourceKey(name)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetSource returns a source by name.
func (r *SourceRepository) GetSource(ctx context.Context, name string) (*core.Source, error) {
	var source *core.Source
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		source, err = getSource(tx, name)
		return err
	}, false)
	return source, err
}

// ListSources returns every source ordered by name.
func (r *SourceRepository) ListSources(ctx context.Context) ([]*core.Source, error) {
	var sources []*core.Source
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sourcePrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				s, err := storage.UnmarshalSource(val)
				if err != nil {
					return err
				}
				sources = append(sources, s)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(sources, func(a, b *core.Source) int {
		return strings.Compare(a.Name, b.Name)
	})
	return sources, nil
}

// CountSources returns the number of stored sources.
func (r *SourceRepository) CountSources(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sourcePrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

func getSource(tx *badger.Txn, name string) (*core.Source, error) {
	item, err := tx.Get(makeSourceKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: source %q", storage.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	var source *core.Source
	err = item.Value(func(val []byte) error {
		source, err = storage.UnmarshalSource(val)
		return err
	})
	return source, err
}

func cloneSource(s *core.Source) *core.Source {
	c := *s
	c.Name = strings.TrimSpace(s.Name)
	c.ExcludePatterns = slices.Clone(s.ExcludePatterns)
	return &c
}
