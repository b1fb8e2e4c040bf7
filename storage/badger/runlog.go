package badger

import (
	"context"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/storage"
)

// RunLog implements storage.RunLog for BadgerDB. Reports are keyed by start
// time so iteration order is chronological.
type RunLog struct {
	backend *Backend
	seq     atomic.Uint32
}

var _ storage.RunLog = (*RunLog)(nil)

// NewRunLog creates a new RunLog.
func NewRunLog(backend *Backend) storage.RunLog {
	return &RunLog{backend: backend}
}

// AppendRun persists report and sets its ID to the start time in microseconds.
func (l *RunLog) AppendRun(ctx context.Context, report *core.RunReport) error {
	report.ID = uint64(report.StartedAt.UnixMicro())
	key := makeRunKey(report.StartedAt, l.seq.Add(1))
	return l.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(key, storage.MarshalRunReport(report)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// RecentRuns returns up to limit reports, newest first.
func (l *RunLog) RecentRuns(ctx context.Context, limit int) ([]*core.RunReport, error) {
	if limit <= 0 {
		return nil, nil
	}
	var reports []*core.RunReport
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		prefix := []byte(runPrefix + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek past the last possible key so reverse iteration starts at the newest.
		for iter.Seek(append(prefix, 0xFF)); iter.Valid() && len(reports) < limit; iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				r, err := storage.UnmarshalRunReport(val)
				if err != nil {
					return err
				}
				reports = append(reports, r)
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
	return reports, nil
}
