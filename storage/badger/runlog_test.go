package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/lexrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLog_RecentRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()
	log := NewRunLog(backend)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := core.NewRunReport("scheduled", base.Add(time.Duration(i)*72*time.Hour))
		r.ChunksAdded = i
		r.Finish(r.StartedAt.Add(time.Minute), nil)
		require.NoError(t, log.AppendRun(ctx, r))
		assert.Equal(t, uint64(r.StartedAt.UnixMicro()), r.ID)
	}

	runs, err := log.RecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, 4, runs[0].ChunksAdded)
	assert.Equal(t, 3, runs[1].ChunksAdded)
	assert.Equal(t, 2, runs[2].ChunksAdded)
	assert.Equal(t, core.RunStatusSuccess, runs[0].Status)

	all, err := log.RecentRuns(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := log.RecentRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRunLog_SameStartTime(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()
	log := NewRunLog(backend)

	start := time.Now()
	require.NoError(t, log.AppendRun(ctx, core.NewRunReport("manual", start)))
	require.NoError(t, log.AppendRun(ctx, core.NewRunReport("upload", start)))

	runs, err := log.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2, "reports with equal start times are both kept")
}
