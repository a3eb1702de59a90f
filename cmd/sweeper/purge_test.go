// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/personalesag/jobdb"
)

// fakeJobs keeps jobs in memory and answers like the real queries do.
type fakeJobs struct {
	mu   sync.Mutex
	jobs []jobdb.UploadJob
}

func (f *fakeJobs) ListTerminalBefore(_ context.Context, arg jobdb.ListTerminalBeforeParams) ([]jobdb.UploadJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []jobdb.UploadJob
	for _, j := range f.jobs {
		if j.Status.Terminal() && j.UpdatedAt.Before(arg.Cutoff) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.Before(out[b].UpdatedAt) })
	if len(out) > int(arg.Limit) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (f *fakeJobs) DeleteTerminalJobs(_ context.Context, ids []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := map[uuid.UUID]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	var kept []jobdb.UploadJob
	var n int64
	for _, j := range f.jobs {
		if drop[j.ID] && j.Status.Terminal() {
			n++
			continue
		}
		kept = append(kept, j)
	}
	f.jobs = kept
	return n, nil
}

func (f *fakeJobs) remaining() map[uuid.UUID]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[uuid.UUID]bool{}
	for _, j := range f.jobs {
		out[j.ID] = true
	}
	return out
}

type fakeArchiver struct {
	mu       sync.Mutex
	failFor  map[uuid.UUID]bool
	archived []uuid.UUID
}

func (a *fakeArchiver) Archive(_ context.Context, job *jobdb.UploadJob) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failFor[job.ID] {
		return errors.New("SlowDown")
	}
	a.archived = append(a.archived, job.ID)
	return nil
}

var sweepNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func job(status jobdb.Status, age time.Duration) jobdb.UploadJob {
	return jobdb.UploadJob{ID: uuid.New(), Status: status, UpdatedAt: sweepNow.Add(-age)}
}

func TestRunPurgeOnlyTerminalAndOld(t *testing.T) {
	old := 40 * 24 * time.Hour
	success := job(jobdb.StatusSuccess, old)
	failed := job(jobdb.StatusFailed, old)
	retry := job(jobdb.StatusFailedTryAgain, old)
	received := job(jobdb.StatusReceived, old)
	processing := job(jobdb.StatusProcessing, old)
	recent := job(jobdb.StatusSuccess, time.Hour)
	db := &fakeJobs{jobs: []jobdb.UploadJob{success, failed, retry, received, processing, recent}}

	n, err := runPurge(t.Context(), slog.Default(), db, nil, 30*24*time.Hour, 100, sweepNow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left := db.remaining()
	assert.False(t, left[success.ID])
	assert.False(t, left[failed.ID])
	assert.True(t, left[retry.ID])
	assert.True(t, left[received.ID])
	assert.True(t, left[processing.ID])
	assert.True(t, left[recent.ID])
}

func TestRunPurgeBatches(t *testing.T) {
	db := &fakeJobs{}
	for i := 0; i < 7; i++ {
		db.jobs = append(db.jobs, job(jobdb.StatusSuccess, time.Duration(48+i)*time.Hour))
	}

	n, err := runPurge(t.Context(), slog.Default(), db, nil, 24*time.Hour, 3, sweepNow)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Empty(t, db.remaining())
}

func TestRunPurgeKeepsJobsThatFailToArchive(t *testing.T) {
	keep := job(jobdb.StatusFailed, 72*time.Hour)
	gone := job(jobdb.StatusSuccess, 72*time.Hour)
	db := &fakeJobs{jobs: []jobdb.UploadJob{keep, gone}}
	arch := &fakeArchiver{failFor: map[uuid.UUID]bool{keep.ID: true}}

	n, err := runPurge(t.Context(), slog.Default(), db, arch, 24*time.Hour, 10, sweepNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), keep.ID.String())
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []uuid.UUID{gone.ID}, arch.archived)

	left := db.remaining()
	assert.True(t, left[keep.ID])
	assert.False(t, left[gone.ID])
}

func TestRunPurgeStopsWhenNothingArchives(t *testing.T) {
	a := job(jobdb.StatusSuccess, 72*time.Hour)
	db := &fakeJobs{jobs: []jobdb.UploadJob{a}}
	arch := &fakeArchiver{failFor: map[uuid.UUID]bool{a.ID: true}}

	n, err := runPurge(t.Context(), slog.Default(), db, arch, 24*time.Hour, 1, sweepNow)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.True(t, db.remaining()[a.ID])
}

func TestPeriodicLoopRunsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	err := periodicLoop(ctx, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("ignored")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
