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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/personalesag/internal/archive"
	"github.com/cardinalhq/personalesag/jobdb"
)

// PurgeQuerier defines the database operations needed to purge finished jobs.
type PurgeQuerier interface {
	ListTerminalBefore(ctx context.Context, arg jobdb.ListTerminalBeforeParams) ([]jobdb.UploadJob, error)
	DeleteTerminalJobs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

var _ PurgeQuerier = (*jobdb.Store)(nil)

// Archiver stores a job somewhere durable before it is deleted.
type Archiver interface {
	Archive(ctx context.Context, job *jobdb.UploadJob) error
}

const archiveConcurrency = 4

// runPurge deletes SUCCESS and FAILED jobs last updated before now minus
// retention, batch by batch. When an archiver is set, a job is only deleted
// after it was archived; a job that fails to archive stays for the next run.
func runPurge(ctx context.Context, ll *slog.Logger, db PurgeQuerier, arch Archiver, retention time.Duration, batchSize int, now time.Time) (int64, error) {
	cutoff := now.Add(-retention)
	var (
		total int64
		errs  *multierror.Error
	)

	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		batch, err := db.ListTerminalBefore(ctx, jobdb.ListTerminalBeforeParams{
			Cutoff: cutoff,
			Limit:  int32(batchSize),
		})
		if err != nil {
			return total, fmt.Errorf("list terminal jobs: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		ids, archiveErr := archiveBatch(ctx, ll, arch, batch)
		if archiveErr != nil {
			errs = multierror.Append(errs, archiveErr)
		}
		if len(ids) == 0 {
			break
		}

		deleted, err := db.DeleteTerminalJobs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("delete terminal jobs: %w", err)
		}
		total += deleted
		purgeCounter.Add(ctx, deleted)

		// Jobs that failed to archive are still in the table and would come
		// back in the next batch.
		if len(batch) < batchSize || len(ids) < len(batch) {
			break
		}
	}

	if total > 0 {
		ll.Info("Purged finished upload jobs",
			slog.Int64("deleted", total),
			slog.Time("cutoff", cutoff))
	}
	return total, errs.ErrorOrNil()
}

// archiveBatch returns the ids of the jobs that may be deleted.
func archiveBatch(ctx context.Context, ll *slog.Logger, arch Archiver, batch []jobdb.UploadJob) ([]uuid.UUID, error) {
	if arch == nil {
		ids := make([]uuid.UUID, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
		}
		return ids, nil
	}

	var (
		mu   sync.Mutex
		ids  []uuid.UUID
		errs *multierror.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(archiveConcurrency)
	for i := range batch {
		job := &batch[i]
		g.Go(func() error {
			err := arch.Archive(gctx, job)
			result := "success"
			if err != nil {
				result = "failure"
			}
			archiveCounter.Add(gctx, 1, metric.WithAttributes(
				attribute.String("result", result),
				attribute.Bool("retryable", err != nil && archive.Retryable(err)),
			))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				ll.Error("Failed to archive upload job, keeping it",
					slog.String("jobID", job.ID.String()),
					slog.Bool("retryable", archive.Retryable(err)),
					slog.Any("error", err))
				errs = multierror.Append(errs, fmt.Errorf("archive job %s: %w", job.ID, err))
				return nil
			}
			ids = append(ids, job.ID)
			return nil
		})
	}
	_ = g.Wait()
	return ids, errs.ErrorOrNil()
}
