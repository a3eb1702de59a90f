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

package jobdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNotFound          = errors.New("upload job not found")
	ErrTerminalStatus    = errors.New("upload job is in a terminal status")
	ErrInvalidTransition = errors.New("invalid upload job status transition")
)

// Store provides all functions to execute db queries and transactions
type Store struct {
	*Queries
	connPool *pgxpool.Pool
}

// NewStore creates a new Store
func NewStore(connPool *pgxpool.Pool) *Store {
	return &Store{
		connPool: connPool,
		Queries:  New(connPool),
	}
}

func (store *Store) Pool() *pgxpool.Pool {
	return store.connPool
}

func (store *Store) Close() {
	if store.connPool != nil {
		store.connPool.Close()
	}
}

func (store *Store) execTx(ctx context.Context, fn func(*Store) error) (err error) {
	tx, err := store.connPool.Begin(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Never use the caller ctx for cleanup as it may be cancelled.
		rbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			if err != nil {
				err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			} else {
				err = fmt.Errorf("rollback failed: %w", rbErr)
			}
		}
	}()

	txStore := &Store{
		connPool: store.connPool,
		Queries:  New(tx),
	}

	if err = fn(txStore); err != nil {
		return err
	}

	commitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = tx.Commit(commitCtx); err != nil {
		return err
	}
	committed = true
	return nil
}

// ClaimNext moves the oldest RECEIVED job to PROCESSING and returns it.
// The select, lock and update happen in one transaction, so concurrent
// callers never receive the same job. It returns nil when nothing is
// waiting; it never blocks waiting for work.
func (store *Store) ClaimNext(ctx context.Context) (*UploadJob, error) {
	t0 := time.Now()
	var claimed *UploadJob
	err := store.execTx(ctx, func(s *Store) error {
		job, err := s.SelectNextReceived(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select next received job: %w", err)
		}
		updatedAt, err := s.SetUploadJobStatus(ctx, SetStatusParams{
			ID:      job.ID,
			Status:  StatusProcessing,
			Message: "",
		})
		if err != nil {
			return fmt.Errorf("mark job %s processing: %w", job.ID, err)
		}
		job.Status = StatusProcessing
		job.Message = ""
		job.UpdatedAt = updatedAt
		claimed = &job
		return nil
	})
	claimDuration.Record(ctx, time.Since(t0).Seconds(), metric.WithAttributes(
		attribute.Bool("hasError", err != nil),
		attribute.Bool("claimed", claimed != nil),
	))
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (store *Store) Get(ctx context.Context, id uuid.UUID) (*UploadJob, error) {
	job, err := store.GetUploadJob(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateStatus moves a job to status with message. The row is locked for
// the duration of the check and update. A job already in a terminal status
// is left untouched and ErrTerminalStatus is returned; any other move not
// allowed by CanTransition returns ErrInvalidTransition. The file payload
// is never modified.
func (store *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, message string) error {
	return store.transition(ctx, id, status, message, nil)
}

// Requeue moves a FAILED_TRY_AGAIN job back to RECEIVED so a worker will
// claim it again.
func (store *Store) Requeue(ctx context.Context, id uuid.UUID) error {
	return store.transition(ctx, id, StatusReceived, "requeued", func(current Status) error {
		if current != StatusFailedTryAgain {
			return fmt.Errorf("%w: only %s jobs can be requeued, job is %s", ErrInvalidTransition, StatusFailedTryAgain, current)
		}
		return nil
	})
}

// RequeueAllRetryable moves every FAILED_TRY_AGAIN job back to RECEIVED.
func (store *Store) RequeueAllRetryable(ctx context.Context) (int64, error) {
	return store.Queries.RequeueAllRetryable(ctx, "requeued")
}

func (store *Store) transition(ctx context.Context, id uuid.UUID, status Status, message string, check func(Status) error) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %d", ErrInvalidTransition, int16(status))
	}
	err := store.execTx(ctx, func(s *Store) error {
		current, err := s.LockUploadJobStatus(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock job %s: %w", id, err)
		}
		if current.Terminal() {
			return fmt.Errorf("%w: job %s is %s", ErrTerminalStatus, id, current)
		}
		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}
		if !CanTransition(current, status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, status)
		}
		if _, err := s.SetUploadJobStatus(ctx, SetStatusParams{ID: id, Status: status, Message: message}); err != nil {
			return fmt.Errorf("set job %s status: %w", id, err)
		}
		return nil
	})
	if err == nil {
		statusCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
	}
	return err
}

// ListAll returns every job without payload, oldest first. It is meant
// for diagnostics.
func (store *Store) ListAll(ctx context.Context) ([]JobSummary, error) {
	return store.ListUploadJobs(ctx)
}

func (store *Store) Insert(ctx context.Context, arg InsertJobParams) (*UploadJob, error) {
	if arg.ID == uuid.Nil {
		arg.ID = uuid.New()
	}
	job, err := store.InsertUploadJob(ctx, arg)
	if err != nil {
		return nil, fmt.Errorf("insert upload job: %w", err)
	}
	return &job, nil
}
