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

// Package worker claims upload jobs one at a time and carries each through
// employment lookup, case matching and journalizing, recording the outcome
// on the job.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/personalesag/internal/casematch"
	"github.com/cardinalhq/personalesag/internal/fault"
	"github.com/cardinalhq/personalesag/internal/journal"
	"github.com/cardinalhq/personalesag/internal/logctx"
	"github.com/cardinalhq/personalesag/internal/orgindex"
	"github.com/cardinalhq/personalesag/internal/records"
	"github.com/cardinalhq/personalesag/jobdb"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultCallTimeout  = 60 * time.Second
	DefaultIndexTimeout = 5 * time.Minute
)

// JobStore is the part of jobdb the worker uses.
type JobStore interface {
	ClaimNext(ctx context.Context) (*jobdb.UploadJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status jobdb.Status, message string) error
}

// HRService looks up an employment. A nil employment with a nil error
// means the HR system has no such employment.
type HRService interface {
	GetEmployment(ctx context.Context, personID, employmentID, institutionID string, asOf time.Time) (*records.Employment, error)
}

type CaseSearcher interface {
	SearchActiveCases(ctx context.Context, personID string) ([]records.Case, error)
}

type DepartmentIndex interface {
	Ensure(ctx context.Context) (*orgindex.Snapshot, error)
}

type Matcher interface {
	Match(ctx context.Context, emp records.Employment, candidates []records.Case, snap *orgindex.Snapshot) (casematch.Result, error)
}

type Journalizer interface {
	Journalize(ctx context.Context, c records.Case, file records.File) (*journal.Confirmation, error)
}

type Config struct {
	PollInterval time.Duration
	CallTimeout  time.Duration
	// IndexTimeout bounds a department index rebuild, which makes several
	// HR calls in a row.
	IndexTimeout time.Duration
	// InstanceID identifies this worker in logs.
	InstanceID string
}

type Deps struct {
	Store       JobStore
	HR          HRService
	Cases       CaseSearcher
	Index       DepartmentIndex
	Matcher     Matcher
	Journalizer Journalizer
}

type Worker struct {
	Deps
	cfg    Config
	now    func() time.Time
	tracer trace.Tracer
}

func New(deps Deps, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.IndexTimeout <= 0 {
		cfg.IndexTimeout = DefaultIndexTimeout
	}
	return &Worker{
		Deps:   deps,
		cfg:    cfg,
		now:    time.Now,
		tracer: otel.Tracer("github.com/cardinalhq/personalesag/internal/worker"),
	}
}

// Run polls for jobs until ctx is cancelled. After a successful claim the
// next claim is attempted immediately; otherwise the worker waits one poll
// interval. A job in progress when ctx is cancelled is finished before Run
// returns.
func (w *Worker) Run(ctx context.Context) error {
	ll := slog.Default().With(slog.String("workerID", w.cfg.InstanceID))
	ll.Info("Worker started",
		slog.Duration("pollInterval", w.cfg.PollInterval),
		slog.Duration("callTimeout", w.cfg.CallTimeout))

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			ll.Info("Worker stopping")
			return nil
		}

		claimed, err := w.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			ll.Error("Failed to claim job", slog.Any("error", err))
		}
		if claimed {
			continue
		}

		select {
		case <-ctx.Done():
			ll.Info("Worker stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a job
// was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	job, err := w.Store.ClaimNext(claimCtx)
	cancel()
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	// The job runs to completion even if the worker is asked to stop.
	w.process(context.WithoutCancel(ctx), job)
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *jobdb.UploadJob) {
	t0 := time.Now()
	ctx, ll := logctx.With(ctx,
		slog.String("workerID", w.cfg.InstanceID),
		slog.String("jobID", job.ID.String()),
		slog.String("employmentID", job.EmploymentID),
		slog.String("institutionID", job.InstitutionID),
	)

	ctx, span := w.tracer.Start(ctx, "worker.process", trace.WithAttributes(
		attribute.String("jobID", job.ID.String()),
	))
	defer span.End()

	ll.Info("Processing upload job", slog.String("fileName", job.FileName))

	out := w.handle(ctx, job)

	if out.err != nil {
		span.RecordError(out.err)
	}
	if out.status != jobdb.StatusSuccess {
		span.SetStatus(codes.Error, out.message)
	}

	if err := w.Store.UpdateStatus(ctx, job.ID, out.status, out.message); err != nil {
		ll.Error("Failed to record job outcome",
			slog.String("status", out.status.String()),
			slog.String("message", out.message),
			slog.Any("error", err))
	}

	attrs := metric.WithAttributes(attribute.String("status", out.status.String()))
	jobCounter.Add(ctx, 1, attrs)
	jobDuration.Record(ctx, time.Since(t0).Seconds(), attrs)

	level := slog.LevelInfo
	if out.status != jobdb.StatusSuccess {
		level = slog.LevelWarn
	}
	ll.Log(ctx, level, "Upload job finished",
		slog.String("status", out.status.String()),
		slog.String("message", out.message),
		slog.Duration("elapsed", time.Since(t0)),
		slog.Any("error", out.err))
}

// handle never panics; a panic anywhere in the pipeline becomes a FAILED
// outcome.
func (w *Worker) handle(ctx context.Context, job *jobdb.UploadJob) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			logctx.FromContext(ctx).Error("Panic while processing upload job",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			out = failed(msgUnexpected, fmt.Errorf("panic: %v", r))
		}
	}()
	return w.pipeline(ctx, job)
}

func (w *Worker) pipeline(ctx context.Context, job *jobdb.UploadJob) outcome {
	ll := logctx.FromContext(ctx)

	indexCtx, cancel := context.WithTimeout(ctx, w.cfg.IndexTimeout)
	snap, err := w.Index.Ensure(indexCtx)
	cancel()
	if err != nil {
		return fromError(err)
	}
	if snap == nil {
		return fromError(fault.Unavailable("worker.index", orgindex.ErrUnavailable))
	}

	callCtx, cancel := w.callContext(ctx)
	emp, err := w.HR.GetEmployment(callCtx, job.SubjectID, job.EmploymentID, job.InstitutionID, w.now())
	cancel()
	if err != nil {
		return fromError(err)
	}
	if emp == nil {
		return failed(msgEmploymentNotFound, nil)
	}
	ll.Debug("Employment found", slog.String("departmentCode", emp.DepartmentCode))

	callCtx, cancel = w.callContext(ctx)
	candidates, err := w.Cases.SearchActiveCases(callCtx, job.SubjectID)
	cancel()
	if err != nil {
		return fromError(err)
	}

	res, err := w.Matcher.Match(ctx, *emp, candidates, snap)
	if err != nil {
		return fromError(err)
	}
	if !res.Matched() {
		return fromNoMatch(res.Reason)
	}

	file := records.File{
		Name:     job.FileName,
		MimeType: job.FileMimetype,
		Data:     job.FileData,
	}
	if _, err := w.Journalizer.Journalize(ctx, *res.Case, file); err != nil {
		return fromError(err)
	}
	return succeeded(res.Case.ID)
}

func (w *Worker) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.cfg.CallTimeout)
}
