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

// Package sweeper removes finished upload jobs once they are past the
// retention window, optionally archiving them to S3 first.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	purgeCounter   metric.Int64Counter
	archiveCounter metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/personalesag/cmd/sweeper")

	var err error
	purgeCounter, err = meter.Int64Counter(
		"personalesag.sweeper.purged_total",
		metric.WithDescription("Count of finished upload jobs deleted"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create purged_total counter: %w", err))
	}

	archiveCounter, err = meter.Int64Counter(
		"personalesag.sweeper.archived_total",
		metric.WithDescription("Count of upload jobs archive attempts"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create archived_total counter: %w", err))
	}
}

type Config struct {
	Retention time.Duration
	Interval  time.Duration
	BatchSize int
}

type sweeper struct {
	instanceID int64
	db         PurgeQuerier
	archiver   Archiver
	cfg        Config
}

// New returns a sweeper. archiver may be nil, in which case jobs are
// deleted without being archived.
func New(instanceID int64, db PurgeQuerier, archiver Archiver, cfg Config) *sweeper {
	return &sweeper{
		instanceID: instanceID,
		db:         db,
		archiver:   archiver,
		cfg:        cfg,
	}
}

func (cmd *sweeper) Run(ctx context.Context) error {
	slog.Info("Starting sweeper",
		slog.Int64("instanceID", cmd.instanceID),
		slog.Duration("retention", cmd.cfg.Retention),
		slog.Duration("interval", cmd.cfg.Interval),
		slog.Bool("archive", cmd.archiver != nil))

	return periodicLoop(ctx, cmd.cfg.Interval, func(c context.Context) error {
		_, err := cmd.RunOnce(c)
		return err
	})
}

// RunOnce performs a single purge pass.
func (cmd *sweeper) RunOnce(ctx context.Context) (int64, error) {
	return runPurge(ctx, slog.Default(), cmd.db, cmd.archiver, cmd.cfg.Retention, cmd.cfg.BatchSize, time.Now())
}

// Runs f immediately, then on a ticker every period. Never more than once per period.
func periodicLoop(ctx context.Context, period time.Duration, f func(context.Context) error) error {
	if err := f(ctx); err != nil {
		slog.Error("periodic task error", slog.Any("error", err))
	}

	t := time.NewTicker(period)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := f(ctx); err != nil {
				slog.Error("periodic task error", slog.Any("error", err))
			}
		}
	}
}
