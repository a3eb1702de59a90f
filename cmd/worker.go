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

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/personalesag/config"
	"github.com/cardinalhq/personalesag/internal/casematch"
	"github.com/cardinalhq/personalesag/internal/evidence"
	"github.com/cardinalhq/personalesag/internal/healthcheck"
	"github.com/cardinalhq/personalesag/internal/idgen"
	"github.com/cardinalhq/personalesag/internal/journal"
	"github.com/cardinalhq/personalesag/internal/orgindex"
	"github.com/cardinalhq/personalesag/internal/sbsys"
	"github.com/cardinalhq/personalesag/internal/sdclient"
	"github.com/cardinalhq/personalesag/internal/worker"
	"github.com/cardinalhq/personalesag/jobdb"
)

// readyConditionIndex gates readiness on a department index having been built.
const readyConditionIndex = "department_index"

func init() {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Claim upload jobs and file them on the matching personnel case",
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "personalesag-worker"
			doneCtx, doneFx, err := setupTelemetry(servicename)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}

			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			return runWorker(doneCtx)
		},
	}

	rootCmd.AddCommand(cmd)
}

func newIndexCache(cfg *config.Config, hr *sdclient.Client, opts ...orgindex.Option) (*orgindex.Cache, error) {
	source, err := sdclient.NewIndexSource(hr, cfg.HR.Region, cfg.HR.Institutions)
	if err != nil {
		return nil, err
	}
	opts = append([]orgindex.Option{
		orgindex.WithMaxAge(cfg.Worker.IndexMaxAge),
		orgindex.WithRetryInterval(cfg.Worker.IndexRetryInterval),
	}, opts...)
	return orgindex.NewCache(source, opts...), nil
}

func runWorker(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := jobdb.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	hr, err := sdclient.New(cfg.HR.Client())
	if err != nil {
		return err
	}
	cases, err := sbsys.New(cfg.Cases.Client())
	if err != nil {
		return err
	}
	ev, err := evidence.New(cfg.Evidence.Client())
	if err != nil {
		return err
	}

	health := healthcheck.NewServer(healthcheck.GetConfigFromEnv())
	health.SetReadyCondition(readyConditionIndex, false)

	index, err := newIndexCache(cfg, hr, orgindex.WithReadyFunc(func(ready bool) {
		health.SetReadyCondition(readyConditionIndex, ready)
	}))
	if err != nil {
		return err
	}

	w := worker.New(worker.Deps{
		Store: store,
		HR:    hr,
		Cases: cases,
		Index: index,
		Matcher: casematch.New(cases, ev, casematch.Config{
			SubProcessTitle: cfg.Worker.SubProcessTitle,
			CallTimeout:     cfg.Worker.CallTimeout,
		}),
		Journalizer: journal.New(cases, cfg.Worker.Journal()),
	}, worker.Config{
		PollInterval: cfg.Worker.PollInterval,
		CallTimeout:  cfg.Worker.CallTimeout,
		IndexTimeout: cfg.Worker.IndexTimeout,
		InstanceID:   idgen.FormatID(myInstanceID),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return health.Start(gctx)
	})
	g.Go(func() error {
		// Build the index up front so readiness reflects it; a failure here
		// is retried by the worker loop.
		if _, err := index.Ensure(gctx); err != nil {
			slog.Warn("Department index not available at startup", slog.Any("error", err))
		}
		health.SetStatus(healthcheck.StatusHealthy)
		health.SetReady(true)
		return w.Run(gctx)
	})
	return g.Wait()
}
