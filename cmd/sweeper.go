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

	"github.com/cardinalhq/personalesag/cmd/sweeper"
	"github.com/cardinalhq/personalesag/config"
	"github.com/cardinalhq/personalesag/internal/archive"
	"github.com/cardinalhq/personalesag/jobdb"
)

func init() {
	var once bool

	cmd := &cobra.Command{
		Use:   "sweeper",
		Short: "Archive and purge finished upload jobs",
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "personalesag-sweeper"
			doneCtx, doneFx, err := setupTelemetry(servicename)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}

			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			return runSweeper(doneCtx, once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	rootCmd.AddCommand(cmd)
}

func runSweeper(ctx context.Context, once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateSweeper(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := jobdb.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var archiver sweeper.Archiver
	if cfg.Archive.Enabled() {
		a, err := newArchiver(ctx, cfg.Archive)
		if err != nil {
			return err
		}
		archiver = a
	}

	s := sweeper.New(myInstanceID, store, archiver, sweeper.Config{
		Retention: cfg.Sweeper.Retention,
		Interval:  cfg.Sweeper.Interval,
		BatchSize: cfg.Sweeper.BatchSize,
	})
	if once {
		_, err := s.RunOnce(ctx)
		return err
	}
	return s.Run(ctx)
}

func newArchiver(ctx context.Context, cfg config.ArchiveConfig) (*archive.Archiver, error) {
	var opts []archive.Option
	if cfg.Region != "" {
		opts = append(opts, archive.WithRegion(cfg.Region))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, archive.WithEndpoint(cfg.Endpoint))
	}
	if cfg.UsePathStyle {
		opts = append(opts, archive.WithPathStyle())
	}
	if cfg.RoleARN != "" {
		opts = append(opts, archive.WithRole(cfg.RoleARN, archive.DefaultSessionName))
	}
	return archive.New(ctx, cfg.Bucket, cfg.Prefix, opts...)
}
