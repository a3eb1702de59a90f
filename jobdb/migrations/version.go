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

package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// GetMigrationFiles returns the embedded migration files for version checking
func GetMigrationFiles() embed.FS {
	return migrationFiles
}

// ExpectedVersion is the newest migration compiled into this binary.
func ExpectedVersion() (uint, error) {
	return extractLatestMigrationVersion(migrationFiles)
}

// CurrentVersion reports the schema version applied to the database.
func CurrentVersion(pool *pgxpool.Pool) (uint, bool, error) {
	return currentVersion(pool)
}

// CheckVersion verifies that jobdb is at the schema version this binary
// expects. The default waits for another process to finish migrating.
func CheckVersion(ctx context.Context, pool *pgxpool.Pool, options ...CheckOption) error {
	if !checkEnabled() {
		slog.Debug("Migration version checking disabled for jobdb")
		return nil
	}

	opts := DefaultCheckOptions()
	for _, option := range options {
		option(&opts)
	}

	if opts.Mode == CheckModeSkip {
		slog.Debug("Migration version checking skipped for jobdb")
		return nil
	}

	applyEnvironmentOverrides(&opts)

	return checkMigrationVersion(ctx, opts, func() (uint, bool, error) {
		return currentVersion(pool)
	})
}

// extractLatestMigrationVersion extracts the highest migration version from embedded migration files
func extractLatestMigrationVersion(files embed.FS) (uint, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration directory: %w", err)
	}

	var maxVersion uint
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		if uint(version) > maxVersion {
			maxVersion = uint(version)
		}
	}

	if maxVersion == 0 {
		return 0, errors.New("no valid migration files found")
	}
	return maxVersion, nil
}

type versionFunc func() (uint, bool, error)

func checkMigrationVersion(ctx context.Context, opts CheckOptions, current versionFunc) error {
	expectedVersion, err := extractLatestMigrationVersion(migrationFiles)
	if err != nil {
		return fmt.Errorf("failed to extract expected migration version for jobdb: %w", err)
	}

	currentVersion, dirty, err := current()
	if err != nil {
		return fmt.Errorf("failed to get current migration version for jobdb: %w", err)
	}

	if dirty && !opts.AllowDirty {
		if opts.Mode != CheckModeWarn {
			return errors.New("database jobdb migration is in dirty state, please fix before proceeding")
		}
		slog.Warn("Database migration is in dirty state, but continuing anyway", slog.String("database", "jobdb"))
	}

	if currentVersion == expectedVersion {
		return nil
	}

	slog.Info("Checking migration version",
		slog.String("database", "jobdb"),
		slog.Uint64("current_version", uint64(currentVersion)),
		slog.Uint64("expected_version", uint64(expectedVersion)))

	if currentVersion > expectedVersion {
		if opts.Mode == CheckModeWarn {
			slog.Warn("Database version is newer than expected, but continuing anyway",
				slog.Uint64("current_version", uint64(currentVersion)),
				slog.Uint64("expected_version", uint64(expectedVersion)))
			return nil
		}
		return fmt.Errorf("database jobdb version %d is newer than expected version %d - you may need to update the application",
			currentVersion, expectedVersion)
	}

	if opts.Mode == CheckModeWarn {
		slog.Warn("Database version is older than expected, but continuing anyway",
			slog.Uint64("current_version", uint64(currentVersion)),
			slog.Uint64("expected_version", uint64(expectedVersion)))
		return nil
	}

	deadline := time.Now().Add(opts.Timeout)
	ticker := time.NewTicker(opts.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for jobdb migrations: %w", ctx.Err())
		case <-ticker.C:
		}

		currentVersion, _, err = current()
		if err != nil {
			return fmt.Errorf("failed to get current migration version for jobdb: %w", err)
		}
		if currentVersion == expectedVersion {
			slog.Info("Migration version check passed", slog.Uint64("version", uint64(currentVersion)))
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s waiting for jobdb migrations: at version %d, expected %d",
				opts.Timeout, currentVersion, expectedVersion)
		}

		slog.Info("Waiting for migrations to complete",
			slog.Uint64("current_version", uint64(currentVersion)),
			slog.Uint64("expected_version", uint64(expectedVersion)),
			slog.Duration("remaining_timeout", time.Until(deadline)))
	}
}
