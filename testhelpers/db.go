//go:build integration

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

package testhelpers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orlangure/gnomock"
	pgpreset "github.com/orlangure/gnomock/preset/postgres"

	"github.com/cardinalhq/personalesag/jobdb"
	"github.com/cardinalhq/personalesag/jobdb/migrations"
)

const (
	containerUser     = "gnomock"
	containerPassword = "gnomick"
	containerDB       = "testing_jobdb"
)

// Postgres is a server tests can create throwaway databases on.
type Postgres struct {
	container *gnomock.Container
	baseURL   string
}

// StartPostgres returns a server for integration tests. JOBDB_TEST_URL
// points at an existing server; otherwise a container is started.
// Call Stop from TestMain when done.
func StartPostgres() (*Postgres, error) {
	if u := os.Getenv("JOBDB_TEST_URL"); u != "" {
		return &Postgres{baseURL: u}, nil
	}

	container, err := gnomock.Start(
		pgpreset.Preset(
			pgpreset.WithUser(containerUser, containerPassword),
			pgpreset.WithDatabase(containerDB),
		),
		gnomock.WithTimeout(2*time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	return &Postgres{
		container: container,
		baseURL: fmt.Sprintf("postgresql://%s:%s@%s/%s?sslmode=disable",
			containerUser, containerPassword, container.DefaultAddress(), containerDB),
	}, nil
}

func (p *Postgres) Stop() {
	if p == nil || p.container == nil {
		return
	}
	if err := gnomock.Stop(p.container); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stop postgres container: %v\n", err)
	}
}

// SetupTestJobDB creates a clean jobdb database with migrations applied.
// Returns a connection pool and registers cleanup with t.Cleanup.
func (p *Postgres) SetupTestJobDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	dbName := fmt.Sprintf("test_jobdb_%d_%d", time.Now().Unix(), rand.Intn(100000))

	basePool, err := pgxpool.New(ctx, p.baseURL)
	if err != nil {
		t.Fatalf("Failed to connect to base database: %v", err)
	}

	if _, err := basePool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		basePool.Close()
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}

	testURL, err := url.Parse(p.baseURL)
	if err != nil {
		basePool.Close()
		t.Fatalf("Failed to parse base url: %v", err)
	}
	testURL.Path = "/" + dbName

	testPool, err := jobdb.NewConnectionPool(ctx, testURL.String())
	if err != nil {
		basePool.Close()
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := migrations.RunMigrationsUp(ctx, testPool); err != nil {
		testPool.Close()
		basePool.Close()
		t.Fatalf("Failed to run jobdb migrations: %v", err)
	}

	t.Cleanup(func() {
		testPool.Close()

		_, err := basePool.Exec(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", dbName))
		if err != nil {
			slog.Error("Failed to drop test database", slog.String("dbName", dbName), slog.Any("error", err))
		}
		basePool.Close()
	})

	return testPool
}

// NewTestStore creates a jobdb store connected to a fresh test database.
func (p *Postgres) NewTestStore(t *testing.T) *jobdb.Store {
	return jobdb.NewStore(p.SetupTestJobDB(t))
}
