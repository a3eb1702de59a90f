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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgx-contrib/pgxotel"

	"github.com/cardinalhq/personalesag/internal/dbopen"
	"github.com/cardinalhq/personalesag/jobdb/migrations"
)

// NewConnectionPool creates a new connection pool
// using the PostgreSQL connection string provided, and
// using pgx v5.
func NewConnectionPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	cfg.ConnConfig.Tracer = &pgxotel.QueryTracer{
		Name: "jobdb",
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

// ConnectToJobDB opens a pool from the JOBDB_* environment and checks the
// schema version unless opts say otherwise.
func ConnectToJobDB(ctx context.Context, opts ...dbopen.Options) (*pgxpool.Pool, error) {
	connectionString, err := dbopen.GetDatabaseURLFromEnv("JOBDB")
	if err != nil {
		return nil, errors.Join(dbopen.ErrDatabaseNotConfigured, fmt.Errorf("failed to get JOBDB connection string: %w", err))
	}

	pool, err := NewConnectionPool(ctx, connectionString)
	if err != nil {
		return nil, err
	}

	if err := migrations.CheckVersion(ctx, pool, dbopen.CheckOptions(opts...)...); err != nil {
		pool.Close()
		return nil, fmt.Errorf("JOBDB migration version check failed: %w", err)
	}

	return pool, nil
}

// OpenStore connects to jobdb and wraps the pool in a Store.
func OpenStore(ctx context.Context, opts ...dbopen.Options) (*Store, error) {
	pool, err := ConnectToJobDB(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return NewStore(pool), nil
}
