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

package dbopen

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/personalesag/jobdb/migrations"
)

func clearDBEnv(t *testing.T) {
	for _, k := range []string{"URL", "HOST", "PORT", "USER", "PASSWORD", "DBNAME", "SSLMODE"} {
		t.Setenv("JOBDB_"+k, "")
	}
	t.Setenv("OTEL_SERVICE_NAME", "")
}

func TestGetDatabaseURLFromEnv_URLWins(t *testing.T) {
	clearDBEnv(t)
	t.Setenv("JOBDB_URL", "postgresql://x@y/z")
	t.Setenv("JOBDB_HOST", "ignored")

	got, err := GetDatabaseURLFromEnv("JOBDB")
	require.NoError(t, err)
	assert.Equal(t, "postgresql://x@y/z", got)
}

func TestGetDatabaseURLFromEnv_Missing(t *testing.T) {
	clearDBEnv(t)

	_, err := GetDatabaseURLFromEnv("JOBDB_")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOBDB_HOST")
	assert.Contains(t, err.Error(), "JOBDB_DBNAME")
}

func TestGetDatabaseURLFromEnv_Parts(t *testing.T) {
	clearDBEnv(t)
	t.Setenv("JOBDB_HOST", "db.local")
	t.Setenv("JOBDB_DBNAME", "jobs")
	t.Setenv("JOBDB_USER", "svc")
	t.Setenv("JOBDB_PASSWORD", "p@ss")
	t.Setenv("JOBDB_SSLMODE", "disable")
	t.Setenv("OTEL_SERVICE_NAME", "personale sag")

	got, err := GetDatabaseURLFromEnv("JOBDB")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "db.local:5432", u.Host)
	assert.Equal(t, "/jobs", u.Path)
	assert.Equal(t, "svc", u.User.Username())
	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss", pass)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "personale_sag", u.Query().Get("application_name"))
}

func TestOptions(t *testing.T) {
	assert.Empty(t, Options{}.MigrationCheckOptions)

	for name, opts := range map[string]Options{
		"skip": SkipMigrationCheck(),
		"warn": WarnOnMigrationMismatch(),
		"wait": WaitForMigrations(),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Len(t, opts.MigrationCheckOptions, 1)
		})
	}
}

func TestCheckOptionsFlattens(t *testing.T) {
	flat := CheckOptions(
		WarnOnMigrationMismatch(),
		Options{MigrationCheckOptions: []migrations.CheckOption{migrations.WithTimeout(time.Minute)}},
	)
	require.Len(t, flat, 2)

	opts := migrations.DefaultCheckOptions()
	for _, o := range flat {
		o(&opts)
	}
	assert.Equal(t, migrations.CheckModeWarn, opts.Mode)
	assert.Equal(t, time.Minute, opts.Timeout)
}
