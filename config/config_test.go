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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.Worker.CallTimeout)
	assert.Equal(t, "Ansættelse", cfg.Worker.SubProcessTitle)
	assert.Equal(t, "Indgående", cfg.Worker.DocumentType)
	assert.Equal(t, 12*time.Hour, cfg.Worker.IndexMaxAge)
	assert.Equal(t, 5*time.Minute, cfg.Worker.IndexTimeout)
	assert.Equal(t, 5, cfg.Cases.CaseKind)
	assert.Equal(t, 30*24*time.Hour, cfg.Sweeper.Retention)
	assert.False(t, cfg.Archive.Enabled())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PERSONALESAG_HR_URL", "https://sd.example.dk/sdws")
	t.Setenv("PERSONALESAG_HR_INSTITUTIONS", "XA, XB")
	t.Setenv("PERSONALESAG_WORKER_POLL_INTERVAL", "2s")
	t.Setenv("PERSONALESAG_CASES_CASE_KIND", "7")
	t.Setenv("PERSONALESAG_EVIDENCE_REQUESTS_PER_SECOND", "0.5")
	t.Setenv("PERSONALESAG_ARCHIVE_BUCKET", "jobs-archive")
	t.Setenv("PERSONALESAG_ARCHIVE_USE_PATH_STYLE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://sd.example.dk/sdws", cfg.HR.URL)
	assert.Equal(t, []string{"XA", "XB"}, cfg.HR.Institutions)
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 7, cfg.Cases.CaseKind)
	assert.InDelta(t, 0.5, cfg.Evidence.RequestsPerSecond, 1e-9)
	assert.True(t, cfg.Archive.Enabled())
	assert.True(t, cfg.Archive.UsePathStyle)
}

func TestValidateWorkerCollectsEverything(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ValidateWorker()
	require.Error(t, err)
	for _, want := range []string{"hr.url", "hr.region", "cases.url", "cases.token_url", "cases.client_id", "evidence.url"} {
		assert.Contains(t, err.Error(), want)
	}

	cfg.HR.URL = "https://sd"
	cfg.HR.Region = "9R"
	cfg.Cases.URL = "https://sbsys"
	cfg.Cases.TokenURL = "https://sbsys/token"
	cfg.Cases.ClientID = "personalesag"
	cfg.Evidence.URL = "http://evidence:3000"
	assert.NoError(t, cfg.ValidateWorker())
}

func TestValidateSweeper(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.ValidateSweeper())

	cfg.Sweeper.Retention = 0
	cfg.Sweeper.BatchSize = -1
	err := cfg.ValidateSweeper()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweeper.retention")
	assert.Contains(t, err.Error(), "sweeper.batch_size")
}

func TestClientConfigs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cases.URL = "https://sbsys"
	cfg.Evidence.URL = "http://evidence"

	assert.Equal(t, "https://sbsys", cfg.Cases.Client().BaseURL)
	assert.Equal(t, 5, cfg.Cases.Client().CaseKind)
	assert.Equal(t, "http://evidence", cfg.Evidence.Client().BaseURL)
	assert.Equal(t, "Ansættelse", cfg.Worker.Journal().SubProcessTitle)
}
