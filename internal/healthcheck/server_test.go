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

package healthcheck

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "starting", StatusStarting.String())
	assert.Equal(t, "healthy", StatusHealthy.String())
	assert.Equal(t, "unhealthy", StatusUnhealthy.String())
	assert.Equal(t, "unknown", Status(999).String())
}

func TestGetConfigFromEnv(t *testing.T) {
	t.Setenv("HEALTH_CHECK_PORT", "")
	assert.Equal(t, DefaultPort, GetConfigFromEnv().Port)

	t.Setenv("HEALTH_CHECK_PORT", "9090")
	assert.Equal(t, 9090, GetConfigFromEnv().Port)

	t.Setenv("HEALTH_CHECK_PORT", "invalid")
	assert.Equal(t, DefaultPort, GetConfigFromEnv().Port)

	t.Setenv("HEALTH_CHECK_PORT", "70000")
	assert.Equal(t, DefaultPort, GetConfigFromEnv().Port)
}

func get(t *testing.T, s *Server, path string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, resp
}

func TestHealthAndLiveness(t *testing.T) {
	s := NewServer(Config{})

	code, _ := get(t, s, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = get(t, s, "/livez")
	assert.Equal(t, http.StatusOK, code)

	s.SetStatus(StatusHealthy)
	code, resp := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Healthy)

	s.SetStatus(StatusUnhealthy)
	code, _ = get(t, s, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadinessConditions(t *testing.T) {
	s := NewServer(Config{Port: 1234})
	s.SetReadyCondition("department_index", false)

	code, _ := get(t, s, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	s.SetReady(true)
	code, resp := get(t, s, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]bool{"department_index": false}, resp.Conditions)

	s.SetReadyCondition("department_index", true)
	code, resp = get(t, s, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Healthy)

	s.SetReadyCondition("department_index", false)
	assert.False(t, s.IsReady())
	s.ClearReadyCondition("department_index")
	assert.True(t, s.IsReady())
}

func TestStopWithoutStart(t *testing.T) {
	assert.NoError(t, NewServer(Config{}).Stop())
}
