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

package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/personalesag/internal/fault"
)

func get(url string) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestDo_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := New("test", time.Second)
	body, err := c.Do(t.Context(), get(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestDo_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	}))
	defer srv.Close()

	c := New("test", time.Second)
	_, err := c.Do(t.Context(), get(srv.URL))
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Contains(t, err.Error(), "nope")
}

func TestDoIdempotent_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New("test", time.Second, WithMaxTries(3), WithInitialInterval(time.Millisecond))
	body, err := c.DoIdempotent(t.Context(), get(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoIdempotent_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New("test", time.Second, WithMaxTries(5), WithInitialInterval(time.Millisecond))
	_, err := c.DoIdempotent(t.Context(), get(srv.URL))
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadRequest))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("op", nil))

	assert.True(t, fault.IsTransient(Classify("op", &StatusError{StatusCode: 503})))
	assert.True(t, fault.IsTransient(Classify("op", &StatusError{StatusCode: 429})))
	assert.True(t, fault.IsTransient(Classify("op", errors.New("connection refused"))))
	assert.True(t, fault.IsTransient(Classify("op", &StatusError{StatusCode: 422})))
	assert.True(t, fault.IsTransient(Classify("op", &StatusError{StatusCode: 403})))
	assert.True(t, fault.IsTransient(Classify("op", &StatusError{StatusCode: 401})))

	already := fault.Structural("inner", "bad data")
	assert.Same(t, already, Classify("outer", already))
}
