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

// Package healthcheck serves the liveness and readiness endpoints used by
// the orchestrator.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultPort = 8090

type Status int32

const (
	StatusStarting Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

type Response struct {
	Healthy    bool            `json:"healthy"`
	Conditions map[string]bool `json:"conditions,omitempty"`
}

// Server tracks process status and named readiness conditions. Ready
// requires SetReady(true) and every registered condition to be true.
type Server struct {
	port   int
	status atomic.Int32
	ready  atomic.Bool

	mu         sync.RWMutex
	conditions map[string]bool

	server *http.Server
}

type Config struct {
	Port int
}

func GetConfigFromEnv() Config {
	port := DefaultPort
	if portStr := os.Getenv("HEALTH_CHECK_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil && p > 0 && p < 65536 {
			port = p
		}
	}
	return Config{Port: port}
}

func NewServer(config Config) *Server {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	return &Server{
		port:       config.Port,
		conditions: map[string]bool{},
	}
}

func (s *Server) SetStatus(status Status) {
	s.status.Store(int32(status))
	slog.Debug("Health check status updated", slog.String("status", status.String()))
}

func (s *Server) GetStatus() Status {
	return Status(s.status.Load())
}

func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	slog.Debug("Ready status updated", slog.Bool("ready", ready))
}

// SetReadyCondition sets a named readiness condition, such as whether the
// department index has been built.
func (s *Server) SetReadyCondition(name string, ready bool) {
	s.mu.Lock()
	prev, known := s.conditions[name]
	s.conditions[name] = ready
	s.mu.Unlock()
	if !known || prev != ready {
		slog.Info("Ready condition changed", slog.String("condition", name), slog.Bool("ready", ready))
	}
}

func (s *Server) ClearReadyCondition(name string) {
	s.mu.Lock()
	delete(s.conditions, name)
	s.mu.Unlock()
}

func (s *Server) snapshotConditions() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.conditions) == 0 {
		return nil
	}
	out := make(map[string]bool, len(s.conditions))
	for k, v := range s.conditions {
		out[k] = v
	}
	return out
}

func (s *Server) IsReady() bool {
	if !s.ready.Load() {
		return false
	}
	for _, ok := range s.snapshotConditions() {
		if !ok {
			return false
		}
	}
	return true
}

// Handler returns the mux serving /healthz, /readyz and /livez.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, Response{Healthy: s.GetStatus() == StatusHealthy})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, Response{Healthy: s.IsReady(), Conditions: s.snapshotConditions()})
	})
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, Response{Healthy: s.GetStatus() != StatusUnhealthy})
	})
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.SetStatus(StatusStarting)
	slog.Info("Starting health check server", slog.Int("port", s.port))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health check server error", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	return s.Stop()
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	slog.Info("Stopping health check server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func writeResponse(w http.ResponseWriter, response Response) {
	w.Header().Set("Content-Type", "application/json")
	if response.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode health check response", slog.Any("error", err))
	}
}
