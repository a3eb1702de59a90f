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

package orgindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/personalesag/internal/fault"
	"github.com/cardinalhq/personalesag/internal/logctx"
)

var ErrUnavailable = errors.New("department index unavailable")

const (
	DefaultMaxAge        = 12 * time.Hour
	DefaultRetryInterval = time.Minute
)

// Source fetches the raw organization data. A nil result with a nil error
// means the HR system answered but had nothing for the request; the cache
// treats that the same as a failed fetch.
type Source interface {
	FetchTree(ctx context.Context) ([]*Node, error)
	FetchDepartments(ctx context.Context) ([]Department, error)
}

// Snapshot is one complete build. Departments is the flattened tree, used
// for direct name lookups.
type Snapshot struct {
	Index       *Index
	Departments []Department
	BuiltAt     time.Time
}

// Cache holds the current Snapshot and rebuilds it when it is missing or
// older than the configured age. Readers always see a complete snapshot.
type Cache struct {
	source        Source
	maxAge        time.Duration
	retryInterval time.Duration
	now           func() time.Time
	onReady       func(bool)

	current     atomic.Pointer[Snapshot]
	mu          sync.Mutex
	lastFailure time.Time
}

type Option func(*Cache)

func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// WithRetryInterval sets the minimum time between failed rebuild attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d >= 0 {
			c.retryInterval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithReadyFunc registers a callback invoked after every rebuild attempt
// with whether a snapshot is available.
func WithReadyFunc(f func(bool)) Option {
	return func(c *Cache) {
		c.onReady = f
	}
}

func NewCache(source Source, opts ...Option) *Cache {
	c := &Cache{
		source:        source,
		maxAge:        DefaultMaxAge,
		retryInterval: DefaultRetryInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the last good snapshot, or nil.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Ensure returns a usable snapshot, rebuilding first if the current one is
// missing or stale. A failed rebuild keeps the previous snapshot. Only when
// no snapshot has ever been built does Ensure return an error, classified
// as fault.KindUnavailable.
func (c *Cache) Ensure(ctx context.Context) (*Snapshot, error) {
	snap := c.current.Load()
	if snap != nil && c.now().Sub(snap.BuiltAt) < c.maxAge {
		return snap, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Someone else may have rebuilt while we waited.
	snap = c.current.Load()
	if snap != nil && c.now().Sub(snap.BuiltAt) < c.maxAge {
		return snap, nil
	}

	if !c.lastFailure.IsZero() && c.now().Sub(c.lastFailure) < c.retryInterval {
		if snap != nil {
			return snap, nil
		}
		return nil, fault.Unavailable("orgindex", fmt.Errorf("%w: waiting to retry", ErrUnavailable))
	}

	fresh, err := c.rebuild(ctx)
	if err != nil {
		c.lastFailure = c.now()
		c.notify(snap != nil)
		if snap != nil {
			logctx.FromContext(ctx).Warn("Department index rebuild failed, keeping previous index",
				slog.Time("builtAt", snap.BuiltAt),
				slog.Any("error", err))
			return snap, nil
		}
		logctx.FromContext(ctx).Error("Department index rebuild failed, no index available", slog.Any("error", err))
		return nil, fault.Unavailable("orgindex", err)
	}

	c.lastFailure = time.Time{}
	c.current.Store(fresh)
	c.notify(true)
	return fresh, nil
}

// Rebuild fetches and builds a new snapshot without touching the cache.
func (c *Cache) Rebuild(ctx context.Context) (*Snapshot, error) {
	return c.rebuild(ctx)
}

func (c *Cache) rebuild(ctx context.Context) (*Snapshot, error) {
	t0 := time.Now()
	snap, err := c.build(ctx)
	result := "success"
	if err != nil {
		result = "failure"
	}
	rebuildCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	rebuildDuration.Record(ctx, time.Since(t0).Seconds(), metric.WithAttributes(attribute.String("result", result)))
	return snap, err
}

func (c *Cache) build(ctx context.Context) (*Snapshot, error) {
	tree, err := c.source.FetchTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch organization tree: %w", ErrUnavailable, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: organization tree not returned", ErrUnavailable)
	}
	departments, err := c.source.FetchDepartments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch departments: %w", ErrUnavailable, err)
	}
	if departments == nil {
		return nil, fmt.Errorf("%w: department list not returned", ErrUnavailable)
	}

	ix, err := Build(ctx, tree, departments)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	snap := &Snapshot{
		Index:       ix,
		Departments: Flatten(tree),
		BuiltAt:     c.now(),
	}
	logctx.FromContext(ctx).Info("Department index built",
		slog.Int("level3Groups", ix.Len()),
		slog.Int("departments", len(snap.Departments)))
	return snap, nil
}

func (c *Cache) notify(ready bool) {
	if c.onReady != nil {
		c.onReady(ready)
	}
}
