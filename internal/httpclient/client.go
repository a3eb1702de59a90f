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

// Package httpclient is the shared HTTP plumbing for the collaborator
// clients: traced transport, bounded bodies, retry of idempotent calls and
// translation of failures into fault kinds.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cardinalhq/personalesag/internal/fault"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxTries = 3
	MaxBodySize     = 64 * 1024 * 1024 // 64 MB
)

// StatusError is a response outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the same request may succeed later.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client sends requests for one collaborator.
type Client struct {
	name            string
	client          *http.Client
	maxTries        uint
	initialInterval time.Duration
}

type Option func(*Client)

func WithMaxTries(n uint) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithInitialInterval sets the first backoff delay between retries.
func WithInitialInterval(d time.Duration) Option {
	return func(c *Client) {
		c.initialInterval = d
	}
}

// WithHTTPClient replaces the underlying client. Its transport is used as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// New creates a client named for metrics and spans. A zero timeout uses
// DefaultTimeout.
func New(name string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		name: name,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxTries:        DefaultMaxTries,
		initialInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestFunc builds a fresh request for each attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Do sends the request once and returns the body of a 2xx response.
func (c *Client) Do(ctx context.Context, build RequestFunc) ([]byte, error) {
	body, err := c.once(ctx, build)
	if err != nil {
		recordError(c.name, err)
	}
	return body, err
}

// DoIdempotent is Do with retries on network errors and retryable statuses.
func (c *Client) DoIdempotent(ctx context.Context, build RequestFunc) ([]byte, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialInterval

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		b, err := c.once(ctx, build)
		if err == nil {
			return b, nil
		}
		recordError(c.name, err)
		if !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(c.maxTries))
	return body, err
}

func (c *Client) once(ctx context.Context, build RequestFunc) ([]byte, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(data)) > MaxBodySize {
		return nil, fmt.Errorf("response exceeds max size (%d bytes)", MaxBodySize)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	return data, nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}

// Classify wraps a collaborator failure as transient. Any status the
// service answers with, including 4xx, is a service problem rather than a
// property of the job's data; callers that give a status a data meaning
// (404 as absent, a rejected upload) check for it before classifying.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	return fault.Transient(op, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
