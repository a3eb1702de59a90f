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

// Package evidence is the client for the headless browser service that
// reads the HR system's own personnel case archive.
package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"

	"github.com/cardinalhq/personalesag/internal/casematch"
	"github.com/cardinalhq/personalesag/internal/httpclient"
	"github.com/cardinalhq/personalesag/internal/logctx"
	"github.com/cardinalhq/personalesag/internal/records"
)

const (
	// Browser sessions are slow; the defaults keep the service from
	// being flooded by a burst of retried jobs.
	DefaultTimeout  = 3 * time.Minute
	DefaultRate     = rate.Limit(0.2)
	DefaultBurst    = 1
	DefaultProbeTTL = 10 * time.Minute
)

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	// RequestsPerSecond paces all calls. Zero uses DefaultRate.
	RequestsPerSecond float64
	// ProbeTTL is how long a positive probe is remembered.
	ProbeTTL time.Duration
}

type Client struct {
	base         *url.URL
	clientID     string
	clientSecret string
	http         *httpclient.Client
	limiter      *rate.Limiter
	probes       *ttlcache.Cache[string, bool]
	probeTTL     time.Duration
}

var _ casematch.Evidence = (*Client)(nil)

func New(cfg Config, opts ...httpclient.Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("evidence base url is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse evidence base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	limit := DefaultRate
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.ProbeTTL <= 0 {
		cfg.ProbeTTL = DefaultProbeTTL
	}
	return &Client{
		base:         base,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		http:         httpclient.New("evidence", cfg.Timeout, opts...),
		limiter:      rate.NewLimiter(limit, DefaultBurst),
		probes:       ttlcache.New[string, bool](),
		probeTTL:     cfg.ProbeTTL,
	}, nil
}

type probeRequest struct {
	PersonID     string `json:"cpr"`
	EmploymentID string `json:"employment"`
}

type probeResponse struct {
	Created bool `json:"created"`
}

type documentsRequest struct {
	Queries []string `json:"queries"`
}

type documentsResult struct {
	Query     string `json:"query"`
	Documents []struct {
		Name        string `json:"name"`
		ArchiveDate string `json:"archiveDate"`
	} `json:"documents"`
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("evidence rate limit: %w", err)
	}
	u := c.base.JoinPath(path).String()
	body, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.clientID != "" {
			req.SetBasicAuth(c.clientID, c.clientSecret)
		}
		return req, nil
	})
	if err != nil {
		return httpclient.Classify("evidence."+path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return httpclient.Classify("evidence."+path, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// ProbeCaseExists asks the service to open the person's personnel case in
// the HR system, which makes the case management system create its
// counterpart. It reports whether a case was found. Positive answers are
// remembered for ProbeTTL so a retried job does not probe again.
func (c *Client) ProbeCaseExists(ctx context.Context, personID, employmentID string) (bool, error) {
	key := records.EvidenceQuery(personID, employmentID)
	if item := c.probes.Get(key); item != nil {
		return item.Value(), nil
	}

	var resp probeResponse
	if err := c.post(ctx, "probe", probeRequest{PersonID: personID, EmploymentID: employmentID}, &resp); err != nil {
		return false, err
	}
	if resp.Created {
		c.probes.Set(key, true, c.probeTTL)
	}
	logctx.FromContext(ctx).Info("Evidence probe finished", slog.Bool("created", resp.Created))
	return resp.Created, nil
}

// FetchDocumentEvidence returns the archive listing for each query, in the
// order the service answers.
func (c *Client) FetchDocumentEvidence(ctx context.Context, queries []string) ([]records.Evidence, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	var resp []documentsResult
	if err := c.post(ctx, "documents", documentsRequest{Queries: queries}, &resp); err != nil {
		return nil, err
	}
	out := make([]records.Evidence, 0, len(resp))
	for _, r := range resp {
		ev := records.Evidence{Query: r.Query}
		for _, d := range r.Documents {
			ev.Documents = append(ev.Documents, records.EvidenceDocument{
				Name:        strings.TrimSpace(d.Name),
				ArchiveDate: strings.TrimSpace(d.ArchiveDate),
			})
		}
		out = append(out, ev)
	}
	return out, nil
}
