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

// Package sbsys talks to the case management system's REST API: searching
// a person's cases, reading sub-processes and documents, and filing new
// documents.
package sbsys

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cardinalhq/personalesag/internal/httpclient"
)

// DefaultCaseKind is the case type id of personnel cases.
const DefaultCaseKind = 5

type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	CaseKind     int
	Timeout      time.Duration
}

type Client struct {
	base     *url.URL
	caseKind int
	http     *httpclient.Client
	tokens   *TokenSource
}

func New(cfg Config, opts ...httpclient.Option) (*Client, error) {
	if cfg.BaseURL == "" || cfg.TokenURL == "" {
		return nil, errors.New("sbsys base url and token url are required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse sbsys base url: %w", err)
	}
	if cfg.CaseKind == 0 {
		cfg.CaseKind = DefaultCaseKind
	}
	hc := httpclient.New("sbsys", cfg.Timeout, opts...)
	return &Client{
		base:     base,
		caseKind: cfg.CaseKind,
		http:     hc,
		tokens:   newTokenSource(cfg, hc),
	}, nil
}

type requestBody struct {
	contentType string
	data        []byte
}

func jsonBody(v any) (*requestBody, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &requestBody{contentType: "application/json", data: data}, nil
}

// do sends an authenticated request and decodes a JSON answer into out
// when out is not nil. A 401 drops the cached token and tries once more
// with a fresh one.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body *requestBody, idempotent bool, out any) error {
	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	send := func() ([]byte, error) {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		build := func(ctx context.Context) (*http.Request, error) {
			var r io.Reader
			if body != nil {
				r = bytes.NewReader(body.data)
			}
			req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Accept", "application/json")
			if body != nil {
				req.Header.Set("Content-Type", body.contentType)
			}
			return req, nil
		}
		if idempotent {
			return c.http.DoIdempotent(ctx, build)
		}
		return c.http.Do(ctx, build)
	}

	data, err := send()
	if httpclient.IsStatus(err, http.StatusUnauthorized) {
		c.tokens.Invalidate()
		data, err = send()
	}
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
