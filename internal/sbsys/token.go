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

package sbsys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/cardinalhq/personalesag/internal/httpclient"
)

// tokenSlack is subtracted from the server's expires_in so a token is
// never used right at its expiry.
const tokenSlack = 30 * time.Second

const tokenKey = "access_token"

// TokenSource fetches access tokens with the OpenID Connect password grant
// and caches them until shortly before they expire.
type TokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	username     string
	password     string

	http   *httpclient.Client
	cache  *ttlcache.Cache[string, string]
	flight singleflight.Group
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func newTokenSource(cfg Config, hc *httpclient.Client) *TokenSource {
	return &TokenSource{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		username:     cfg.Username,
		password:     cfg.Password,
		http:         hc,
		cache:        ttlcache.New[string, string](ttlcache.WithDisableTouchOnHit[string, string]()),
	}
}

// Token returns a valid access token, fetching a new one if needed.
// Concurrent callers share a single fetch.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	if item := ts.cache.Get(tokenKey); item != nil {
		return item.Value(), nil
	}
	v, err, _ := ts.flight.Do(tokenKey, func() (any, error) {
		if item := ts.cache.Get(tokenKey); item != nil {
			return item.Value(), nil
		}
		return ts.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token, used after the API rejects it.
func (ts *TokenSource) Invalidate() {
	ts.cache.Delete(tokenKey)
}

func (ts *TokenSource) fetch(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
		"username":      {ts.username},
		"password":      {ts.password},
	}
	body, err := ts.http.DoIdempotent(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", httpclient.Classify("sbsys.token", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("token response has no access_token")
	}

	ttl := time.Duration(tr.ExpiresIn)*time.Second - tokenSlack
	if ttl > 0 {
		ts.cache.Set(tokenKey, tr.AccessToken, ttl)
	}
	return tr.AccessToken, nil
}
