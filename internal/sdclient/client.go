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

// Package sdclient reads employments and the organization from the HR
// registry's XML web service.
package sdclient

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cardinalhq/personalesag/internal/fault"
	"github.com/cardinalhq/personalesag/internal/httpclient"
	"github.com/cardinalhq/personalesag/internal/logctx"
)

// dateLayout is the DD.MM.YYYY form the service expects for dates.
const dateLayout = "02.01.2006"

type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

type Client struct {
	base     *url.URL
	username string
	password string
	http     *httpclient.Client
	httpOpts []httpclient.Option
	now      func() time.Time
}

type Option func(*Client)

func WithHTTPOptions(opts ...httpclient.Option) Option {
	return func(c *Client) {
		c.httpOpts = append(c.httpOpts, opts...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("sd base url is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse sd base url: %w", err)
	}
	c := &Client{
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = httpclient.New("sd", cfg.Timeout, c.httpOpts...)
	return c, nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// call performs one GET against an operation and decodes the XML answer
// into out. It returns found=false when the service answers with a SOAP
// fault, a 404 or an HTML page, which is how it reports that nothing
// matches the request.
func (c *Client) call(ctx context.Context, operation string, params url.Values, out any) (found bool, err error) {
	u := c.base.JoinPath(operation)
	u.RawQuery = params.Encode()

	body, err := c.http.DoIdempotent(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.username, c.password)
		req.Header.Set("Accept", "application/xml")
		return req, nil
	})
	if httpclient.IsStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, httpclient.Classify("sd."+operation, err)
	}

	if mt, _, perr := mime.ParseMediaType(http.DetectContentType(body)); perr == nil && mt == "text/html" {
		logctx.FromContext(ctx).Warn("HR service answered with HTML", slog.String("operation", operation))
		return false, nil
	}

	if f, ok := soapFault(body); ok {
		logctx.FromContext(ctx).Info("HR service returned a fault",
			slog.String("operation", operation),
			slog.String("faultCode", f.Code),
			slog.String("faultString", f.String))
		return false, nil
	}

	if err := xml.Unmarshal(body, out); err != nil {
		return false, fault.Transient("sd."+operation, fmt.Errorf("unreadable response: %w", err))
	}
	return true, nil
}

type soapEnvelope struct {
	XMLName xml.Name
	Body    struct {
		Fault *SOAPFault `xml:"Fault"`
	} `xml:"Body"`
}

// SOAPFault is the error envelope the service returns instead of a result.
type SOAPFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
	Actor  string `xml:"faultactor"`
}

func soapFault(body []byte) (*SOAPFault, bool) {
	var env soapEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, false
	}
	if env.XMLName.Local != "Envelope" || env.Body.Fault == nil {
		return nil, false
	}
	return env.Body.Fault, true
}
