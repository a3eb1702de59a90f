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
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var requestErrors metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/personalesag/internal/httpclient")

	var err error
	requestErrors, err = meter.Int64Counter(
		"personalesag.http.client.errors",
		metric.WithDescription("Number of failed collaborator requests"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create http.client.errors counter: %w", err))
	}
}

func recordError(client string, err error) {
	reason := "transport"
	var se *StatusError
	if errors.As(err, &se) {
		reason = strconv.Itoa(se.StatusCode)
	}
	requestErrors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("client", client),
		attribute.String("error_reason", reason),
	))
}
