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

package jobdb

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	claimDuration metric.Float64Histogram
	statusCounter metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/personalesag/jobdb")

	var err error
	claimDuration, err = meter.Float64Histogram(
		"personalesag.jobdb.claim.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time taken to claim the next upload job"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create jobdb.claim.duration histogram: %w", err))
	}

	statusCounter, err = meter.Int64Counter(
		"personalesag.jobdb.status.updates",
		metric.WithDescription("Number of upload job status transitions by target status"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create jobdb.status.updates counter: %w", err))
	}
}
