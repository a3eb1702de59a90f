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

package worker

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	jobCounter  metric.Int64Counter
	jobDuration metric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/personalesag/internal/worker")

	var err error
	jobCounter, err = meter.Int64Counter(
		"personalesag.worker.jobs",
		metric.WithDescription("Number of upload jobs processed, by resulting status"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create worker.jobs counter: %w", err))
	}

	jobDuration, err = meter.Float64Histogram(
		"personalesag.worker.job.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time taken to process one upload job"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create worker.job.duration histogram: %w", err))
	}
}
