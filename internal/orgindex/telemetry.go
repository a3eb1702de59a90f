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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	rebuildCounter  metric.Int64Counter
	rebuildDuration metric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/personalesag/internal/orgindex")

	var err error
	rebuildCounter, err = meter.Int64Counter(
		"personalesag.orgindex.rebuilds",
		metric.WithDescription("Number of department index rebuild attempts"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create orgindex.rebuilds counter: %w", err))
	}

	rebuildDuration, err = meter.Float64Histogram(
		"personalesag.orgindex.rebuild.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time taken to fetch and build the department index"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create orgindex.rebuild.duration histogram: %w", err))
	}
}
