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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStatusValues(t *testing.T) {
	// These are persisted; changing them breaks existing rows.
	assert.Equal(t, int16(0), int16(StatusFailed))
	assert.Equal(t, int16(1), int16(StatusFailedTryAgain))
	assert.Equal(t, int16(2), int16(StatusReceived))
	assert.Equal(t, int16(3), int16(StatusProcessing))
	assert.Equal(t, int16(4), int16(StatusSuccess))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "FAILED_TRY_AGAIN", StatusFailedTryAgain.String())
	assert.Equal(t, "Status(9)", Status(9).String())
	assert.False(t, Status(9).Valid())
	assert.True(t, StatusSuccess.Valid())
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusFailedTryAgain.Terminal())
	assert.False(t, StatusReceived.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" received ")
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, s)

	_, err = ParseStatus("DONE")
	assert.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	all := []Status{StatusFailed, StatusFailedTryAgain, StatusReceived, StatusProcessing, StatusSuccess}
	allowed := map[[2]Status]bool{
		{StatusReceived, StatusProcessing}:       true,
		{StatusProcessing, StatusSuccess}:        true,
		{StatusProcessing, StatusFailed}:         true,
		{StatusProcessing, StatusFailedTryAgain}: true,
		{StatusFailedTryAgain, StatusReceived}:   true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestSummaryEncoding(t *testing.T) {
	s := JobSummary{Status: StatusProcessing, FileName: "a.pdf"}

	j, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(j), `"status":"PROCESSING"`)

	y, err := yaml.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(y), "status: PROCESSING")

	var back JobSummary
	require.NoError(t, json.Unmarshal(j, &back))
	assert.Equal(t, StatusProcessing, back.Status)
}
