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
	"strings"
)

// Status is the job state. The numeric values are stored in the database
// and are ordered by value, not by lifecycle.
type Status int16

const (
	StatusFailed         Status = 0
	StatusFailedTryAgain Status = 1
	StatusReceived       Status = 2
	StatusProcessing     Status = 3
	StatusSuccess        Status = 4
)

var statusNames = map[Status]string{
	StatusFailed:         "FAILED",
	StatusFailedTryAgain: "FAILED_TRY_AGAIN",
	StatusReceived:       "RECEIVED",
	StatusProcessing:     "PROCESSING",
	StatusSuccess:        "SUCCESS",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int16(s))
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseStatus(s string) (Status, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for st, name := range statusNames {
		if name == want {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

var transitions = map[Status][]Status{
	StatusReceived:       {StatusProcessing},
	StatusProcessing:     {StatusSuccess, StatusFailed, StatusFailedTryAgain},
	StatusFailedTryAgain: {StatusReceived},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
