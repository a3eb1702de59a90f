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

package casematch

import "github.com/cardinalhq/personalesag/internal/records"

// Tier identifies which heuristic produced a match.
type Tier int

const (
	TierNone Tier = iota
	TierDirect
	TierLevel3
	TierEvidence
)

func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierLevel3:
		return "level3"
	case TierEvidence:
		return "evidence"
	default:
		return "none"
	}
}

// Reason explains a NoMatch.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonNoCandidates means the person has no active case at all, even
	// after asking the evidence service.
	ReasonNoCandidates
	// ReasonNoCorrespondence means cases exist but none relates to the
	// employment's department.
	ReasonNoCorrespondence
	// ReasonAmbiguous means more than one case matched directly and no
	// later tier singled one out.
	ReasonAmbiguous
)

func (r Reason) String() string {
	switch r {
	case ReasonNoCandidates:
		return "no_candidates"
	case ReasonNoCorrespondence:
		return "no_correspondence"
	case ReasonAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// Result is either a single matched case or NoMatch with a reason.
type Result struct {
	Case   *records.Case
	Tier   Tier
	Reason Reason
	// Retried is set when candidates were re-fetched after the evidence
	// service reported creating a case.
	Retried bool
}

func (r Result) Matched() bool {
	return r.Case != nil
}

func matched(c records.Case, tier Tier) Result {
	return Result{Case: &c, Tier: tier}
}

func noMatch(reason Reason) Result {
	return Result{Reason: reason}
}
