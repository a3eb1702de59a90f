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

// Package casematch picks the case an employment belongs to from a
// person's active cases.
//
// Matching runs in tiers and the first tier to produce a single case wins:
//
//  1. direct: the case's organizational unit name is found among the
//     department names, and the employment's department is one of the
//     departments so found;
//  2. level-3: the case's organizational unit name and the employment's
//     department both belong to the same level-3 group;
//  3. evidence: only when the person had no active case, the evidence
//     service is asked to probe, candidates are re-fetched and tiers 1
//     and 2 retried, and finally filed documents are compared against the
//     evidence service's archive listing.
//
// Name comparisons in tiers 1 and 2 are case-sensitive.
package casematch

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/personalesag/internal/fault"
	"github.com/cardinalhq/personalesag/internal/logctx"
	"github.com/cardinalhq/personalesag/internal/orgindex"
	"github.com/cardinalhq/personalesag/internal/records"
)

// CaseService is the part of the case management system the matcher reads.
type CaseService interface {
	SearchActiveCases(ctx context.Context, personID string) ([]records.Case, error)
	FetchSubProcesses(ctx context.Context, caseID int64) ([]records.SubProcess, error)
	FetchSubProcessDocuments(ctx context.Context, caseID, subProcessID int64) ([]records.Document, error)
}

// Evidence is the headless browser service used as a last resort.
type Evidence interface {
	ProbeCaseExists(ctx context.Context, personID, employmentID string) (bool, error)
	FetchDocumentEvidence(ctx context.Context, queries []string) ([]records.Evidence, error)
}

type Config struct {
	// SubProcessTitle selects the sub-process whose documents are compared
	// against evidence.
	SubProcessTitle string
	// CallTimeout bounds each collaborator call. Zero means no bound.
	CallTimeout time.Duration
}

type Matcher struct {
	cases    CaseService
	evidence Evidence
	cfg      Config
}

func New(cases CaseService, evidence Evidence, cfg Config) *Matcher {
	return &Matcher{cases: cases, evidence: evidence, cfg: cfg}
}

// Match returns at most one case for the employment. Collaborator failures
// are returned as errors; every other outcome is a Result.
func (m *Matcher) Match(ctx context.Context, emp records.Employment, candidates []records.Case, snap *orgindex.Snapshot) (Result, error) {
	ll := logctx.FromContext(ctx)

	res, err := m.match(ctx, emp, candidates, snap)
	if err != nil {
		matchCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tier", TierNone.String()),
			attribute.String("reason", "error"),
		))
		return res, err
	}

	matchCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", res.Tier.String()),
		attribute.String("reason", res.Reason.String()),
	))
	if res.Matched() {
		ll.Info("Matched case",
			slog.String("case", res.Case.String()),
			slog.String("tier", res.Tier.String()),
			slog.Bool("retried", res.Retried))
	} else {
		ll.Info("No case matched", slog.String("reason", res.Reason.String()))
	}
	return res, nil
}

func (m *Matcher) match(ctx context.Context, emp records.Employment, candidates []records.Case, snap *orgindex.Snapshot) (Result, error) {
	if len(candidates) > 0 {
		res := m.matchDepartments(ctx, emp, candidates, snap)
		if !res.Matched() && res.Reason == ReasonNone {
			res.Reason = ReasonNoCorrespondence
		}
		return res, nil
	}
	return m.matchWithEvidence(ctx, emp, snap)
}

// matchDepartments runs tiers 1 and 2. A zero Reason on NoMatch means
// neither tier found anything.
func (m *Matcher) matchDepartments(ctx context.Context, emp records.Employment, candidates []records.Case, snap *orgindex.Snapshot) Result {
	ll := logctx.FromContext(ctx)

	hits := directMatches(emp, candidates, snap.Departments)
	switch {
	case len(hits) == 1:
		return matched(hits[0], TierDirect)
	case len(hits) > 1:
		ids := make([]int64, 0, len(hits))
		for _, c := range hits {
			ids = append(ids, c.ID)
		}
		ll.Warn("More than one case matches the employment department directly",
			slog.String("department", emp.DepartmentCode),
			slog.Any("caseIDs", ids))

		var resolved []records.Case
		for _, c := range hits {
			if level3Match(emp, c, snap.Index) {
				resolved = append(resolved, c)
			}
		}
		if len(resolved) == 1 {
			return matched(resolved[0], TierLevel3)
		}
		return noMatch(ReasonAmbiguous)
	}

	for _, c := range candidates {
		if level3Match(emp, c, snap.Index) {
			return matched(c, TierLevel3)
		}
	}
	return Result{}
}

func (m *Matcher) matchWithEvidence(ctx context.Context, emp records.Employment, snap *orgindex.Snapshot) (Result, error) {
	ll := logctx.FromContext(ctx)

	callCtx, cancel := m.callContext(ctx)
	created, err := m.evidence.ProbeCaseExists(callCtx, emp.PersonID, emp.EmploymentID)
	cancel()
	if err != nil {
		return Result{}, fault.Transient("evidence.probe", err)
	}
	if !created {
		ll.Info("Evidence service found no case for the person")
		return noMatch(ReasonNoCandidates), nil
	}

	callCtx, cancel = m.callContext(ctx)
	found, err := m.cases.SearchActiveCases(callCtx, emp.PersonID)
	cancel()
	if err != nil {
		return Result{}, fault.Transient("cases.search", err)
	}
	refetched := activeOnly(found)
	if len(refetched) == 0 {
		return Result{Retried: true, Reason: ReasonNoCandidates}, nil
	}

	res := m.matchDepartments(ctx, emp, refetched, snap)
	res.Retried = true
	if res.Matched() {
		return res, nil
	}

	c, ok, err := m.matchDocuments(ctx, emp, refetched)
	if err != nil {
		return Result{}, err
	}
	if ok {
		r := matched(c, TierEvidence)
		r.Retried = true
		return r, nil
	}
	if res.Reason == ReasonNone {
		res.Reason = ReasonNoCorrespondence
	}
	return res, nil
}

func (m *Matcher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.cfg.CallTimeout)
}

func activeOnly(cases []records.Case) []records.Case {
	out := make([]records.Case, 0, len(cases))
	for _, c := range cases {
		if c.Active() {
			out = append(out, c)
		}
	}
	return out
}
