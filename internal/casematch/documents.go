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

import (
	"context"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/personalesag/internal/fault"
	"github.com/cardinalhq/personalesag/internal/logctx"
	"github.com/cardinalhq/personalesag/internal/records"
)

type docKey struct {
	name string
	date string
}

// evidenceKeys collects name and date pairs from the evidence answer for
// query. Entries with an unreadable date are skipped.
func evidenceKeys(query string, evidence []records.Evidence) mapset.Set[docKey] {
	keys := mapset.NewThreadUnsafeSet[docKey]()
	for _, ev := range evidence {
		if ev.Query != "" && ev.Query != query {
			continue
		}
		for _, d := range ev.Documents {
			date, ok := dateOnly(d.ArchiveDate)
			if !ok {
				continue
			}
			keys.Add(docKey{name: records.NormalizeSpace(d.Name), date: date})
		}
	}
	return keys
}

// documentsMatch reports whether every document has a matching evidence
// entry. An empty document list never matches.
func documentsMatch(docs []records.Document, keys mapset.Set[docKey]) bool {
	if len(docs) == 0 {
		return false
	}
	for _, d := range docs {
		date, ok := dateOnly(d.Registered)
		if !ok {
			return false
		}
		if !keys.Contains(docKey{name: records.NormalizeSpace(d.Name), date: date}) {
			return false
		}
	}
	return true
}

// matchDocuments compares each candidate's employment documents against
// the evidence service's archive listing and returns the first case whose
// documents are all accounted for.
func (m *Matcher) matchDocuments(ctx context.Context, emp records.Employment, candidates []records.Case) (records.Case, bool, error) {
	ll := logctx.FromContext(ctx)
	query := records.EvidenceQuery(emp.PersonID, emp.EmploymentID)

	callCtx, cancel := m.callContext(ctx)
	evidence, err := m.evidence.FetchDocumentEvidence(callCtx, []string{query})
	cancel()
	if err != nil {
		return records.Case{}, false, fault.Transient("evidence.documents", err)
	}
	keys := evidenceKeys(query, evidence)
	if keys.Cardinality() == 0 {
		ll.Info("Evidence service listed no documents")
		return records.Case{}, false, nil
	}

	for _, c := range candidates {
		docs, err := m.employmentDocuments(ctx, c)
		if err != nil {
			return records.Case{}, false, err
		}
		if documentsMatch(docs, keys) {
			return c, true, nil
		}
		ll.Debug("Case documents do not match evidence",
			slog.Int64("caseID", c.ID),
			slog.Int("documents", len(docs)))
	}
	return records.Case{}, false, nil
}

func (m *Matcher) employmentDocuments(ctx context.Context, c records.Case) ([]records.Document, error) {
	callCtx, cancel := m.callContext(ctx)
	subs, err := m.cases.FetchSubProcesses(callCtx, c.ID)
	cancel()
	if err != nil {
		return nil, fault.Transient("cases.subprocesses", err)
	}

	var docs []records.Document
	for _, sp := range records.SubProcessesTitled(subs, m.cfg.SubProcessTitle) {
		callCtx, cancel := m.callContext(ctx)
		d, err := m.cases.FetchSubProcessDocuments(callCtx, c.ID, sp.ID)
		cancel()
		if err != nil {
			return nil, fault.Transient("cases.documents", err)
		}
		docs = append(docs, d...)
	}
	return docs, nil
}
