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
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/personalesag/internal/orgindex"
	"github.com/cardinalhq/personalesag/internal/records"
)

// departmentCodesFor returns the codes of departments whose name contains
// orgUnit, or whose name cut to the HR system's width is a prefix of it.
func departmentCodesFor(orgUnit string, departments []orgindex.Department) mapset.Set[string] {
	codes := mapset.NewThreadUnsafeSet[string]()
	if orgUnit == "" {
		return codes
	}
	for _, d := range departments {
		if d.Name == "" || d.Code == "" {
			continue
		}
		if strings.Contains(d.Name, orgUnit) || strings.HasPrefix(orgUnit, truncateRunes(d.Name, TruncatedNameWidth)) {
			codes.Add(d.Code)
		}
	}
	return codes
}

// directMatches returns the candidates whose organizational unit resolves
// to a set of departments containing the employment's department.
func directMatches(emp records.Employment, candidates []records.Case, departments []orgindex.Department) []records.Case {
	var hits []records.Case
	for _, c := range candidates {
		if departmentCodesFor(c.OrgUnitName, departments).Contains(emp.DepartmentCode) {
			hits = append(hits, c)
		}
	}
	return hits
}

// level3Match reports whether the case's organizational unit and the
// employment's department fall under the same level-3 group.
func level3Match(emp records.Employment, c records.Case, ix *orgindex.Index) bool {
	if ix == nil || c.OrgUnitName == "" || emp.DepartmentCode == "" {
		return false
	}
	_, ok := ix.Lookup(emp.DepartmentCode, c.OrgUnitName)
	return ok
}
