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

// Package records holds the typed views of HR, case management and
// evidence data that the matcher and journalizer operate on. Clients parse
// their wire formats into these types; nothing past the client boundary
// sees raw payloads.
package records

import (
	"fmt"
	"strings"
	"time"
)

// Employment is the HR registry's view of one employment of a person.
type Employment struct {
	PersonID       string
	EmploymentID   string
	InstitutionID  string
	DepartmentCode string
	AsOf           time.Time
}

// Case is an entry in the case management system.
type Case struct {
	ID          int64
	Number      string
	Title       string
	Status      string
	OrgUnitName string
	Created     time.Time
}

// Active reports whether the case is open. The case management system
// reports Danish or English status names depending on version.
func (c Case) Active() bool {
	switch strings.ToLower(strings.TrimSpace(c.Status)) {
	case "aktiv", "active":
		return true
	}
	return false
}

func (c Case) String() string {
	if c.Number != "" {
		return fmt.Sprintf("%d (%s)", c.ID, c.Number)
	}
	return fmt.Sprintf("%d", c.ID)
}

// SubProcess is a named subdivision of a case under which documents are filed.
type SubProcess struct {
	ID    int64
	Title string
}

// Document is a document filed on a case. Registered is kept as the raw
// timestamp text because the upstream format varies between endpoints.
type Document struct {
	ID           int64
	Name         string
	SubProcessID int64
	Registered   string
}

// EvidenceDocument is one document the evidence service saw in the third
// system's archive.
type EvidenceDocument struct {
	Name        string
	ArchiveDate string
}

// Evidence is the evidence service's answer for one query.
type Evidence struct {
	Query     string
	Documents []EvidenceDocument
}

// File is an upload payload.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// EvidenceQuery builds the query string the evidence service expects for
// a person and employment.
func EvidenceQuery(personID, employmentID string) string {
	return personID + " " + employmentID
}

// NormalizeSpace collapses runs of whitespace to single spaces and trims
// the ends.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SubProcessesTitled returns the sub-processes whose title equals title,
// ignoring case and whitespace differences.
func SubProcessesTitled(subs []SubProcess, title string) []SubProcess {
	want := NormalizeSpace(title)
	var out []SubProcess
	for _, sp := range subs {
		if strings.EqualFold(NormalizeSpace(sp.Title), want) {
			out = append(out, sp)
		}
	}
	return out
}
