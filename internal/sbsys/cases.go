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

package sbsys

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cardinalhq/personalesag/internal/casematch"
	"github.com/cardinalhq/personalesag/internal/httpclient"
	"github.com/cardinalhq/personalesag/internal/records"
)

type named struct {
	ID   int64  `json:"Id"`
	Navn string `json:"Navn"`
}

type caseJSON struct {
	ID               int64  `json:"Id"`
	Nummer           string `json:"Nummer"`
	SagsTitel        string `json:"SagsTitel"`
	SagsStatus       named  `json:"SagsStatus"`
	Ansaettelsessted *named `json:"Ansaettelsessted"`
	Oprettet         string `json:"Oprettet"`
}

type searchRequest struct {
	PrimaerPerson struct {
		CprNummer string `json:"CprNummer"`
	} `json:"PrimaerPerson"`
	SagsTyper []struct {
		ID int `json:"Id"`
	} `json:"SagsTyper"`
}

type searchResponse struct {
	Results []caseJSON `json:"Results"`
}

type subProcessJSON struct {
	ID    int64  `json:"Id"`
	Titel string `json:"Titel"`
}

type documentJSON struct {
	ID           int64  `json:"Id"`
	Navn         string `json:"Navn"`
	DelforloebID int64  `json:"DelforloebId"`
	Registreret  string `json:"Registreret"`
}

// timestampLayouts are the forms the API uses for Oprettet and Registreret.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (cj caseJSON) record() records.Case {
	c := records.Case{
		ID:      cj.ID,
		Number:  cj.Nummer,
		Title:   cj.SagsTitel,
		Status:  cj.SagsStatus.Navn,
		Created: parseTimestamp(cj.Oprettet),
	}
	if cj.Ansaettelsessted != nil {
		c.OrgUnitName = strings.TrimSpace(cj.Ansaettelsessted.Navn)
	}
	return c
}

var _ casematch.CaseService = (*Client)(nil)

// SearchCases returns all personnel cases of the person, newest first.
func (c *Client) SearchCases(ctx context.Context, personID string) ([]records.Case, error) {
	var req searchRequest
	req.PrimaerPerson.CprNummer = personID
	req.SagsTyper = append(req.SagsTyper, struct {
		ID int `json:"Id"`
	}{ID: c.caseKind})

	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	// The search is a read even though it is a POST.
	err = c.do(ctx, http.MethodPost, "api/sag/search", nil, body, true, &resp)
	if httpclient.IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, httpclient.Classify("sbsys.search", err)
	}

	out := make([]records.Case, 0, len(resp.Results))
	for _, cj := range resp.Results {
		out = append(out, cj.record())
	}
	slices.SortStableFunc(out, func(a, b records.Case) int {
		if n := b.Created.Compare(a.Created); n != 0 {
			return n
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// SearchActiveCases is SearchCases restricted to open cases.
func (c *Client) SearchActiveCases(ctx context.Context, personID string) ([]records.Case, error) {
	all, err := c.SearchCases(ctx, personID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, cs := range all {
		if cs.Active() {
			active = append(active, cs)
		}
	}
	return active, nil
}

// FetchSubProcesses lists a case's sub-processes. An unknown case has none.
func (c *Client) FetchSubProcesses(ctx context.Context, caseID int64) ([]records.SubProcess, error) {
	var resp []subProcessJSON
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("api/sag/%d/delforloeb", caseID), nil, nil, true, &resp)
	if httpclient.IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, httpclient.Classify("sbsys.delforloeb", err)
	}
	out := make([]records.SubProcess, 0, len(resp))
	for _, sp := range resp {
		out = append(out, records.SubProcess{ID: sp.ID, Title: sp.Titel})
	}
	return out, nil
}

// FetchSubProcessDocuments lists the documents filed under one
// sub-process of a case.
func (c *Client) FetchSubProcessDocuments(ctx context.Context, caseID, subProcessID int64) ([]records.Document, error) {
	var resp []documentJSON
	q := url.Values{"delforloebId": {strconv.FormatInt(subProcessID, 10)}}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("api/sag/%d/dokumenter", caseID), q, nil, true, &resp)
	if httpclient.IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, httpclient.Classify("sbsys.dokumenter", err)
	}
	var out []records.Document
	for _, d := range resp {
		if d.DelforloebID != 0 && d.DelforloebID != subProcessID {
			continue
		}
		out = append(out, records.Document{
			ID:           d.ID,
			Name:         d.Navn,
			SubProcessID: subProcessID,
			Registered:   d.Registreret,
		})
	}
	return out, nil
}
