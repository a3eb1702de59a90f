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

package sdclient

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cardinalhq/personalesag/internal/logctx"
	"github.com/cardinalhq/personalesag/internal/records"
)

const opGetEmployment = "GetEmployment20111201"

type employmentResponse struct {
	Persons []struct {
		PersonID    string `xml:"PersonCivilRegistrationIdentifier"`
		Employments []struct {
			EmploymentID string `xml:"EmploymentIdentifier"`
			Department   *struct {
				DepartmentID string `xml:"DepartmentIdentifier"`
			} `xml:"EmploymentDepartment"`
		} `xml:"Employment"`
	} `xml:"Person"`
}

// GetEmployment returns the employment as of asOf, or nil when the HR
// registry does not know it.
func (c *Client) GetEmployment(ctx context.Context, personID, employmentID, institutionID string, asOf time.Time) (*records.Employment, error) {
	if asOf.IsZero() {
		asOf = c.now()
	}
	params := url.Values{
		"InstitutionIdentifier":             {institutionID},
		"EmploymentStatusIndicator":         {"true"},
		"PersonCivilRegistrationIdentifier": {personID},
		"EmploymentIdentifier":              {employmentID},
		"DepartmentIdentifier":              {""},
		"ProfessionIndicator":               {"false"},
		"DepartmentIndicator":               {"true"},
		"WorkingTimeIndicator":              {"false"},
		"SalaryCodeGroupIndicator":          {"false"},
		"SalaryAgreementIndicator":          {"false"},
		"StatusActiveIndicator":             {"true"},
		"StatusPassiveIndicator":            {"true"},
		"submit":                            {"OK"},
		"EffectiveDate":                     {formatDate(asOf)},
	}

	var resp employmentResponse
	found, err := c.call(ctx, opGetEmployment, params, &resp)
	if err != nil || !found {
		return nil, err
	}

	for _, p := range resp.Persons {
		for _, e := range p.Employments {
			if strings.TrimSpace(e.EmploymentID) != employmentID {
				continue
			}
			emp := &records.Employment{
				PersonID:      personID,
				EmploymentID:  employmentID,
				InstitutionID: institutionID,
				AsOf:          asOf,
			}
			if e.Department != nil {
				emp.DepartmentCode = strings.TrimSpace(e.Department.DepartmentID)
			}
			return emp, nil
		}
	}

	logctx.FromContext(ctx).Info("Employment not in HR response",
		slog.String("employmentID", employmentID),
		slog.String("institutionID", institutionID))
	return nil, nil
}
