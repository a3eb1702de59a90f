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
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/cardinalhq/personalesag/internal/logctx"
	"github.com/cardinalhq/personalesag/internal/orgindex"
)

const (
	opGetOrganization = "GetOrganization20111201"
	opGetDepartment   = "GetDepartment20080201"
	opGetInstitution  = "GetInstitution20080201"
)

// UnknownLevel is assigned to departments whose level identifier is not
// recognized. It sits below every real level.
const UnknownLevel = -1

var levelPattern = regexp.MustCompile(`(?i)^NY(\d+)-niveau$`)

// ParseLevel converts the service's DepartmentLevelIdentifier to the
// numeric level used by the index: "NY<n>-niveau" is n and
// "Afdelings-niveau" is 0.
func ParseLevel(id string) int {
	id = strings.TrimSpace(id)
	if strings.EqualFold(id, "Afdelings-niveau") {
		return 0
	}
	if m := levelPattern.FindStringSubmatch(id); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return UnknownLevel
}

// Institution is an institution within a region.
type Institution struct {
	ID   string
	Name string
}

type departmentReference struct {
	ID      string                `xml:"DepartmentIdentifier"`
	Level   string                `xml:"DepartmentLevelIdentifier"`
	Parents []departmentReference `xml:"DepartmentReference"`
}

type organizationResponse struct {
	Organizations []struct {
		References []departmentReference `xml:"DepartmentReference"`
	} `xml:"Organization"`
}

type departmentResponse struct {
	Departments []struct {
		ID    string `xml:"DepartmentIdentifier"`
		Level string `xml:"DepartmentLevelIdentifier"`
		Name  string `xml:"DepartmentName"`
	} `xml:"Department"`
}

type institutionResponse struct {
	Regions []struct {
		Institutions []struct {
			ID   string `xml:"InstitutionIdentifier"`
			Name string `xml:"InstitutionName"`
		} `xml:"Institution"`
	} `xml:"Region"`
}

// FetchDepartments returns the institution's departments active today with
// their names. It returns nil when the service has none.
func (c *Client) FetchDepartments(ctx context.Context, institutionID string) ([]orgindex.Department, error) {
	deps, err := c.fetchDepartmentRecords(ctx, institutionID)
	if err != nil || deps == nil {
		return nil, err
	}
	out := make([]orgindex.Department, 0, len(deps))
	for _, d := range deps {
		out = append(out, orgindex.Department{Code: d.code, Name: d.name})
	}
	return out, nil
}

type departmentRecord struct {
	code  string
	name  string
	level int
}

func (c *Client) fetchDepartmentRecords(ctx context.Context, institutionID string) ([]departmentRecord, error) {
	today := formatDate(c.now())
	params := url.Values{
		"InstitutionIdentifier":   {institutionID},
		"ActivationDate":          {today},
		"DeactivationDate":        {today},
		"DepartmentNameIndicator": {"true"},
	}
	var resp departmentResponse
	found, err := c.call(ctx, opGetDepartment, params, &resp)
	if err != nil || !found || len(resp.Departments) == 0 {
		return nil, err
	}
	out := make([]departmentRecord, 0, len(resp.Departments))
	for _, d := range resp.Departments {
		code := strings.TrimSpace(d.ID)
		if code == "" {
			continue
		}
		out = append(out, departmentRecord{
			code:  code,
			name:  strings.TrimSpace(d.Name),
			level: ParseLevel(d.Level),
		})
	}
	return out, nil
}

// ListInstitutions returns the institutions of a region, or nil when the
// region is unknown.
func (c *Client) ListInstitutions(ctx context.Context, regionID string) ([]Institution, error) {
	var resp institutionResponse
	found, err := c.call(ctx, opGetInstitution, url.Values{"RegionIdentifier": {regionID}}, &resp)
	if err != nil || !found {
		return nil, err
	}
	var out []Institution
	for _, r := range resp.Regions {
		for _, inst := range r.Institutions {
			id := strings.TrimSpace(inst.ID)
			name := strings.TrimSpace(inst.Name)
			if id == "" || name == "" {
				logctx.FromContext(ctx).Warn("Skipping institution without identifier or name",
					slog.String("regionID", regionID))
				continue
			}
			out = append(out, Institution{ID: id, Name: name})
		}
	}
	return out, nil
}

// FetchDepartmentTree returns the institution's organization as a forest
// with names and levels filled in. It returns nil when the service has no
// organization for the institution.
func (c *Client) FetchDepartmentTree(ctx context.Context, institutionID string) ([]*orgindex.Node, error) {
	today := formatDate(c.now())
	params := url.Values{
		"InstitutionIdentifier": {institutionID},
		"ActivationDate":        {today},
		"DeactivationDate":      {today},
		"UUIDIndicator":         {"false"},
	}
	var resp organizationResponse
	found, err := c.call(ctx, opGetOrganization, params, &resp)
	if err != nil || !found {
		return nil, err
	}

	deps, err := c.fetchDepartmentRecords(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	if deps == nil {
		return nil, nil
	}

	var refs []departmentReference
	for _, o := range resp.Organizations {
		refs = append(refs, o.References...)
	}
	if len(refs) == 0 {
		return nil, nil
	}

	roots, err := assembleTree(refs, deps)
	if err != nil {
		return nil, fmt.Errorf("sd.%s: %w", opGetOrganization, err)
	}
	return roots, nil
}

// FetchInstitutionTreeForRegion returns the organization forests of every
// institution in the region, concatenated. It returns nil if the region or
// any of its institutions has no organization.
func (c *Client) FetchInstitutionTreeForRegion(ctx context.Context, regionID string) ([]*orgindex.Node, error) {
	insts, err := c.ListInstitutions(ctx, regionID)
	if err != nil || len(insts) == 0 {
		return nil, err
	}
	var forest []*orgindex.Node
	for _, inst := range insts {
		roots, err := c.FetchDepartmentTree(ctx, inst.ID)
		if err != nil {
			return nil, fmt.Errorf("institution %s: %w", inst.ID, err)
		}
		if roots == nil {
			logctx.FromContext(ctx).Warn("Institution has no organization",
				slog.String("regionID", regionID),
				slog.String("institutionID", inst.ID))
			return nil, nil
		}
		forest = append(forest, roots...)
	}
	return forest, nil
}

// assembleTree turns the service's leaf-to-root reference chains into a
// top-down forest. Each reference lists a department followed by its chain
// of parents. A department keeps the first parent it is given. Departments
// that cannot be reached from a root, which only happens when parent links
// loop, make the whole organization invalid.
func assembleTree(refs []departmentReference, deps []departmentRecord) ([]*orgindex.Node, error) {
	info := make(map[string]departmentRecord, len(deps))
	for _, d := range deps {
		info[d.code] = d
	}

	nodes := make(map[string]*orgindex.Node)
	parentOf := make(map[string]string)
	var order []string

	node := func(ref departmentReference) *orgindex.Node {
		code := strings.TrimSpace(ref.ID)
		if n, ok := nodes[code]; ok {
			return n
		}
		n := &orgindex.Node{Code: code, Level: ParseLevel(ref.Level)}
		if d, ok := info[code]; ok {
			n.Name = d.name
			if n.Level == UnknownLevel {
				n.Level = d.level
			}
		}
		nodes[code] = n
		order = append(order, code)
		return n
	}

	for _, ref := range refs {
		cur := ref
		child := node(cur)
		for len(cur.Parents) > 0 {
			parentRef := cur.Parents[0]
			parent := node(parentRef)
			if parent.Code == child.Code {
				return nil, fmt.Errorf("%w: department %q is its own parent", orgindex.ErrCycle, child.Code)
			}
			if _, ok := parentOf[child.Code]; !ok {
				parentOf[child.Code] = parent.Code
			}
			child = parent
			cur = parentRef
		}
	}

	for _, code := range order {
		if p, ok := parentOf[code]; ok {
			nodes[p].Children = append(nodes[p].Children, nodes[code])
		}
	}

	var roots []*orgindex.Node
	for _, code := range order {
		if _, ok := parentOf[code]; !ok {
			roots = append(roots, nodes[code])
		}
	}

	if err := orgindex.Validate(roots); err != nil {
		return nil, err
	}
	if reached := len(orgindex.Flatten(roots)); reached != len(nodes) {
		return nil, fmt.Errorf("%w: %d of %d departments unreachable from a root", orgindex.ErrCycle, len(nodes)-reached, len(nodes))
	}
	return roots, nil
}
