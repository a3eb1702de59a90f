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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/personalesag/internal/fault"
	"github.com/cardinalhq/personalesag/internal/httpclient"
	"github.com/cardinalhq/personalesag/internal/orgindex"
)

var fixedNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

const employmentXML = `<?xml version="1.0" encoding="UTF-8"?>
<GetEmployment20111201 creationDateTime="2025-03-14T09:00:00">
  <Person>
    <PersonCivilRegistrationIdentifier>0101701234</PersonCivilRegistrationIdentifier>
    <Employment>
      <EmploymentIdentifier>00007</EmploymentIdentifier>
      <EmploymentDepartment changedAtDate="2024-01-01">
        <DepartmentIdentifier>OTHER</DepartmentIdentifier>
      </EmploymentDepartment>
    </Employment>
    <Employment>
      <EmploymentIdentifier>00042</EmploymentIdentifier>
      <EmploymentDepartment changedAtDate="2024-01-01">
        <ActivationDate>2024-01-01</ActivationDate>
        <DepartmentIdentifier> D100 </DepartmentIdentifier>
      </EmploymentDepartment>
    </Employment>
  </Person>
</GetEmployment20111201>`

const faultXML = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <soap:Fault>
      <faultcode>soap:Server</faultcode>
      <faultstring>Person not found</faultstring>
    </soap:Fault>
  </soap:Body>
</soap:Envelope>`

// Organization: L3 (NY3) > L2 (NY2) > {D100, D200}; D300 directly under L3.
const organizationXML = `<?xml version="1.0" encoding="UTF-8"?>
<GetOrganization20111201>
  <Organization>
    <DepartmentReference>
      <DepartmentIdentifier>D100</DepartmentIdentifier>
      <DepartmentLevelIdentifier>Afdelings-niveau</DepartmentLevelIdentifier>
      <DepartmentReference>
        <DepartmentIdentifier>L2</DepartmentIdentifier>
        <DepartmentLevelIdentifier>NY2-niveau</DepartmentLevelIdentifier>
        <DepartmentReference>
          <DepartmentIdentifier>L3</DepartmentIdentifier>
          <DepartmentLevelIdentifier>NY3-niveau</DepartmentLevelIdentifier>
        </DepartmentReference>
      </DepartmentReference>
    </DepartmentReference>
    <DepartmentReference>
      <DepartmentIdentifier>D200</DepartmentIdentifier>
      <DepartmentLevelIdentifier>Afdelings-niveau</DepartmentLevelIdentifier>
      <DepartmentReference>
        <DepartmentIdentifier>L2</DepartmentIdentifier>
        <DepartmentLevelIdentifier>NY2-niveau</DepartmentLevelIdentifier>
        <DepartmentReference>
          <DepartmentIdentifier>L3</DepartmentIdentifier>
          <DepartmentLevelIdentifier>NY3-niveau</DepartmentLevelIdentifier>
        </DepartmentReference>
      </DepartmentReference>
    </DepartmentReference>
    <DepartmentReference>
      <DepartmentIdentifier>D300</DepartmentIdentifier>
      <DepartmentReference>
        <DepartmentIdentifier>L3</DepartmentIdentifier>
        <DepartmentLevelIdentifier>NY3-niveau</DepartmentLevelIdentifier>
      </DepartmentReference>
    </DepartmentReference>
  </Organization>
</GetOrganization20111201>`

const departmentXML = `<?xml version="1.0" encoding="UTF-8"?>
<GetDepartment20080201>
  <Department>
    <DepartmentIdentifier>L3</DepartmentIdentifier>
    <DepartmentLevelIdentifier>NY3-niveau</DepartmentLevelIdentifier>
    <DepartmentName>Sundhed og Omsorg</DepartmentName>
  </Department>
  <Department>
    <DepartmentIdentifier>L2</DepartmentIdentifier>
    <DepartmentLevelIdentifier>NY2-niveau</DepartmentLevelIdentifier>
    <DepartmentName>Hjemmeplejen</DepartmentName>
  </Department>
  <Department>
    <DepartmentIdentifier>D100</DepartmentIdentifier>
    <DepartmentLevelIdentifier>Afdelings-niveau</DepartmentLevelIdentifier>
    <DepartmentName>Hjemmepleje Nord</DepartmentName>
  </Department>
  <Department>
    <DepartmentIdentifier>D200</DepartmentIdentifier>
    <DepartmentLevelIdentifier>Afdelings-niveau</DepartmentLevelIdentifier>
    <DepartmentName>Hjemmepleje Syd</DepartmentName>
  </Department>
  <Department>
    <DepartmentIdentifier>D300</DepartmentIdentifier>
    <DepartmentLevelIdentifier>Afdelings-niveau</DepartmentLevelIdentifier>
    <DepartmentName>Visitation</DepartmentName>
  </Department>
</GetDepartment20080201>`

const institutionXML = `<?xml version="1.0" encoding="UTF-8"?>
<GetInstitution20080201>
  <Region>
    <RegionIdentifier>9R</RegionIdentifier>
    <Institution>
      <InstitutionIdentifier>XY</InstitutionIdentifier>
      <InstitutionName>Kommune</InstitutionName>
    </Institution>
    <Institution>
      <InstitutionIdentifier></InstitutionIdentifier>
      <InstitutionName>Broken</InstitutionName>
    </Institution>
  </Region>
</GetInstitution20080201>`

type route struct {
	status int
	body   string
}

func newTestServer(t *testing.T, routes map[string]route, seen map[string]*http.Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "svc" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if seen != nil {
			seen[r.URL.Path] = r
		}
		rt, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if rt.status != 0 {
			w.WriteHeader(rt.status)
		}
		_, _ = w.Write([]byte(rt.body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: srv.URL + "/sd", Username: "svc", Password: "secret", Timeout: time.Second},
		WithClock(func() time.Time { return fixedNow }),
		WithHTTPOptions(httpclient.WithMaxTries(2), httpclient.WithInitialInterval(time.Millisecond)))
	require.NoError(t, err)
	return c
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, 0, ParseLevel("Afdelings-niveau"))
	assert.Equal(t, 3, ParseLevel("NY3-niveau"))
	assert.Equal(t, 6, ParseLevel(" ny6-niveau "))
	assert.Equal(t, UnknownLevel, ParseLevel(""))
	assert.Equal(t, UnknownLevel, ParseLevel("Top"))
}

func TestGetEmployment(t *testing.T) {
	seen := map[string]*http.Request{}
	srv := newTestServer(t, map[string]route{
		"/sd/GetEmployment20111201": {body: employmentXML},
	}, seen)
	c := newTestClient(t, srv)

	emp, err := c.GetEmployment(t.Context(), "0101701234", "00042", "XY", time.Time{})
	require.NoError(t, err)
	require.NotNil(t, emp)
	assert.Equal(t, "D100", emp.DepartmentCode)
	assert.Equal(t, "XY", emp.InstitutionID)
	assert.Equal(t, fixedNow, emp.AsOf)

	q := seen["/sd/GetEmployment20111201"].URL.Query()
	assert.Equal(t, "14.03.2025", q.Get("EffectiveDate"))
	assert.Equal(t, "true", q.Get("DepartmentIndicator"))
	assert.Equal(t, "0101701234", q.Get("PersonCivilRegistrationIdentifier"))
}

func TestGetEmployment_UnknownEmploymentIsAbsent(t *testing.T) {
	srv := newTestServer(t, map[string]route{
		"/sd/GetEmployment20111201": {body: employmentXML},
	}, nil)
	c := newTestClient(t, srv)

	emp, err := c.GetEmployment(t.Context(), "0101701234", "99999", "XY", fixedNow)
	require.NoError(t, err)
	assert.Nil(t, emp)
}

func TestGetEmployment_FaultIsAbsent(t *testing.T) {
	srv := newTestServer(t, map[string]route{
		"/sd/GetEmployment20111201": {status: http.StatusOK, body: faultXML},
	}, nil)
	c := newTestClient(t, srv)

	emp, err := c.GetEmployment(t.Context(), "0101701234", "00042", "XY", fixedNow)
	require.NoError(t, err)
	assert.Nil(t, emp)
}

func TestGetEmployment_ServerErrorIsTransient(t *testing.T) {
	srv := newTestServer(t, map[string]route{
		"/sd/GetEmployment20111201": {status: http.StatusServiceUnavailable},
	}, nil)
	c := newTestClient(t, srv)

	_, err := c.GetEmployment(t.Context(), "0101701234", "00042", "XY", fixedNow)
	require.Error(t, err)
	assert.True(t, fault.IsTransient(err))
}

func TestGetEmployment_GarbageIsTransient(t *testing.T) {
	srv := newTestServer(t, map[string]route{
		"/sd/GetEmployment20111201": {body: "<?xml version=\"1.0\"?><GetEmployment20111201><Person>"},
	}, nil)
	c := newTestClient(t, srv)

	_, err := c.GetEmployment(t.Context(), "0101701234", "00042", "XY", fixedNow)
	require.Error(t, err)
	assert.True(t, fault.IsTransient(err))
}

func TestFetchDepartmentTree(t *testing.T) {
	srv := newTestServer(t, map[string]route{
		"/sd/GetOrganization20111201": {body: organizationXML},
		"/sd/GetDepartment20080201":   {body: departmentXML},
	}, nil)
	c := newTestClient(t, srv)

	roots, err := c.FetchDepartmentTree(t.Context(), "XY")
	require.NoError(t, err)
	require.Len(t, roots, 1)

	l3 := roots[0]
	assert.Equal(t, "L3", l3.Code)
	assert.Equal(t, 3, l3.Level)
	assert.Equal(t, "Sundhed og Omsorg", l3.Name)
	require.Len(t, l3.Children, 2)
	assert.Equal(t, "L2", l3.Children[0].Code)
	assert.Equal(t, "D300", l3.Children[1].Code)
	assert.Equal(t, 0, l3.Children[1].Level, "level falls back to the department list")
	require.Len(t, l3.Children[0].Children, 2)

	ix, err := orgindex.Build(t.Context(), roots, []orgindex.Department{
		{Code: "D100", Name: "Hjemmepleje Nord"},
		{Code: "D200", Name: "Hjemmepleje Syd"},
		{Code: "L2", Name: "Hjemmeplejen"},
		{Code: "D300", Name: "Visitation"},
	})
	require.NoError(t, err)
	g, ok := ix.Group("L3")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"L2", "D100", "D200", "D300"}, g.Codes.ToSlice())
}

func TestAssembleTree_Loop(t *testing.T) {
	refs := []departmentReference{
		{ID: "A", Parents: []departmentReference{{ID: "B"}}},
		{ID: "B", Parents: []departmentReference{{ID: "A"}}},
	}
	_, err := assembleTree(refs, nil)
	assert.ErrorIs(t, err, orgindex.ErrCycle)

	_, err = assembleTree([]departmentReference{{ID: "A", Parents: []departmentReference{{ID: "A"}}}}, nil)
	assert.ErrorIs(t, err, orgindex.ErrCycle)
}

func TestIndexSource_Region(t *testing.T) {
	srv := newTestServer(t, map[string]route{
		"/sd/GetInstitution20080201":  {body: institutionXML},
		"/sd/GetOrganization20111201": {body: organizationXML},
		"/sd/GetDepartment20080201":   {body: departmentXML},
	}, nil)
	c := newTestClient(t, srv)

	src, err := NewIndexSource(c, "9R", nil)
	require.NoError(t, err)

	tree, err := src.FetchTree(t.Context())
	require.NoError(t, err)
	require.Len(t, tree, 1)

	deps, err := src.FetchDepartments(t.Context())
	require.NoError(t, err)
	assert.Len(t, deps, 5)

	cache := orgindex.NewCache(src)
	snap, err := cache.Ensure(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Index.Len())
}

func TestIndexSource_MissingOrganizationIsUnavailable(t *testing.T) {
	srv := newTestServer(t, map[string]route{
		"/sd/GetDepartment20080201": {body: departmentXML},
	}, nil)
	c := newTestClient(t, srv)

	src, err := NewIndexSource(c, "", []string{"XY"})
	require.NoError(t, err)

	tree, err := src.FetchTree(t.Context())
	require.NoError(t, err)
	assert.Nil(t, tree)

	_, err = orgindex.NewCache(src).Ensure(t.Context())
	assert.True(t, fault.IsUnavailable(err))
}

func TestNewIndexSource_RequiresScope(t *testing.T) {
	_, err := NewIndexSource(nil, "", nil)
	assert.Error(t, err)
}
