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

package orgindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testForest() []*Node {
	return []*Node{
		{
			Code: "KOM", Name: "Kommunen", Level: 6,
			Children: []*Node{
				{
					Code: "L3-07", Name: "Center for Sundhed", Level: 3,
					Children: []*Node{
						{
							Code: "67890", Name: "Hjemmeplejen Nord", Level: 2,
							Children: []*Node{
								{Code: "67891", Name: "Hjemmeplejen Nord Team 1", Level: 0},
							},
						},
						{
							Code: "11111", Name: "Gammel afdeling (UDGÅET)", Level: 1,
							Children: []*Node{
								{Code: "11112", Name: "Team Vest", Level: 0},
							},
						},
						{Code: "22222", Name: "", Level: 0},
					},
				},
				{
					Code: "L3-08", Name: "Center for Skole", Level: 3,
					Children: []*Node{
						{Code: "33333", Name: "Skole Øst", Level: 2},
					},
				},
				{
					Code: "STAB", Name: "Stab", Level: 4,
					Children: []*Node{
						{
							Code: "L3-09", Name: "Center ikke i brug", Level: 3,
							Children: []*Node{
								{Code: "44444", Name: "Forældreløs", Level: 2},
							},
						},
					},
				},
			},
		},
	}
}

func testDepartments() []Department {
	return []Department{
		{Code: "67890", Name: "Hjemmeplejen Nord"},
		{Code: "11112", Name: "Team Vest"},
		{Code: "33333", Name: "Skole Øst"},
		{Code: "44444", Name: "Forældreløs"},
	}
}

func TestRetired(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"Hjemmeplejen", false},
		{"Hjemmeplejen (udgået)", true},
		{"UDGÅET Hjemmeplejen", true},
		{"Udgaaet", true},
		{"Ikke i brug - gl. kontor", true},
		{"Nedlagt 2019", true},
		{"Deprecated unit", true},
		{"Not In Use", true},
		{"Brugerservice", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retired(tt.name))
		})
	}
}

func TestBuild(t *testing.T) {
	ix, err := Build(t.Context(), testForest(), testDepartments())
	require.NoError(t, err)

	assert.Equal(t, []string{"L3-07", "L3-08"}, ix.Keys())

	g, ok := ix.Group("L3-07")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"67890", "67891", "11112"}, g.Codes.ToSlice())
	// 67891 has no name in the department list: kept as a code, absent from names.
	assert.ElementsMatch(t, []string{"Hjemmeplejen Nord", "Team Vest"}, g.Names.ToSlice())

	g, ok = ix.Group("L3-08")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"33333"}, g.Codes.ToSlice())
	assert.ElementsMatch(t, []string{"Skole Øst"}, g.Names.ToSlice())

	_, ok = ix.Group("L3-09")
	assert.False(t, ok, "retired level-3 unit must not anchor a group")
}

func TestBuildRetiredNeverContribute(t *testing.T) {
	ix, err := Build(t.Context(), testForest(), append(testDepartments(), Department{Code: "11111", Name: "Gammel afdeling (UDGÅET)"}))
	require.NoError(t, err)

	for _, k := range ix.Keys() {
		g, _ := ix.Group(k)
		assert.False(t, g.Codes.Contains("11111"))
		assert.False(t, g.Codes.Contains("22222"))
		assert.False(t, g.Codes.Contains("44444"))
		assert.False(t, g.Names.Contains("Gammel afdeling (UDGÅET)"))
	}
}

func TestBuildEachCodeInOneGroup(t *testing.T) {
	ix, err := Build(t.Context(), testForest(), testDepartments())
	require.NoError(t, err)

	owners := map[string][]string{}
	for _, k := range ix.Keys() {
		g, _ := ix.Group(k)
		for _, c := range g.Codes.ToSlice() {
			owners[c] = append(owners[c], k)
		}
	}
	for code, keys := range owners {
		assert.Len(t, keys, 1, "code %s in more than one group", code)
	}
}

func TestBuildNearestAnchorWins(t *testing.T) {
	forest := []*Node{
		{
			Code: "OUTER", Name: "Ydre", Level: 3,
			Children: []*Node{
				{
					Code: "INNER", Name: "Indre", Level: 3,
					Children: []*Node{{Code: "D1", Name: "Afdeling", Level: 0}},
				},
				{Code: "D2", Name: "Anden afdeling", Level: 1},
			},
		},
	}
	ix, err := Build(t.Context(), forest, nil)
	require.NoError(t, err)

	inner, ok := ix.Group("INNER")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"D1"}, inner.Codes.ToSlice())

	outer, ok := ix.Group("OUTER")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"D2"}, outer.Codes.ToSlice())
	assert.Equal(t, 0, outer.Names.Cardinality())
}

func TestBuildDetectsCycle(t *testing.T) {
	a := &Node{Code: "A", Name: "A", Level: 3}
	b := &Node{Code: "B", Name: "B", Level: 2}
	a.Children = []*Node{b}
	b.Children = []*Node{a}

	_, err := Build(t.Context(), []*Node{a}, nil)
	assert.ErrorIs(t, err, ErrCycle)
	assert.ErrorIs(t, Validate([]*Node{a}), ErrCycle)
}

func TestBuildSharedSubtreeRejected(t *testing.T) {
	shared := &Node{Code: "S", Name: "Delt", Level: 0}
	forest := []*Node{
		{Code: "A", Name: "A", Level: 3, Children: []*Node{shared}},
		{Code: "B", Name: "B", Level: 3, Children: []*Node{shared}},
	}
	_, err := Build(t.Context(), forest, nil)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestBuildDeepTree(t *testing.T) {
	root := &Node{Code: "L3", Name: "Top", Level: 3}
	cur := root
	const depth = 200_000
	for i := range depth {
		child := &Node{Code: fmt.Sprintf("D%d", i), Name: fmt.Sprintf("Afdeling %d", i), Level: 0}
		cur.Children = []*Node{child}
		cur = child
	}

	ix, err := Build(t.Context(), []*Node{root}, nil)
	require.NoError(t, err)
	g, ok := ix.Group("L3")
	require.True(t, ok)
	assert.Equal(t, depth, g.Codes.Cardinality())
	assert.NoError(t, Validate([]*Node{root}))
}

func TestIndexLookup(t *testing.T) {
	ix, err := Build(t.Context(), testForest(), testDepartments())
	require.NoError(t, err)

	key, ok := ix.Lookup("67890", "Team Vest")
	assert.True(t, ok)
	assert.Equal(t, "L3-07", key)

	_, ok = ix.Lookup("33333", "Team Vest")
	assert.False(t, ok, "code and name must be in the same group")

	_, ok = ix.Lookup("67890", "team vest")
	assert.False(t, ok, "names are case-sensitive")
}

func TestFlatten(t *testing.T) {
	deps := Flatten(testForest())
	require.NotEmpty(t, deps)
	assert.Equal(t, Department{Code: "KOM", Name: "Kommunen"}, deps[0])
	assert.Equal(t, Department{Code: "L3-07", Name: "Center for Sundhed"}, deps[1])
	assert.Len(t, deps, 12)
}
