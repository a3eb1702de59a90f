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
	"context"
	"fmt"
	"log/slog"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/personalesag/internal/logctx"
)

// Group is the set of departments aggregated under one level-3 unit.
type Group struct {
	Codes mapset.Set[string]
	Names mapset.Set[string]
}

// Index maps level-3 department codes to the departments beneath them.
// An Index is immutable once built.
type Index struct {
	groups map[string]*Group
	keys   []string
}

// Keys returns the level-3 codes in sorted order.
func (ix *Index) Keys() []string {
	return ix.keys
}

func (ix *Index) Group(key string) (*Group, bool) {
	g, ok := ix.groups[key]
	return g, ok
}

func (ix *Index) Len() int {
	return len(ix.groups)
}

// Lookup returns the first level-3 key, in sorted order, whose group
// contains both the department code and the display name.
func (ix *Index) Lookup(code, name string) (string, bool) {
	for _, k := range ix.keys {
		g := ix.groups[k]
		if g.Names.Contains(name) && g.Codes.Contains(code) {
			return k, true
		}
	}
	return "", false
}

type frame struct {
	node   *Node
	anchor string
}

// Build aggregates the forest into an Index. Traversal is a single
// depth-first pass over an explicit stack; each frame carries the code of
// its nearest level-3 ancestor. Names are resolved against departments;
// codes that cannot be resolved stay in Codes and are logged.
func Build(ctx context.Context, roots []*Node, departments []Department) (*Index, error) {
	ll := logctx.FromContext(ctx)

	groups := make(map[string]*Group)
	seen := make(map[*Node]struct{})

	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: roots[i]})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := f.node
		if n == nil {
			continue
		}
		if _, ok := seen[n]; ok {
			return nil, fmt.Errorf("%w: department %q reached twice", ErrCycle, n.Code)
		}
		seen[n] = struct{}{}

		anchor := f.anchor
		retired := Retired(n.Name)
		switch {
		case n.Level == AnchorLevel && !retired && n.Code != "":
			anchor = n.Code
			if _, ok := groups[anchor]; !ok {
				groups[anchor] = &Group{
					Codes: mapset.NewThreadUnsafeSet[string](),
					Names: mapset.NewThreadUnsafeSet[string](),
				}
			}
		case anchor != "" && n.Level < AnchorLevel && !retired && n.Code != "":
			groups[anchor].Codes.Add(n.Code)
		}

		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: n.Children[i], anchor: anchor})
		}
	}

	names := make(map[string]string, len(departments))
	for _, d := range departments {
		if d.Code != "" && d.Name != "" {
			names[d.Code] = d.Name
		}
	}

	keys := make([]string, 0, len(groups))
	for key, g := range groups {
		keys = append(keys, key)
		for _, code := range g.Codes.ToSlice() {
			name, ok := names[code]
			if !ok {
				ll.Warn("Department code has no name, keeping code only",
					slog.String("level3", key),
					slog.String("department", code))
				continue
			}
			g.Names.Add(name)
		}
	}
	slices.Sort(keys)

	return &Index{groups: groups, keys: keys}, nil
}
