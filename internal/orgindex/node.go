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
	"errors"
	"fmt"
	"strings"
)

// AnchorLevel is the organizational level whose nodes group the
// departments beneath them.
const AnchorLevel = 3

// Node is one department in the HR organization tree. Level follows the HR
// system's numbering: a level-3 unit sits above level 2, 1 and 0 units.
type Node struct {
	Code     string
	Name     string
	Level    int
	Children []*Node
}

// Department is a code and display name pair from the flat department list.
type Department struct {
	Code string
	Name string
}

var ErrCycle = errors.New("organization tree is not a tree")

// retiredMarkers are lower-case substrings the HR system puts in the names
// of departments that are kept for history but no longer used.
var retiredMarkers = []string{
	"udgået",
	"udgaaet",
	"ikke i brug",
	"nedlagt",
	"deprecated",
	"not in use",
}

// Retired reports whether a department name marks the department as out
// of use. An empty name counts as retired.
func Retired(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return true
	}
	for _, m := range retiredMarkers {
		if strings.Contains(n, m) {
			return true
		}
	}
	return false
}

// Validate walks the forest iteratively and returns ErrCycle if any node is
// reachable more than once, which covers both cycles and shared subtrees.
func Validate(roots []*Node) error {
	seen := make(map[*Node]struct{})
	stack := make([]*Node, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		if _, ok := seen[n]; ok {
			return fmt.Errorf("%w: department %q reached twice", ErrCycle, n.Code)
		}
		seen[n] = struct{}{}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return nil
}

// Flatten returns every node of the forest in depth-first order as a flat
// department list. The forest must already be validated.
func Flatten(roots []*Node) []Department {
	var out []Department
	stack := make([]*Node, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		out = append(out, Department{Code: n.Code, Name: n.Name})
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return out
}
