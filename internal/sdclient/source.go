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
	"errors"
	"fmt"

	"github.com/cardinalhq/personalesag/internal/orgindex"
)

// IndexSource feeds the department index from the HR registry. With a
// region set, the whole region's organization is used and its institutions
// are discovered from the service; otherwise the listed institutions are.
type IndexSource struct {
	client       *Client
	region       string
	institutions []string
}

func NewIndexSource(client *Client, region string, institutions []string) (*IndexSource, error) {
	if region == "" && len(institutions) == 0 {
		return nil, errors.New("a region or at least one institution is required")
	}
	return &IndexSource{client: client, region: region, institutions: institutions}, nil
}

var _ orgindex.Source = (*IndexSource)(nil)

func (s *IndexSource) FetchTree(ctx context.Context) ([]*orgindex.Node, error) {
	if s.region != "" {
		return s.client.FetchInstitutionTreeForRegion(ctx, s.region)
	}
	var forest []*orgindex.Node
	for _, inst := range s.institutions {
		roots, err := s.client.FetchDepartmentTree(ctx, inst)
		if err != nil {
			return nil, fmt.Errorf("institution %s: %w", inst, err)
		}
		if roots == nil {
			return nil, nil
		}
		forest = append(forest, roots...)
	}
	return forest, nil
}

func (s *IndexSource) FetchDepartments(ctx context.Context) ([]orgindex.Department, error) {
	ids, err := s.institutionIDs(ctx)
	if err != nil || ids == nil {
		return nil, err
	}
	var all []orgindex.Department
	for _, inst := range ids {
		deps, err := s.client.FetchDepartments(ctx, inst)
		if err != nil {
			return nil, fmt.Errorf("institution %s: %w", inst, err)
		}
		if deps == nil {
			return nil, nil
		}
		all = append(all, deps...)
	}
	return all, nil
}

func (s *IndexSource) institutionIDs(ctx context.Context) ([]string, error) {
	if s.region == "" {
		return s.institutions, nil
	}
	insts, err := s.client.ListInstitutions(ctx, s.region)
	if err != nil || len(insts) == 0 {
		return nil, err
	}
	ids := make([]string, 0, len(insts))
	for _, inst := range insts {
		ids = append(ids, inst.ID)
	}
	return ids, nil
}
