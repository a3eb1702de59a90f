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

package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/personalesag/config"
	"github.com/cardinalhq/personalesag/internal/orgindex"
	"github.com/cardinalhq/personalesag/internal/sdclient"
)

func init() {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Department index diagnostics",
	}

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Fetch the organization tree, build the level-3 index and print it as YAML",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			return dumpIndex(ctx)
		},
	}

	indexCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(indexCmd)
}

type dumpedGroup struct {
	Key   string   `yaml:"key"`
	Codes []string `yaml:"codes"`
	Names []string `yaml:"names"`
}

type dumpedIndex struct {
	BuiltAt     time.Time     `yaml:"built_at"`
	Departments int           `yaml:"departments"`
	Groups      []dumpedGroup `yaml:"groups"`
}

func dumpIndex(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	hr, err := sdclient.New(cfg.HR.Client())
	if err != nil {
		return err
	}
	cache, err := newIndexCache(cfg, hr)
	if err != nil {
		return err
	}
	snap, err := cache.Rebuild(ctx)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(describeSnapshot(snap)); err != nil {
		return err
	}
	return enc.Close()
}

func describeSnapshot(snap *orgindex.Snapshot) dumpedIndex {
	out := dumpedIndex{
		BuiltAt:     snap.BuiltAt,
		Departments: len(snap.Departments),
	}
	for _, key := range snap.Index.Keys() {
		g, _ := snap.Index.Group(key)
		codes := g.Codes.ToSlice()
		names := g.Names.ToSlice()
		slices.Sort(codes)
		slices.Sort(names)
		out.Groups = append(out.Groups, dumpedGroup{Key: key, Codes: codes, Names: names})
	}
	return out
}
