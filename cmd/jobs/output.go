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

package jobs

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/personalesag/jobdb"
)

func printJobs(w io.Writer, format string, jobs []jobdb.JobSummary) error {
	switch format {
	case "yaml":
		if jobs == nil {
			jobs = []jobdb.JobSummary{}
		}
		return printYAML(w, jobs)
	case "table", "":
		return printTable(w, jobs)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func printTable(w io.Writer, jobs []jobdb.JobSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tSTATUS\tSUBJECT\tEMPLOYMENT\tINSTITUTION\tFILE\tSIZE\tUPDATED\tMESSAGE"); err != nil {
		return err
	}
	for _, j := range jobs {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			j.ID, j.Status, maskCPR(j.SubjectID), j.EmploymentID, j.InstitutionID,
			j.FileName, j.FileSize, j.UpdatedAt.UTC().Format(time.RFC3339), j.Message); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// maskCPR hides the serial part of a CPR number in table output.
func maskCPR(s string) string {
	if len(s) != 10 {
		return s
	}
	return s[:6] + "-XXXX"
}
