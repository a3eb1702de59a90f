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

// Package jobs holds the operator commands for inspecting and feeding the
// upload job table.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/personalesag/jobdb"
)

// Store is the part of jobdb the commands use.
type Store interface {
	ListAll(ctx context.Context) ([]jobdb.JobSummary, error)
	ListUploadJobsByStatus(ctx context.Context, status jobdb.Status) ([]jobdb.JobSummary, error)
	ListUploadJobsBySubject(ctx context.Context, subjectID string) ([]jobdb.JobSummary, error)
	Get(ctx context.Context, id uuid.UUID) (*jobdb.UploadJob, error)
	Requeue(ctx context.Context, id uuid.UUID) error
	RequeueAllRetryable(ctx context.Context) (int64, error)
	Insert(ctx context.Context, arg jobdb.InsertJobParams) (*jobdb.UploadJob, error)
}

var _ Store = (*jobdb.Store)(nil)

type storeOpener func(ctx context.Context) (Store, func(), error)

func openJobDB(ctx context.Context) (Store, func(), error) {
	store, err := jobdb.OpenStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

const commandTimeout = 30 * time.Second

// GetJobsCmd provides the upload job commands.
func GetJobsCmd() *cobra.Command {
	return newJobsCmd(openJobDB, os.Stdout)
}

func newJobsCmd(open storeOpener, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect, requeue and enqueue upload jobs",
	}
	cmd.AddCommand(listCmd(open, out))
	cmd.AddCommand(getCmd(open, out))
	cmd.AddCommand(requeueCmd(open, out))
	cmd.AddCommand(enqueueCmd(open, out))
	return cmd
}

func withStore(open storeOpener, f func(ctx context.Context, store Store) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	store, closeFn, err := open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open jobdb: %w", err)
	}
	defer closeFn()
	return f(ctx, store)
}

func listCmd(open storeOpener, out io.Writer) *cobra.Command {
	var (
		output  string
		status  string
		subject string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List upload jobs without their payload",
		RunE: func(_ *cobra.Command, _ []string) error {
			if status != "" && subject != "" {
				return errors.New("--status and --subject cannot be combined")
			}
			return withStore(open, func(ctx context.Context, store Store) error {
				var (
					jobs []jobdb.JobSummary
					err  error
				)
				switch {
				case status != "":
					st, perr := jobdb.ParseStatus(status)
					if perr != nil {
						return perr
					}
					jobs, err = store.ListUploadJobsByStatus(ctx, st)
				case subject != "":
					jobs, err = store.ListUploadJobsBySubject(ctx, subject)
				default:
					jobs, err = store.ListAll(ctx)
				}
				if err != nil {
					return fmt.Errorf("failed to list jobs: %w", err)
				}
				return printJobs(out, output, jobs)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table or yaml)")
	cmd.Flags().StringVar(&status, "status", "", "Only jobs in this status")
	cmd.Flags().StringVar(&subject, "subject", "", "Only jobs for this CPR number")
	return cmd
}

func getCmd(open storeOpener, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one upload job",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}
			return withStore(open, func(ctx context.Context, store Store) error {
				job, err := store.Get(ctx, id)
				if err != nil {
					return err
				}
				return printYAML(out, job.Summary())
			})
		},
	}
}

func requeueCmd(open storeOpener, out io.Writer) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "requeue [id]",
		Short: "Move FAILED_TRY_AGAIN jobs back to RECEIVED",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("give either a job id or --all-retryable")
			}
			return withStore(open, func(ctx context.Context, store Store) error {
				if all {
					n, err := store.RequeueAllRetryable(ctx)
					if err != nil {
						return fmt.Errorf("failed to requeue jobs: %w", err)
					}
					_, err = fmt.Fprintf(out, "Requeued %d jobs\n", n)
					return err
				}
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid job id: %w", err)
				}
				if err := store.Requeue(ctx, id); err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "Requeued %s\n", id)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all-retryable", false, "Requeue every FAILED_TRY_AGAIN job")
	return cmd
}

func enqueueCmd(open storeOpener, out io.Writer) *cobra.Command {
	var (
		cpr         string
		employment  string
		institution string
		file        string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Add a PDF for a person's employment as a RECEIVED job",
		RunE: func(_ *cobra.Command, _ []string) error {
			subject, err := NormalizeCPR(cpr)
			if err != nil {
				return err
			}
			if employment == "" || institution == "" {
				return errors.New("--employment and --institution are required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			mimeType, err := detectPDF(data)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}

			return withStore(open, func(ctx context.Context, store Store) error {
				job, err := store.Insert(ctx, jobdb.InsertJobParams{
					SubjectID:     subject,
					EmploymentID:  employment,
					InstitutionID: institution,
					FileData:      data,
					FileName:      fileName(file),
					FileMimetype:  mimeType,
				})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, job.ID)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&cpr, "cpr", "", "CPR number of the person (DDMMYYXXXX or DDMMYY-XXXX)")
	cmd.Flags().StringVar(&employment, "employment", "", "Employment id")
	cmd.Flags().StringVar(&institution, "institution", "", "Institution id")
	cmd.Flags().StringVar(&file, "file", "", "PDF file to upload")
	_ = cmd.MarkFlagRequired("cpr")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
