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

package jobdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const uploadJobColumns = `id, subject_id, employment_id, institution_id, file_data, file_name, file_mimetype, status, message, created_at, updated_at`

const summaryColumns = `id, subject_id, employment_id, institution_id, file_name, file_mimetype, octet_length(file_data)::bigint, status, message, created_at, updated_at`

func scanUploadJob(row pgx.Row) (UploadJob, error) {
	var i UploadJob
	var status int16
	err := row.Scan(
		&i.ID,
		&i.SubjectID,
		&i.EmploymentID,
		&i.InstitutionID,
		&i.FileData,
		&i.FileName,
		&i.FileMimetype,
		&status,
		&i.Message,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	i.Status = Status(status)
	return i, err
}

func scanJobSummary(row pgx.Row) (JobSummary, error) {
	var i JobSummary
	var status int16
	err := row.Scan(
		&i.ID,
		&i.SubjectID,
		&i.EmploymentID,
		&i.InstitutionID,
		&i.FileName,
		&i.FileMimetype,
		&i.FileSize,
		&status,
		&i.Message,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	i.Status = Status(status)
	return i, err
}

const insertUploadJob = `-- name: InsertUploadJob :one
INSERT INTO upload_job (id, subject_id, employment_id, institution_id, file_data, file_name, file_mimetype, status, message)
VALUES ($1, $2, $3, $4, $5, $6, $7, 2, '')
RETURNING ` + uploadJobColumns

func (q *Queries) InsertUploadJob(ctx context.Context, arg InsertJobParams) (UploadJob, error) {
	row := q.db.QueryRow(ctx, insertUploadJob,
		arg.ID,
		arg.SubjectID,
		arg.EmploymentID,
		arg.InstitutionID,
		arg.FileData,
		arg.FileName,
		arg.FileMimetype,
	)
	return scanUploadJob(row)
}

const getUploadJob = `-- name: GetUploadJob :one
SELECT ` + uploadJobColumns + `
FROM upload_job
WHERE id = $1`

func (q *Queries) GetUploadJob(ctx context.Context, id uuid.UUID) (UploadJob, error) {
	return scanUploadJob(q.db.QueryRow(ctx, getUploadJob, id))
}

const selectNextReceived = `-- name: SelectNextReceived :one
SELECT ` + uploadJobColumns + `
FROM upload_job
WHERE status = 2
ORDER BY updated_at, created_at, id
LIMIT 1
FOR UPDATE SKIP LOCKED`

// SelectNextReceived locks the oldest RECEIVED job. Rows locked by other
// transactions are skipped. Must run inside a transaction.
func (q *Queries) SelectNextReceived(ctx context.Context) (UploadJob, error) {
	return scanUploadJob(q.db.QueryRow(ctx, selectNextReceived))
}

const lockUploadJobStatus = `-- name: LockUploadJobStatus :one
SELECT status
FROM upload_job
WHERE id = $1
FOR UPDATE`

func (q *Queries) LockUploadJobStatus(ctx context.Context, id uuid.UUID) (Status, error) {
	var status int16
	err := q.db.QueryRow(ctx, lockUploadJobStatus, id).Scan(&status)
	return Status(status), err
}

const setUploadJobStatus = `-- name: SetUploadJobStatus :one
UPDATE upload_job
SET status = $2, message = $3, updated_at = now()
WHERE id = $1
RETURNING updated_at`

type SetStatusParams struct {
	ID      uuid.UUID
	Status  Status
	Message string
}

func (q *Queries) SetUploadJobStatus(ctx context.Context, arg SetStatusParams) (time.Time, error) {
	var updatedAt time.Time
	err := q.db.QueryRow(ctx, setUploadJobStatus, arg.ID, int16(arg.Status), arg.Message).Scan(&updatedAt)
	return updatedAt, err
}

const listUploadJobs = `-- name: ListUploadJobs :many
SELECT ` + summaryColumns + `
FROM upload_job
ORDER BY updated_at, created_at, id`

func (q *Queries) ListUploadJobs(ctx context.Context) ([]JobSummary, error) {
	rows, err := q.db.Query(ctx, listUploadJobs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []JobSummary
	for rows.Next() {
		i, err := scanJobSummary(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listUploadJobsByStatus = `-- name: ListUploadJobsByStatus :many
SELECT ` + summaryColumns + `
FROM upload_job
WHERE status = $1
ORDER BY updated_at, created_at, id`

func (q *Queries) ListUploadJobsByStatus(ctx context.Context, status Status) ([]JobSummary, error) {
	rows, err := q.db.Query(ctx, listUploadJobsByStatus, int16(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []JobSummary
	for rows.Next() {
		i, err := scanJobSummary(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listUploadJobsBySubject = `-- name: ListUploadJobsBySubject :many
SELECT ` + summaryColumns + `
FROM upload_job
WHERE subject_id = $1
ORDER BY updated_at, created_at, id`

func (q *Queries) ListUploadJobsBySubject(ctx context.Context, subjectID string) ([]JobSummary, error) {
	rows, err := q.db.Query(ctx, listUploadJobsBySubject, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []JobSummary
	for rows.Next() {
		i, err := scanJobSummary(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const requeueAllRetryable = `-- name: RequeueAllRetryable :execrows
UPDATE upload_job
SET status = 2, message = $1, updated_at = now()
WHERE status = 1`

func (q *Queries) RequeueAllRetryable(ctx context.Context, message string) (int64, error) {
	tag, err := q.db.Exec(ctx, requeueAllRetryable, message)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listTerminalBefore = `-- name: ListTerminalBefore :many
SELECT ` + uploadJobColumns + `
FROM upload_job
WHERE status IN (0, 4) AND updated_at < $1
ORDER BY updated_at, id
LIMIT $2`

type ListTerminalBeforeParams struct {
	Cutoff time.Time
	Limit  int32
}

func (q *Queries) ListTerminalBefore(ctx context.Context, arg ListTerminalBeforeParams) ([]UploadJob, error) {
	rows, err := q.db.Query(ctx, listTerminalBefore, arg.Cutoff, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UploadJob
	for rows.Next() {
		i, err := scanUploadJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteTerminalJobs = `-- name: DeleteTerminalJobs :execrows
DELETE FROM upload_job
WHERE id = ANY($1::uuid[]) AND status IN (0, 4)`

func (q *Queries) DeleteTerminalJobs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteTerminalJobs, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const countByStatus = `-- name: CountByStatus :many
SELECT status, count(*)
FROM upload_job
GROUP BY status`

func (q *Queries) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := q.db.Query(ctx, countByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Status]int64)
	for rows.Next() {
		var status int16
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}
