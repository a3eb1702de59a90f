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
	"time"

	"github.com/google/uuid"
)

type UploadJob struct {
	ID            uuid.UUID `json:"id"`
	SubjectID     string    `json:"subject_id"`
	EmploymentID  string    `json:"employment_id"`
	InstitutionID string    `json:"institution_id"`
	FileData      []byte    `json:"-"`
	FileName      string    `json:"file_name"`
	FileMimetype  string    `json:"file_mimetype"`
	Status        Status    `json:"status"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// JobSummary is an UploadJob without its payload.
type JobSummary struct {
	ID            uuid.UUID `json:"id" yaml:"id"`
	SubjectID     string    `json:"subject_id" yaml:"subject_id"`
	EmploymentID  string    `json:"employment_id" yaml:"employment_id"`
	InstitutionID string    `json:"institution_id" yaml:"institution_id"`
	FileName      string    `json:"file_name" yaml:"file_name"`
	FileMimetype  string    `json:"file_mimetype" yaml:"file_mimetype"`
	FileSize      int64     `json:"file_size" yaml:"file_size"`
	Status        Status    `json:"status" yaml:"status"`
	Message       string    `json:"message" yaml:"message"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

type InsertJobParams struct {
	ID            uuid.UUID
	SubjectID     string
	EmploymentID  string
	InstitutionID string
	FileData      []byte
	FileName      string
	FileMimetype  string
}

// Summary drops the payload, keeping its size.
func (j UploadJob) Summary() JobSummary {
	return JobSummary{
		ID:            j.ID,
		SubjectID:     j.SubjectID,
		EmploymentID:  j.EmploymentID,
		InstitutionID: j.InstitutionID,
		FileName:      j.FileName,
		FileMimetype:  j.FileMimetype,
		FileSize:      int64(len(j.FileData)),
		Status:        j.Status,
		Message:       j.Message,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}
