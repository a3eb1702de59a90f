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

// Package archive copies finished jobs to S3 before they are purged.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/personalesag/jobdb"
)

// Uploader is the part of the S3 upload manager the archiver uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type Archiver struct {
	uploader Uploader
	bucket   string
	prefix   string
	tracer   trace.Tracer
}

type s3Config struct {
	region      string
	roleARN     string
	sessionName string
	applyS3s    []func(*s3.Options)
}

// DefaultSessionName is the role session name used when none is given.
const DefaultSessionName = "personalesag-archive"

type Option func(*s3Config)

func WithRegion(region string) Option {
	return func(c *s3Config) {
		c.region = region
	}
}

// WithRole assumes roleARN through STS for every archive upload.
func WithRole(roleARN, sessionName string) Option {
	return func(c *s3Config) {
		c.roleARN = roleARN
		c.sessionName = sessionName
	}
}

// WithEndpoint forces a custom S3 endpoint (eg MinIO, Ceph).
func WithEndpoint(url string) Option {
	return func(c *s3Config) {
		c.applyS3s = append(c.applyS3s, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(url)
		})
	}
}

// WithPathStyle uses path-style addressing instead of virtual-host.
func WithPathStyle() Option {
	return func(c *s3Config) {
		c.applyS3s = append(c.applyS3s, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
}

// New loads the default AWS configuration and returns an archiver writing
// under prefix in bucket.
func New(ctx context.Context, bucket, prefix string, opts ...Option) (*Archiver, error) {
	if bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	var sc s3Config
	for _, opt := range opts {
		opt(&sc)
	}

	cfg, err := loadConfig(ctx, sc)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, sc.applyS3s...)
	return NewWithUploader(manager.NewUploader(client), bucket, prefix), nil
}

func loadConfig(ctx context.Context, sc s3Config) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error
	if sc.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(sc.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	if sc.roleARN != "" {
		sessionName := sc.sessionName
		if sessionName == "" {
			sessionName = DefaultSessionName
		}
		p := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), sc.roleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = sessionName
		})
		cfg.Credentials = aws.NewCredentialsCache(p)
	}
	return cfg, nil
}

// NewWithUploader builds an archiver around an existing uploader.
func NewWithUploader(u Uploader, bucket, prefix string) *Archiver {
	return &Archiver{
		uploader: u,
		bucket:   bucket,
		prefix:   prefix,
		tracer:   otel.Tracer("github.com/cardinalhq/personalesag/internal/archive"),
	}
}

// Metadata is written next to the payload.
type Metadata struct {
	ID            string    `json:"id"`
	SubjectID     string    `json:"subject_id"`
	EmploymentID  string    `json:"employment_id"`
	InstitutionID string    `json:"institution_id"`
	FileName      string    `json:"file_name"`
	FileMimetype  string    `json:"file_mimetype"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// KeyPrefix is the object key prefix for a job, partitioned by the day it
// finished.
func (a *Archiver) KeyPrefix(job *jobdb.UploadJob) string {
	day := job.UpdatedAt.UTC().Format("2006/01/02")
	return path.Join(a.prefix, day, job.ID.String())
}

// Archive uploads the job's payload and a metadata document.
func (a *Archiver) Archive(ctx context.Context, job *jobdb.UploadJob) error {
	keyPrefix := a.KeyPrefix(job)
	ctx, span := a.tracer.Start(ctx, "archive.Archive",
		trace.WithAttributes(
			attribute.String("bucketID", a.bucket),
			attribute.String("jobID", job.ID.String()),
		),
	)
	defer span.End()

	meta, err := json.Marshal(Metadata{
		ID:            job.ID.String(),
		SubjectID:     job.SubjectID,
		EmploymentID:  job.EmploymentID,
		InstitutionID: job.InstitutionID,
		FileName:      job.FileName,
		FileMimetype:  job.FileMimetype,
		Status:        job.Status.String(),
		Message:       job.Message,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	contentType := job.FileMimetype
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.put(ctx, path.Join(keyPrefix, "payload"), job.FileData, contentType); err != nil {
		span.RecordError(err)
		return err
	}
	if err := a.put(ctx, path.Join(keyPrefix, "metadata.json"), meta, "application/json"); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (a *Archiver) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"writer": "personalesag",
		},
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}

// Retryable reports whether an archive error came from the S3 service side
// or the network, as opposed to a request S3 will keep refusing.
func Retryable(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorFault() != smithy.FaultClient
	}
	return true
}
