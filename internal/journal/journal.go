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

// Package journal files an uploaded document on a matched case.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cardinalhq/personalesag/internal/fault"
	"github.com/cardinalhq/personalesag/internal/logctx"
	"github.com/cardinalhq/personalesag/internal/records"
)

const (
	DefaultSubProcessTitle    = "Ansættelse"
	DefaultDocumentType       = "Indgående"
	DefaultDocumentNamePrefix = "Ansættelses Data"
)

const (
	msgNoSubProcess    = "no sub-process found for case"
	msgNoConfirmation  = "no upload confirmation"
	msgUploadRejected  = "upload rejected by case system"
	msgSubProcessFetch = "could not fetch sub-processes"
)

// Upload describes one document to file.
type Upload struct {
	CaseID       int64
	SubProcessID int64
	DocumentName string
	DocumentType string
	File         records.File
}

// Confirmation is what the case system returns for a filed document. A nil
// Confirmation with a nil error means the call returned nothing usable.
type Confirmation struct {
	DocumentID int64
}

// ErrRejected is returned by an Uploader when the case system refused the
// document for a reason retrying will not fix.
type ErrRejected struct {
	Status int
	Body   string
}

func (e ErrRejected) Error() string {
	return fmt.Sprintf("upload rejected with status %d: %s", e.Status, e.Body)
}

type Uploader interface {
	FetchSubProcesses(ctx context.Context, caseID int64) ([]records.SubProcess, error)
	UploadDocument(ctx context.Context, u Upload) (*Confirmation, error)
}

type Config struct {
	SubProcessTitle    string
	DocumentType       string
	DocumentNamePrefix string
	CallTimeout        time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubProcessTitle == "" {
		c.SubProcessTitle = DefaultSubProcessTitle
	}
	if c.DocumentType == "" {
		c.DocumentType = DefaultDocumentType
	}
	if c.DocumentNamePrefix == "" {
		c.DocumentNamePrefix = DefaultDocumentNamePrefix
	}
	return c
}

type Journalizer struct {
	uploader Uploader
	cfg      Config
	now      func() time.Time
}

func New(uploader Uploader, cfg Config) *Journalizer {
	return &Journalizer{uploader: uploader, cfg: cfg.withDefaults(), now: time.Now}
}

// DocumentName is the generated name a document gets on the case.
func (j *Journalizer) DocumentName() string {
	return fmt.Sprintf("%s %s", j.cfg.DocumentNamePrefix, j.now().Format(time.DateOnly))
}

// Journalize files the document under the case's employment sub-process.
// A case without that sub-process is a structural failure; a missing
// confirmation or a failing call is transient.
func (j *Journalizer) Journalize(ctx context.Context, c records.Case, file records.File) (*Confirmation, error) {
	ll := logctx.FromContext(ctx).With(slog.Int64("caseID", c.ID))

	callCtx, cancel := j.callContext(ctx)
	subs, err := j.uploader.FetchSubProcesses(callCtx, c.ID)
	cancel()
	if err != nil {
		return nil, &fault.Error{Kind: fault.KindTransient, Op: "journal.subprocesses", Msg: msgSubProcessFetch, Err: err}
	}

	matching := records.SubProcessesTitled(subs, j.cfg.SubProcessTitle)
	if len(matching) == 0 {
		ll.Warn("Case has no employment sub-process",
			slog.String("title", j.cfg.SubProcessTitle),
			slog.Int("subProcesses", len(subs)))
		return nil, fault.Structural("journal", msgNoSubProcess)
	}
	sp := matching[0]

	u := Upload{
		CaseID:       c.ID,
		SubProcessID: sp.ID,
		DocumentName: j.DocumentName(),
		DocumentType: j.cfg.DocumentType,
		File:         file,
	}

	callCtx, cancel = j.callContext(ctx)
	conf, err := j.uploader.UploadDocument(callCtx, u)
	cancel()
	if err != nil {
		var rej ErrRejected
		if errors.As(err, &rej) {
			return nil, &fault.Error{Kind: fault.KindStructural, Op: "journal.upload", Msg: msgUploadRejected, Err: rej}
		}
		return nil, fault.Transient("journal.upload", err)
	}
	if conf == nil {
		ll.Warn("Case system returned no confirmation for upload", slog.Int64("subProcessID", sp.ID))
		return nil, fault.Transientf("journal.upload", "%s", msgNoConfirmation)
	}

	ll.Info("Document journalized",
		slog.Int64("subProcessID", sp.ID),
		slog.Int64("documentID", conf.DocumentID),
		slog.String("documentName", u.DocumentName))
	return conf, nil
}

func (j *Journalizer) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if j.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, j.cfg.CallTimeout)
}
