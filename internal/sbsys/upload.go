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

package sbsys

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/cardinalhq/personalesag/internal/httpclient"
	"github.com/cardinalhq/personalesag/internal/journal"
)

var _ journal.Uploader = (*Client)(nil)

type journalizeMetadata struct {
	SagID                int64  `json:"SagID"`
	DelforloebID         int64  `json:"DelforloebID"`
	OmfattetAfAktindsigt bool   `json:"OmfattetAfAktindsigt"`
	DokumentNavn         string `json:"DokumentNavn"`
	DokumentArt          string `json:"DokumentArt"`
}

type journalizeResponse struct {
	ID int64 `json:"Id"`
}

func multipartBody(u journal.Upload) (*requestBody, error) {
	meta, err := json.Marshal(journalizeMetadata{
		SagID:                u.CaseID,
		DelforloebID:         u.SubProcessID,
		OmfattetAfAktindsigt: true,
		DokumentNavn:         u.DocumentName,
		DokumentArt:          u.DocumentType,
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("json", string(meta)); err != nil {
		return nil, err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, u.File.Name))
	mt := u.File.MimeType
	if mt == "" {
		mt = "application/octet-stream"
	}
	h.Set("Content-Type", mt)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(u.File.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &requestBody{contentType: w.FormDataContentType(), data: buf.Bytes()}, nil
}

// UploadDocument files the document under the sub-process. It is not
// retried. A 4xx answer other than 401, 408 or 429 is returned as
// journal.ErrRejected. An answer without a document id yields a nil
// confirmation.
func (c *Client) UploadDocument(ctx context.Context, u journal.Upload) (*journal.Confirmation, error) {
	body, err := multipartBody(u)
	if err != nil {
		return nil, fmt.Errorf("build upload body: %w", err)
	}

	var resp journalizeResponse
	err = c.do(ctx, http.MethodPost, fmt.Sprintf("api/dokument/journaliser/%d", u.SubProcessID), nil, body, false, &resp)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && !se.Retryable() && se.StatusCode != http.StatusUnauthorized {
			return nil, journal.ErrRejected{Status: se.StatusCode, Body: se.Body}
		}
		return nil, httpclient.Classify("sbsys.journaliser", err)
	}
	if resp.ID == 0 {
		return nil, nil
	}
	return &journal.Confirmation{DocumentID: resp.ID}, nil
}
