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
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var ErrInvalidCPR = errors.New("cpr must be 10 digits, optionally as DDMMYY-XXXX")

// NormalizeCPR accepts DDMMYYXXXX or DDMMYY-XXXX and returns the ten digit
// form.
func NormalizeCPR(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) == 11 && s[6] == '-' {
		s = s[:6] + s[7:]
	}
	if len(s) != 10 {
		return "", ErrInvalidCPR
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", ErrInvalidCPR
		}
	}
	return s, nil
}

const pdfMimeType = "application/pdf"

func detectPDF(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	if !mt.Is(pdfMimeType) {
		return "", fmt.Errorf("only PDF files can be uploaded, got %s", mt.String())
	}
	return pdfMimeType, nil
}

func fileName(path string) string {
	return filepath.Base(path)
}
