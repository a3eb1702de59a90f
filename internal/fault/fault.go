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

// Package fault classifies failures of the matching and journalizing
// pipeline so the worker can map them onto a job status.
package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindUnknown is anything that was not classified. The worker treats it
	// as an unexpected error.
	KindUnknown Kind = iota
	// KindTransient is a network or service failure talking to a collaborator.
	KindTransient
	// KindStructural means the data itself prevents progress, such as a case
	// without an employment sub-process.
	KindStructural
	// KindUnavailable means a required lookup structure could not be built.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindStructural:
		return "structural"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline error. Msg is the operator facing text
// stored on the job; Err carries the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable collaborator failure.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Transientf builds a retryable failure with a message and no cause.
func Transientf(op string, format string, args ...any) error {
	return &Error{Kind: KindTransient, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Structural builds a non-retryable data failure.
func Structural(op, msg string) error {
	return &Error{Kind: KindStructural, Op: op, Msg: msg}
}

// Unavailable wraps err as a failure to build required lookup data.
func Unavailable(op string, err error) error {
	return &Error{Kind: KindUnavailable, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Message returns the operator facing message of the first *Error in
// err's chain, falling back to err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Msg != "" {
		return fe.Msg
	}
	return err.Error()
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

func IsStructural(err error) bool {
	return KindOf(err) == KindStructural
}

func IsUnavailable(err error) bool {
	return KindOf(err) == KindUnavailable
}
