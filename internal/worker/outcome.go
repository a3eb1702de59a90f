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

package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/cardinalhq/personalesag/internal/casematch"
	"github.com/cardinalhq/personalesag/internal/fault"
	"github.com/cardinalhq/personalesag/jobdb"
)

const (
	msgNoDepartments      = "no departments found"
	msgEmploymentNotFound = "employment not found"
	msgNoCaseFound        = "no case found"
	msgNoDepartmentMatch  = "no matching case for department"
	msgAmbiguousMatch     = "ambiguous case match"
	msgUnexpected         = "unexpected error"
	msgTimedOut           = "collaborator call timed out"
	msgSuccessFormat      = "uploaded to case %d"
)

// outcome is the terminal or retryable status a job ends a run in.
type outcome struct {
	status  jobdb.Status
	message string
	err     error
}

func failed(message string, err error) outcome {
	return outcome{status: jobdb.StatusFailed, message: message, err: err}
}

func retryable(message string, err error) outcome {
	return outcome{status: jobdb.StatusFailedTryAgain, message: message, err: err}
}

func succeeded(caseID int64) outcome {
	return outcome{status: jobdb.StatusSuccess, message: fmt.Sprintf(msgSuccessFormat, caseID)}
}

// fromError maps a pipeline error to an outcome. A collaborator call that
// ran out of time is retryable; any other error the clients did not
// classify is unexpected.
func fromError(err error) outcome {
	switch fault.KindOf(err) {
	case fault.KindUnavailable:
		return failed(msgNoDepartments, err)
	case fault.KindStructural:
		return failed(fault.Message(err), err)
	case fault.KindTransient:
		return retryable(fault.Message(err), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retryable(msgTimedOut, err)
	}
	return failed(msgUnexpected, err)
}

func fromNoMatch(reason casematch.Reason) outcome {
	switch reason {
	case casematch.ReasonAmbiguous:
		return failed(msgAmbiguousMatch, nil)
	case casematch.ReasonNoCorrespondence:
		return failed(msgNoDepartmentMatch, nil)
	default:
		return retryable(msgNoCaseFound, nil)
	}
}
