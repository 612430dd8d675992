package service

import (
	"errors"
	"fmt"

	"github.com/worksim/api/internal/model"
)

var (
	ErrForbidden            = errors.New("assessment belongs to another user")
	ErrNoRecording          = errors.New("assessment has no recording")
	ErrEvaluationInProgress = errors.New("video evaluation already in progress")
	ErrEvaluationFailed     = errors.New("video evaluation failed")
	ErrNotRetryable         = errors.New("video evaluation is not in a retryable state")
)

// InvalidStateError is returned when an assessment is not in the status an
// operation requires
type InvalidStateError struct {
	Actual   model.AssessmentStatus
	Expected model.AssessmentStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("assessment is in status %s, expected %s", e.Actual, e.Expected)
}
