package store

import (
	"context"
	"errors"
	"time"

	"github.com/worksim/api/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a guarded status update matched no row
	ErrConflict = errors.New("status changed concurrently")
)

// Store is the persistence boundary of the assessment backend.
// Status transitions are compare-and-swap updates: they report whether the
// row was in one of the expected states instead of overwriting blindly.
type Store interface {
	GetAssessment(ctx context.Context, id string) (*model.Assessment, error)
	// CompleteAssessment moves WORKING to COMPLETED. False means the
	// assessment was not WORKING anymore.
	CompleteAssessment(ctx context.Context, id string, completedAt time.Time) (bool, error)
	SaveReport(ctx context.Context, assessmentID string, report *model.AssessmentReport) error
	SavePRSnapshot(ctx context.Context, assessmentID string, snapshot *model.PRSnapshot) error

	GetUser(ctx context.Context, id string) (*model.User, error)
	UpdateUserImage(ctx context.Context, userID, imageURL string) error
	GetScenario(ctx context.Context, id string) (*model.Scenario, error)
	ListCoworkers(ctx context.Context, scenarioID string) ([]model.Coworker, error)

	CountRecordings(ctx context.Context, assessmentID string) (int64, error)
	FirstRecording(ctx context.Context, assessmentID string) (*model.Recording, error)

	ListConversations(ctx context.Context, assessmentID string) ([]model.Conversation, error)
	CountContactedCoworkers(ctx context.Context, assessmentID string) (int, error)

	// CreateVideoAssessment inserts a PENDING row, or returns the existing row
	// of the assessment with created=false.
	CreateVideoAssessment(ctx context.Context, va *model.VideoAssessment) (*model.VideoAssessment, bool, error)
	GetVideoAssessment(ctx context.Context, id string) (*model.VideoAssessment, error)
	GetVideoAssessmentByAssessment(ctx context.Context, assessmentID string) (*model.VideoAssessment, error)
	// StartVideoAssessment moves PENDING to PROCESSING and counts the attempt
	StartVideoAssessment(ctx context.Context, id string) (bool, error)
	// ResetVideoAssessment moves FAILED back to PENDING for a retry
	ResetVideoAssessment(ctx context.Context, id string) (bool, error)
	// CompleteVideoAssessment stores summary and score rows and marks the
	// evaluation COMPLETED in one transaction
	CompleteVideoAssessment(ctx context.Context, id string, summary *model.VideoAssessmentSummary, scores []model.VideoDimensionScore) error
	FailVideoAssessment(ctx context.Context, id, message string) error
	// ExpireVideoAssessment fails a PROCESSING row whose attempt started
	// before startedBefore, so an abandoned evaluation can be retried
	ExpireVideoAssessment(ctx context.Context, id string, startedBefore time.Time, message string) (bool, error)
}
