package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/worksim/api/internal/model"
	"github.com/worksim/api/internal/service"
	"github.com/worksim/api/internal/store"
)

// Evaluator runs one video evaluation
type Evaluator interface {
	Evaluate(ctx context.Context, id string) (*model.VideoAssessment, error)
}

// VideoWorker processes video evaluation tasks
type VideoWorker struct {
	evaluator Evaluator
	log       *logrus.Logger
}

// NewVideoWorker creates a new video worker
func NewVideoWorker(evaluator Evaluator, log *logrus.Logger) *VideoWorker {
	return &VideoWorker{evaluator: evaluator, log: log}
}

// ProcessTask handles video evaluation task processing. A failed evaluation
// is returned so asynq retries it; the next attempt starts from FAILED. An
// evaluation running elsewhere is also retried, so a row left PROCESSING by
// a dead worker is picked up once it goes stale.
func (w *VideoWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.VideoEvaluatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.VideoAssessmentID == "" {
		return fmt.Errorf("missing video assessment id: %w", asynq.SkipRetry)
	}

	entry := w.log.WithField("video_assessment_id", payload.VideoAssessmentID)
	entry.Info("starting video evaluation task")

	va, err := w.evaluator.Evaluate(ctx, payload.VideoAssessmentID)
	switch {
	case errors.Is(err, service.ErrEvaluationInProgress):
		entry.Info("evaluation already running elsewhere, checking back later")
		return fmt.Errorf("video assessment %s: %w", payload.VideoAssessmentID, err)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("video assessment %s: %v: %w", payload.VideoAssessmentID, err, asynq.SkipRetry)
	case err != nil:
		return err
	}

	entry.WithField("status", va.Status).Info("video evaluation task done")
	return nil
}

// RetryDelay backs off evaluations that are running elsewhere until their
// attempt would have timed out. Other failures use the asynq default.
func RetryDelay(evaluationTimeout time.Duration) asynq.RetryDelayFunc {
	return func(n int, err error, t *asynq.Task) time.Duration {
		if errors.Is(err, service.ErrEvaluationInProgress) {
			return evaluationTimeout + time.Minute
		}
		return asynq.DefaultRetryDelayFunc(n, err, t)
	}
}
