package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/worksim/api/internal/logger"
	"github.com/worksim/api/internal/model"
	"github.com/worksim/api/internal/service"
	"github.com/worksim/api/internal/store"
)

type stubEvaluator struct {
	err error
	ids []string
}

func (s *stubEvaluator) Evaluate(_ context.Context, id string) (*model.VideoAssessment, error) {
	s.ids = append(s.ids, id)
	if s.err != nil {
		return nil, s.err
	}
	return &model.VideoAssessment{ID: id, Status: model.VideoStatusCompleted}, nil
}

func TestProcessTask(t *testing.T) {
	tests := []struct {
		name      string
		evalErr   error
		wantErr   bool
		skipRetry bool
	}{
		{"completed", nil, false, false},
		{"already running", service.ErrEvaluationInProgress, true, false},
		{"unknown evaluation", store.ErrNotFound, true, true},
		{"analysis failed", service.ErrEvaluationFailed, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := &stubEvaluator{err: tt.evalErr}
			w := NewVideoWorker(eval, logger.Discard())

			task, err := service.NewVideoEvaluateTask("va-1")
			if err != nil {
				t.Fatalf("NewVideoEvaluateTask: %v", err)
			}
			err = w.ProcessTask(context.Background(), task)

			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if errors.Is(err, asynq.SkipRetry) != tt.skipRetry {
				t.Errorf("skip retry = %v, want %v", errors.Is(err, asynq.SkipRetry), tt.skipRetry)
			}
			if len(eval.ids) != 1 || eval.ids[0] != "va-1" {
				t.Errorf("evaluated = %v", eval.ids)
			}
		})
	}
}

func TestProcessTaskRejectsBadPayload(t *testing.T) {
	eval := &stubEvaluator{}
	w := NewVideoWorker(eval, logger.Discard())

	for _, payload := range []string{"not json", `{"videoAssessmentId": ""}`} {
		err := w.ProcessTask(context.Background(), asynq.NewTask(service.TaskTypeVideoEvaluate, []byte(payload)))
		if !errors.Is(err, asynq.SkipRetry) {
			t.Errorf("payload %q: err = %v, want SkipRetry", payload, err)
		}
	}
	if len(eval.ids) != 0 {
		t.Errorf("evaluator should not run: %v", eval.ids)
	}
}

func TestRetryDelay(t *testing.T) {
	delay := RetryDelay(10 * time.Minute)
	task := asynq.NewTask(service.TaskTypeVideoEvaluate, nil)

	inProgress := errors.Join(errors.New("video assessment va-1"), service.ErrEvaluationInProgress)
	if got := delay(1, inProgress, task); got != 11*time.Minute {
		t.Errorf("in progress delay = %v, want 11m", got)
	}

	if got := delay(1, service.ErrEvaluationFailed, task); got >= 11*time.Minute {
		t.Errorf("failure delay = %v, want the asynq default backoff", got)
	}
}
