package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	TaskTypeVideoEvaluate = "video:evaluate"
	QueueVideo            = "video"
)

// EvaluationQueue schedules a video evaluation outside the request
type EvaluationQueue interface {
	EnqueueEvaluation(ctx context.Context, videoAssessmentID string) error
}

// VideoEvaluatePayload is the asynq payload of TaskTypeVideoEvaluate
type VideoEvaluatePayload struct {
	VideoAssessmentID string `json:"videoAssessmentId"`
}

// AsynqQueue enqueues evaluations on the asynq "video" queue
type AsynqQueue struct {
	client       *asynq.Client
	uniqueWindow time.Duration
}

func NewAsynqQueue(client *asynq.Client, uniqueWindow time.Duration) *AsynqQueue {
	return &AsynqQueue{client: client, uniqueWindow: uniqueWindow}
}

func (q *AsynqQueue) EnqueueEvaluation(ctx context.Context, videoAssessmentID string) error {
	task, err := NewVideoEvaluateTask(videoAssessmentID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueVideo),
		asynq.MaxRetry(3),
		asynq.Unique(q.uniqueWindow),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func NewVideoEvaluateTask(videoAssessmentID string) (*asynq.Task, error) {
	data, err := json.Marshal(VideoEvaluatePayload{VideoAssessmentID: videoAssessmentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeVideoEvaluate, data), nil
}

// Locker is a cross-process mutex keyed by name
type Locker interface {
	// TryLock returns a release func when the lock was taken, nil when it is
	// held elsewhere
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker implements Locker with SET NX and a token-checked release
type RedisLocker struct {
	redis *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{redis: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	ok, err := l.redis.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	return func() {
		_ = releaseScript.Run(context.Background(), l.redis, []string{"lock:" + key}, token).Err()
	}, nil
}
