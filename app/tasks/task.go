package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeRunDigest         TaskType = "run_digest"
	TaskTypeSyncSubscriptions TaskType = "sync_subscriptions"
)

const (
	DefaultMaxRetries = 3
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	ShouldRetry(err error) bool
	GetID() string
	GetType() TaskType
	GetTrigger() string
	GetRetryCount() int
	GetMaxRetries() int
	IncrementRetryCount()
	CanRetry() bool
	Start()
	GetDuration() time.Duration
}

// Task carries the bookkeeping shared by every task. Trigger records what
// enqueued it: "schedule", "startup", "api" or "cli".
type Task struct {
	ID         string
	Type       TaskType
	Trigger    string
	RetryCount int
	MaxRetries int
	StartedAt  *time.Time
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetTrigger() string {
	return t.Trigger
}

func (t *Task) GetRetryCount() int {
	return t.RetryCount
}

func (t *Task) GetMaxRetries() int {
	return t.MaxRetries
}

func (t *Task) IncrementRetryCount() {
	t.RetryCount++
}

func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func NewTask(taskType TaskType, trigger string) Task {
	return Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		Trigger:    trigger,
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}
}

// RetryDelay is the backoff before retry number retryCount, capped at 30s.
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := time.Duration(1<<uint(min(retryCount-1, 5))) * time.Second
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}
