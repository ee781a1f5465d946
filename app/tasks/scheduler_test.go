package tasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/bid-comb/app/bid"
	"github.com/lysyi3m/bid-comb/app/engine"
	"github.com/lysyi3m/bid-comb/app/g2b"
	"github.com/lysyi3m/bid-comb/app/subscription"
)

type mockRunner struct {
	mu    sync.Mutex
	errs  []error
	calls int
	done  chan struct{}
}

func (m *mockRunner) Run(ctx context.Context) (engine.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var err error
	if len(m.errs) > 0 {
		err, m.errs = m.errs[0], m.errs[1:]
	}
	if err == nil && m.done != nil {
		close(m.done)
		m.done = nil
	}
	return engine.Report{RunID: "run-1", State: engine.StateCompleted}, err
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockStore struct {
	upserted []string
}

func (m *mockStore) Upsert(ctx context.Context, sub bid.Subscription, origin string) error {
	m.upserted = append(m.upserted, sub.ID)
	return nil
}

func (m *mockStore) DisableMissing(ctx context.Context, origin string, keepIDs []string) (int, error) {
	return 0, nil
}

func newTestScheduler(runner Runner) *Scheduler {
	s := NewScheduler(SchedulerOptions{Spec: "0 9 * * *", Location: time.UTC}, runner, nil, nil)
	s.retryDelay = func(int) time.Duration { return time.Millisecond }
	return s
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		retryCount int
		expected   time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{64, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.retryCount); got != tt.expected {
			t.Errorf("Expected %v for retry %d, got %v", tt.expected, tt.retryCount, got)
		}
	}
}

func TestRunDigestTaskShouldRetry(t *testing.T) {
	task := NewRunDigestTask("api", &mockRunner{})

	if !task.ShouldRetry(&g2b.APIError{Kind: g2b.KindQuotaExceeded}) {
		t.Error("Expected quota errors to be retried")
	}
	if task.ShouldRetry(&g2b.APIError{Kind: g2b.KindAccessDenied}) {
		t.Error("Expected access denied not to be retried")
	}
	if task.ShouldRetry(errors.New("database is locked")) {
		t.Error("Expected unclassified errors not to be retried")
	}
}

func TestRunDigestTaskSkipsWhenRunInProgress(t *testing.T) {
	task := NewRunDigestTask("schedule", &mockRunner{errs: []error{engine.ErrRunInProgress}})

	if err := task.Execute(context.Background()); err != nil {
		t.Errorf("Expected overlapping run to be skipped, got %v", err)
	}
}

func TestSchedulerRetriesTransientFailure(t *testing.T) {
	quota := &g2b.APIError{Kind: g2b.KindQuotaExceeded, Code: "22"}
	done := make(chan struct{})
	runner := &mockRunner{errs: []error{quota, quota}, done: done}
	s := newTestScheduler(runner)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if err := s.EnqueueTask(NewRunDigestTask("api", runner)); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected task to succeed after retries")
	}
	if runner.callCount() != 3 {
		t.Errorf("Expected 3 attempts, got %d", runner.callCount())
	}
}

func TestSchedulerDoesNotRetryFatalFailure(t *testing.T) {
	task := NewRunDigestTask("api", &mockRunner{errs: []error{&g2b.APIError{Kind: g2b.KindAccessDenied, Code: "30"}}})
	s := newTestScheduler(task.runner)

	s.executeTask(0, task)

	if task.GetRetryCount() != 0 {
		t.Errorf("Expected no retry, got %d", task.GetRetryCount())
	}
	if len(s.taskQueue) != 0 {
		t.Errorf("Expected empty queue, got %d", len(s.taskQueue))
	}
}

func TestSchedulerStopsRetryingAtMax(t *testing.T) {
	quota := &g2b.APIError{Kind: g2b.KindQuotaExceeded}
	task := NewRunDigestTask("api", &mockRunner{errs: []error{quota}})
	task.RetryCount = task.MaxRetries
	s := newTestScheduler(task.runner)

	s.executeTask(0, task)

	if task.GetRetryCount() != task.MaxRetries {
		t.Errorf("Expected retry count to stay at %d, got %d", task.MaxRetries, task.GetRetryCount())
	}
}

func TestSchedulerInvalidSpec(t *testing.T) {
	s := NewScheduler(SchedulerOptions{Spec: "not a cron spec"}, &mockRunner{}, nil, nil)
	if err := s.Start(); err == nil {
		t.Error("Expected error for invalid spec")
	}
}

func TestSchedulerNextRun(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	s := NewScheduler(SchedulerOptions{Spec: engine.Anchor{Hour: 9}.CronSpec(), Location: kst}, &mockRunner{}, nil, nil)

	next, err := s.NextRun(time.Date(2025, 1, 15, 10, 0, 0, 0, kst))
	if err != nil {
		t.Fatal(err)
	}
	expected := time.Date(2025, 1, 16, 9, 0, 0, 0, kst)
	if !next.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, next)
	}

	// 23:30 UTC is already 08:30 next day in Seoul
	next, _ = s.NextRun(time.Date(2025, 1, 15, 23, 30, 0, 0, time.UTC))
	if !next.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, next)
	}
}

func TestEnqueueTaskQueueFull(t *testing.T) {
	s := newTestScheduler(&mockRunner{})
	for i := 0; i < cap(s.taskQueue); i++ {
		if err := s.EnqueueTask(NewRunDigestTask("api", &mockRunner{})); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.EnqueueTask(NewRunDigestTask("api", &mockRunner{})); err == nil {
		t.Error("Expected error when queue is full")
	}
}

func TestSyncSubscriptionsTask(t *testing.T) {
	dir := t.TempDir()
	content := "email: planner@example.com\nkeywords: [\"교육여행\"]\n"
	if err := os.WriteFile(filepath.Join(dir, "planner.yml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	store := &mockStore{}
	task := NewSyncSubscriptionsTask("startup", subscription.NewConfigCache(dir), store)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	if task.Result.Loaded != 1 || len(store.upserted) != 1 || store.upserted[0] != "planner" {
		t.Errorf("Expected planner subscription synced, got %+v / %v", task.Result, store.upserted)
	}
	if task.ShouldRetry(errors.New("any")) {
		t.Error("Expected sync failures not to be retried")
	}
}
