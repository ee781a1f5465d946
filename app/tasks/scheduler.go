package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/bid-comb/app/subscription"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type SchedulerOptions struct {
	// Spec is a five-field cron expression evaluated in Location.
	Spec         string
	Location     *time.Location
	WorkerCount  int
	SyncInterval time.Duration
	TaskTimeout  time.Duration
}

type Scheduler struct {
	opts        SchedulerOptions
	runner      Runner
	configCache ConfigSyncer
	store       subscription.Store
	cron        *cron.Cron
	retryDelay  func(retryCount int) time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(opts SchedulerOptions, runner Runner, configCache ConfigSyncer, store subscription.Store) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.WorkerCount < 1 {
		opts.WorkerCount = 1
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 30 * time.Minute
	}

	return &Scheduler{
		opts:        opts,
		runner:      runner,
		configCache: configCache,
		store:       store,
		cron:        cron.New(cron.WithLocation(opts.Location), cron.WithLogger(cronLogger{})),
		retryDelay:  RetryDelay,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 32),
	}
}

// Start launches the workers and registers the daily run and, when
// configured, the periodic subscription resync.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.opts.Spec, func() {
		s.enqueue(NewRunDigestTask("schedule", s.runner))
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.opts.Spec, err)
	}

	if s.opts.SyncInterval > 0 && s.configCache != nil {
		spec := "@every " + s.opts.SyncInterval.String()
		if _, err := s.cron.AddFunc(spec, func() {
			s.enqueue(NewSyncSubscriptionsTask("schedule", s.configCache, s.store))
		}); err != nil {
			return fmt.Errorf("invalid sync interval %s: %w", s.opts.SyncInterval, err)
		}
	}

	for i := 0; i < s.opts.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.cron.Start()

	next, _ := s.NextRun(time.Now())
	slog.Info("Scheduler started", "spec", s.opts.Spec, "location", s.opts.Location.String(), "workers", s.opts.WorkerCount, "next_run", next)
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// NextRun is the first scheduled run after now.
func (s *Scheduler) NextRun(now time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(s.opts.Spec)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(now.In(s.opts.Location)), nil
}

func (s *Scheduler) enqueue(task TaskInterface) {
	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue task", "type", string(task.GetType()), "trigger", task.GetTrigger(), "error", err)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.opts.TaskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.ShouldRetry(err) {
		slog.Error("Task failed with non-retryable error", "type", string(task.GetType()), "id", task.GetID(), "alert", true, "error", err)
		return
	}

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := s.retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	go func() {
		timer := time.NewTimer(retryDelay)
		defer timer.Stop()
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
