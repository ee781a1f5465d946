package tasks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lysyi3m/bid-comb/app/engine"
	"github.com/lysyi3m/bid-comb/app/g2b"
)

type RunDigestTask struct {
	Task
	runner Runner
	Report engine.Report
}

func NewRunDigestTask(trigger string, runner Runner) *RunDigestTask {
	return &RunDigestTask{
		Task:   NewTask(TaskTypeRunDigest, trigger),
		runner: runner,
	}
}

func (t *RunDigestTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	report, err := t.runner.Run(ctx)
	if errors.Is(err, engine.ErrRunInProgress) {
		slog.Warn("Run skipped, another run is in progress", "type", t.GetType(), "trigger", t.Trigger)
		return nil
	}
	t.Report = report
	if err != nil {
		return err
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"trigger", t.Trigger,
		"run_id", report.RunID,
		"duration", t.GetDuration(),
		"inserted", report.Inserted,
		"sent", report.Sent,
		"failed", report.Failed)

	return nil
}

// ShouldRetry retries only transient upstream failures. A fatal error needs
// an operator, and a retried run would fail the same way.
func (t *RunDigestTask) ShouldRetry(err error) bool {
	return g2b.IsRetryable(err)
}
