package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/bid-comb/app/subscription"
)

type SyncSubscriptionsTask struct {
	Task
	configs ConfigSyncer
	store   subscription.Store
	Result  subscription.SyncResult
}

func NewSyncSubscriptionsTask(trigger string, configs ConfigSyncer, store subscription.Store) *SyncSubscriptionsTask {
	return &SyncSubscriptionsTask{
		Task:    NewTask(TaskTypeSyncSubscriptions, trigger),
		configs: configs,
		store:   store,
	}
}

// Execute reloads subscription files from disk and mirrors them into the
// database.
func (t *SyncSubscriptionsTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.configs.Run(); err != nil {
		return fmt.Errorf("failed to load subscription configs: %w", err)
	}

	result, err := t.configs.Sync(ctx, t.store)
	if err != nil {
		slog.Error("Task failed", "type", t.GetType(), "error", err)
		return fmt.Errorf("failed to sync subscriptions to database: %w", err)
	}
	t.Result = result

	slog.Info("Task completed",
		"type", t.GetType(),
		"trigger", t.Trigger,
		"duration", t.GetDuration(),
		"loaded", result.Loaded,
		"disabled", result.Disabled)

	return nil
}

func (t *SyncSubscriptionsTask) ShouldRetry(err error) bool {
	return false
}
