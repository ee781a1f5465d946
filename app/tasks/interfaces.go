package tasks

import (
	"context"

	"github.com/lysyi3m/bid-comb/app/engine"
	"github.com/lysyi3m/bid-comb/app/subscription"
)

// TaskSchedulerInterface is what the API and main need from the scheduler.
//
//	scheduler := NewScheduler(opts, runner, configCache, subscriptionStore)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewSyncSubscriptionsTask(...))
type TaskSchedulerInterface interface {
	Start() error
	Stop()
	EnqueueTask(task TaskInterface) error
}

type Runner interface {
	Run(ctx context.Context) (engine.Report, error)
}

var _ Runner = (*engine.Engine)(nil)

type ConfigSyncer interface {
	Run() error
	Sync(ctx context.Context, store subscription.Store) (subscription.SyncResult, error)
}

var _ ConfigSyncer = (*subscription.ConfigCache)(nil)
