package database

import (
	"context"
	"time"

	"github.com/lysyi3m/bid-comb/app/bid"
)

type NoticeRepository interface {
	Exists(ctx context.Context, noticeID string) (bool, error)
	Insert(ctx context.Context, notice bid.Notice) (bid.Notice, error)
	InsertIfAbsent(ctx context.Context, notice bid.Notice) (bool, error)
	Get(ctx context.Context, noticeID string) (*bid.Notice, error)
	MarkNotified(ctx context.Context, noticeID string, matchedKeywords []string) error

	ListPending(ctx context.Context, createdSince, now time.Time) ([]bid.Notice, error)
	List(ctx context.Context, status bid.Status, limit int) ([]bid.Notice, error)
	GetStats(ctx context.Context) (NoticeStats, error)
}

type SubscriptionRepository interface {
	ListEnabled(ctx context.Context) ([]bid.Subscription, error)
	Upsert(ctx context.Context, sub bid.Subscription, origin string) error
	DisableMissing(ctx context.Context, origin string, keepIDs []string) (int, error)
	GetCount(ctx context.Context) (total int, enabled int, err error)
}

type NotificationLogRepository interface {
	Create(ctx context.Context, log NotificationLog) error
	HasSent(ctx context.Context, noticeID, recipientEmail string) (bool, error)
	ListByNotice(ctx context.Context, noticeID string) ([]NotificationLog, error)
	GetStats(ctx context.Context) (LogStats, error)
}

type RunRepository interface {
	Start(ctx context.Context, run Run) error
	Finish(ctx context.Context, run Run) error
	GetLast(ctx context.Context) (*Run, error)
}
