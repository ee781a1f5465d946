package api

import (
	"github.com/lysyi3m/bid-comb/app/database"
	"github.com/lysyi3m/bid-comb/app/tasks"
)

type Handler struct {
	noticeRepo       database.NoticeRepository
	subscriptionRepo database.SubscriptionRepository
	logRepo          database.NotificationLogRepository
	runRepo          database.RunRepository
	configs          tasks.ConfigSyncer
	runner           tasks.Runner
	scheduler        tasks.TaskSchedulerInterface
}

type noticeResponse struct {
	NoticeID        string   `json:"notice_id"`
	Title           string   `json:"title"`
	Agency          string   `json:"agency"`
	Region          *string  `json:"region"`
	Category        *string  `json:"category"`
	Budget          *uint64  `json:"budget"`
	Deadline        *string  `json:"deadline"`
	URL             string   `json:"url"`
	Status          string   `json:"status"`
	MatchedKeywords []string `json:"matched_keywords"`
	CreatedAt       string   `json:"created_at"`
}
