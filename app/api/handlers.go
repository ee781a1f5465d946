package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/bid-comb/app/bid"
	"github.com/lysyi3m/bid-comb/app/database"
	"github.com/lysyi3m/bid-comb/app/tasks"
)

const maxListLimit = 500

func NewHandler(noticeRepo database.NoticeRepository, subscriptionRepo database.SubscriptionRepository,
	logRepo database.NotificationLogRepository, runRepo database.RunRepository,
	configs tasks.ConfigSyncer, runner tasks.Runner, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		noticeRepo:       noticeRepo,
		subscriptionRepo: subscriptionRepo,
		logRepo:          logRepo,
		runRepo:          runRepo,
		configs:          configs,
		runner:           runner,
		scheduler:        scheduler,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if total, enabled, err := h.subscriptionRepo.GetCount(c.Request.Context()); err == nil {
		health["subscriptions"] = total
		health["enabled_subscriptions"] = enabled
	} else {
		slog.Error("Database error", "operation", "count_subscriptions", "error", err)
		health["status"] = "degraded"
	}

	if run, err := h.runRepo.GetLast(c.Request.Context()); err == nil {
		health["last_run"] = gin.H{
			"id":          run.ID,
			"state":       run.State,
			"started_at":  run.StartedAt,
			"finished_at": run.FinishedAt,
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	notices, err := h.noticeRepo.GetStats(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "notice_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	logs, err := h.logRepo.GetStats(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "log_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	total, enabled, err := h.subscriptionRepo.GetCount(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "count_subscriptions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notices":       notices,
		"notifications": logs,
		"subscriptions": gin.H{
			"total":   total,
			"enabled": enabled,
		},
	})
}

// APITriggerRun enqueues an off-schedule run. The window is recomputed from
// the current time, so a repeat inside the same day only picks up stragglers.
func (h *Handler) APITriggerRun(c *gin.Context) {
	task := tasks.NewRunDigestTask("api", h.runner)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing run task", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue run task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}

func (h *Handler) APIGetLastRun(c *gin.Context) {
	run, err := h.runRepo.GetLast(c.Request.Context())
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No run recorded yet"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_last_run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, run)
}

func (h *Handler) APIListNotices(c *gin.Context) {
	status := bid.Status(c.Query("status"))
	if status != "" && status != bid.StatusNew && status != bid.StatusNotified {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be 'new' or 'notified'"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	notices, err := h.noticeRepo.List(c.Request.Context(), status, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_notices", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	items := make([]noticeResponse, 0, len(notices))
	for _, n := range notices {
		items = append(items, toNoticeResponse(n))
	}

	c.JSON(http.StatusOK, gin.H{
		"notices": items,
		"total":   len(items),
	})
}

func (h *Handler) APIListNoticeLogs(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing notice id parameter"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.noticeRepo.Get(ctx, id); errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notice not found"})
		return
	} else if err != nil {
		slog.Error("Database error", "operation", "get_notice", "notice_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	logs, err := h.logRepo.ListByNotice(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "list_logs", "notice_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if logs == nil {
		logs = []database.NotificationLog{}
	}

	c.JSON(http.StatusOK, gin.H{
		"notice_id": id,
		"logs":      logs,
		"total":     len(logs),
	})
}

// APIReloadSubscriptions re-reads the subscription directory and syncs it
// into the store before responding.
func (h *Handler) APIReloadSubscriptions(c *gin.Context) {
	task := tasks.NewSyncSubscriptionsTask("api", h.configs, h.subscriptionRepo)
	task.Start()
	if err := task.Execute(c.Request.Context()); err != nil {
		slog.Error("Error reloading subscriptions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to reload subscriptions",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"loaded":   task.Result.Loaded,
		"disabled": task.Result.Disabled,
	})
}

func toNoticeResponse(n bid.Notice) noticeResponse {
	resp := noticeResponse{
		NoticeID:        n.NoticeID,
		Title:           n.Title,
		Agency:          n.Agency,
		Region:          n.Region,
		Category:        n.Category,
		Budget:          n.Budget,
		URL:             n.URL,
		Status:          string(n.Status),
		MatchedKeywords: n.MatchedKeywords,
		CreatedAt:       n.CreatedAt.Format(time.RFC3339),
	}
	if resp.MatchedKeywords == nil {
		resp.MatchedKeywords = []string{}
	}
	if n.Deadline != nil {
		deadline := n.Deadline.Format(time.RFC3339)
		resp.Deadline = &deadline
	}
	return resp
}
