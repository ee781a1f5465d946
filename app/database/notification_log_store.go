package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationLogStore struct {
	db *DB
}

func NewNotificationLogStore(db *DB) *NotificationLogStore {
	return &NotificationLogStore{db: db}
}

// Create appends a log row. A retry in a later run is a new row; existing
// rows are never updated.
func (r *NotificationLogStore) Create(ctx context.Context, log NotificationLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.AttemptedAt.IsZero() {
		log.AttemptedAt = time.Now()
	}
	log.AttemptedAt = log.AttemptedAt.UTC()
	if log.SentAt != nil {
		sentAt := log.SentAt.UTC()
		log.SentAt = &sentAt
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO notification_logs (
			id, run_id, notice_id, recipient_email, status,
			error_message, message_id, sent_at, attempted_at
		) VALUES (
			:id, :run_id, :notice_id, :recipient_email, :status,
			:error_message, :message_id, :sent_at, :attempted_at
		)
	`, log)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("notification log %s/%s: %w", log.NoticeID, log.RecipientEmail, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create notification log: %w", err)
	}

	return nil
}

// HasSent reports whether the notice was ever delivered to recipientEmail.
func (r *NotificationLogStore) HasSent(ctx context.Context, noticeID, recipientEmail string) (bool, error) {
	var sent bool
	err := r.db.GetContext(ctx, &sent, `
		SELECT EXISTS(
			SELECT 1 FROM notification_logs
			WHERE notice_id = ? AND recipient_email = ? AND status = ?
		)
	`, noticeID, recipientEmail, string(LogSent))
	if err != nil {
		return false, fmt.Errorf("failed to check sent log: %w", err)
	}
	return sent, nil
}

func (r *NotificationLogStore) ListByNotice(ctx context.Context, noticeID string) ([]NotificationLog, error) {
	logs := []NotificationLog{}
	err := r.db.SelectContext(ctx, &logs, `
		SELECT id, run_id, notice_id, recipient_email, status,
		       error_message, message_id, sent_at, attempted_at
		FROM notification_logs
		WHERE notice_id = ?
		ORDER BY attempted_at, recipient_email
	`, noticeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	return logs, nil
}

func (r *NotificationLogStore) GetStats(ctx context.Context) (LogStats, error) {
	var stats LogStats
	err := r.db.GetContext(ctx, &stats, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0) AS sent,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS failed
		FROM notification_logs
	`)
	if err != nil {
		return LogStats{}, fmt.Errorf("failed to get notification log stats: %w", err)
	}
	return stats, nil
}
