package database

import (
	"time"
)

type LogStatus string

const (
	LogSent   LogStatus = "sent"
	LogFailed LogStatus = "failed"
)

// NotificationLog is one delivery attempt for a (notice, recipient) pair.
// Rows are append-only.
type NotificationLog struct {
	ID             string     `db:"id" json:"id"`
	RunID          string     `db:"run_id" json:"run_id"`
	NoticeID       string     `db:"notice_id" json:"notice_id"`
	RecipientEmail string     `db:"recipient_email" json:"recipient_email"`
	Status         LogStatus  `db:"status" json:"status"`
	ErrorMessage   *string    `db:"error_message" json:"error_message,omitempty"`
	MessageID      *string    `db:"message_id" json:"message_id,omitempty"`
	SentAt         *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	AttemptedAt    time.Time  `db:"attempted_at" json:"attempted_at"`
}

type Run struct {
	ID          string     `db:"id" json:"id"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	WindowStart time.Time  `db:"window_start" json:"window_start"`
	WindowEnd   time.Time  `db:"window_end" json:"window_end"`
	State       string     `db:"state" json:"state"`
	Fetched     int        `db:"fetched" json:"fetched"`
	Inserted    int        `db:"inserted" json:"inserted"`
	Duplicates  int        `db:"duplicates" json:"duplicates"`
	Dropped     int        `db:"dropped" json:"dropped"`
	Pending     int        `db:"pending" json:"pending"`
	Matched     int        `db:"matched" json:"matched"`
	Recipients  int        `db:"recipients" json:"recipients"`
	Sent        int        `db:"sent" json:"sent"`
	Failed      int        `db:"failed" json:"failed"`
	Error       *string    `db:"error" json:"error,omitempty"`
}

type NoticeStats struct {
	Total    int `db:"total" json:"total"`
	New      int `db:"new" json:"new"`
	Notified int `db:"notified" json:"notified"`
}

type LogStats struct {
	Sent   int `db:"sent" json:"sent"`
	Failed int `db:"failed" json:"failed"`
}

type noticeRow struct {
	NoticeID        string     `db:"notice_id"`
	Title           string     `db:"title"`
	Agency          string     `db:"agency"`
	Region          *string    `db:"region"`
	Category        *string    `db:"category"`
	Budget          *int64     `db:"budget"`
	Deadline        *time.Time `db:"deadline"`
	URL             string     `db:"url"`
	Status          string     `db:"status"`
	MatchedKeywords string     `db:"matched_keywords"`
	CreatedAt       time.Time  `db:"created_at"`
	NotifiedAt      *time.Time `db:"notified_at"`
}

type subscriptionRow struct {
	ID         string    `db:"id"`
	Email      string    `db:"email"`
	OwnerRef   *string   `db:"owner_ref"`
	Keywords   string    `db:"keywords"`
	Regions    string    `db:"regions"`
	Categories string    `db:"categories"`
	MinBudget  *int64    `db:"min_budget"`
	MaxBudget  *int64    `db:"max_budget"`
	Enabled    bool      `db:"enabled"`
	Origin     string    `db:"origin"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
