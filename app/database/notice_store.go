package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lysyi3m/bid-comb/app/bid"
)

const noticeColumns = `notice_id, title, agency, region, category, budget, deadline, url,
	status, matched_keywords, created_at, notified_at`

type NoticeStore struct {
	db *DB
}

func NewNoticeStore(db *DB) *NoticeStore {
	return &NoticeStore{db: db}
}

func (r *NoticeStore) Exists(ctx context.Context, noticeID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM notices WHERE notice_id = ?)`, noticeID)
	if err != nil {
		return false, fmt.Errorf("failed to check notice existence: %w", err)
	}
	return exists, nil
}

// Insert creates the notice. An already stored notice_id yields ErrDuplicateKey.
func (r *NoticeStore) Insert(ctx context.Context, notice bid.Notice) (bid.Notice, error) {
	row, err := toNoticeRow(notice)
	if err != nil {
		return bid.Notice{}, err
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO notices (`+noticeColumns+`)
		VALUES (:notice_id, :title, :agency, :region, :category, :budget, :deadline, :url,
			:status, :matched_keywords, :created_at, :notified_at)
	`, row)
	if err != nil {
		if isUniqueViolation(err) {
			return bid.Notice{}, fmt.Errorf("notice %s: %w", notice.NoticeID, ErrDuplicateKey)
		}
		return bid.Notice{}, fmt.Errorf("failed to insert notice: %w", err)
	}

	return row.toNotice()
}

// InsertIfAbsent is the single-statement insert-or-skip used by runs. It
// reports whether this call created the row.
func (r *NoticeStore) InsertIfAbsent(ctx context.Context, notice bid.Notice) (bool, error) {
	row, err := toNoticeRow(notice)
	if err != nil {
		return false, err
	}

	result, err := r.db.NamedExecContext(ctx, `
		INSERT INTO notices (`+noticeColumns+`)
		VALUES (:notice_id, :title, :agency, :region, :category, :budget, :deadline, :url,
			:status, :matched_keywords, :created_at, :notified_at)
		ON CONFLICT (notice_id) DO NOTHING
	`, row)
	if err != nil {
		return false, fmt.Errorf("failed to insert notice: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

func (r *NoticeStore) Get(ctx context.Context, noticeID string) (*bid.Notice, error) {
	var row noticeRow
	err := r.db.GetContext(ctx, &row, `SELECT `+noticeColumns+` FROM notices WHERE notice_id = ?`, noticeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notice %s: %w", noticeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notice: %w", err)
	}

	notice, err := row.toNotice()
	if err != nil {
		return nil, err
	}
	return &notice, nil
}

// MarkNotified moves the notice to notified and merges matchedKeywords into
// the stored set. Repeated calls in one run only extend the keyword set.
func (r *NoticeStore) MarkNotified(ctx context.Context, noticeID string, matchedKeywords []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stored string
	err = tx.GetContext(ctx, &stored, `SELECT matched_keywords FROM notices WHERE notice_id = ?`, noticeID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("notice %s: %w", noticeID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read notice keywords: %w", err)
	}

	existing, err := decodeList(stored)
	if err != nil {
		return err
	}
	merged, err := encodeList(mergeKeywords(existing, matchedKeywords))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE notices
		SET status = ?, matched_keywords = ?, notified_at = COALESCE(notified_at, ?)
		WHERE notice_id = ?
	`, string(bid.StatusNotified), merged, time.Now().UTC(), noticeID)
	if err != nil {
		return fmt.Errorf("failed to mark notice notified: %w", err)
	}

	return tx.Commit()
}

// ListPending returns notices still new that were created at or after
// createdSince and whose deadline, if known, is after now.
func (r *NoticeStore) ListPending(ctx context.Context, createdSince, now time.Time) ([]bid.Notice, error) {
	var rows []noticeRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+noticeColumns+`
		FROM notices
		WHERE status = ?
		  AND created_at >= ?
		  AND (deadline IS NULL OR deadline > ?)
		ORDER BY created_at, notice_id
	`, string(bid.StatusNew), createdSince.UTC(), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list pending notices: %w", err)
	}
	return toNotices(rows)
}

// List returns the most recent notices, optionally restricted to status.
func (r *NoticeStore) List(ctx context.Context, status bid.Status, limit int) ([]bid.Notice, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []noticeRow
	var err error
	if status == "" {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT `+noticeColumns+` FROM notices
			ORDER BY created_at DESC, notice_id
			LIMIT ?
		`, limit)
	} else {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT `+noticeColumns+` FROM notices
			WHERE status = ?
			ORDER BY created_at DESC, notice_id
			LIMIT ?
		`, string(status), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list notices: %w", err)
	}
	return toNotices(rows)
}

func (r *NoticeStore) GetStats(ctx context.Context) (NoticeStats, error) {
	var stats NoticeStats
	err := r.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = 'new' THEN 1 ELSE 0 END), 0) AS new,
			COALESCE(SUM(CASE WHEN status = 'notified' THEN 1 ELSE 0 END), 0) AS notified
		FROM notices
	`)
	if err != nil {
		return NoticeStats{}, fmt.Errorf("failed to get notice stats: %w", err)
	}
	return stats, nil
}

func toNoticeRow(n bid.Notice) (noticeRow, error) {
	keywords, err := encodeList(n.MatchedKeywords)
	if err != nil {
		return noticeRow{}, err
	}

	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	status := n.Status
	if status == "" {
		status = bid.StatusNew
	}

	row := noticeRow{
		NoticeID:        n.NoticeID,
		Title:           n.Title,
		Agency:          n.Agency,
		Region:          n.Region,
		Category:        n.Category,
		URL:             n.URL,
		Status:          string(status),
		MatchedKeywords: keywords,
		CreatedAt:       createdAt.UTC(),
	}
	if row.Budget, err = budgetParam(n.Budget); err != nil {
		return noticeRow{}, fmt.Errorf("notice %s: %w", n.NoticeID, err)
	}
	if n.Deadline != nil {
		deadline := n.Deadline.UTC()
		row.Deadline = &deadline
	}
	return row, nil
}

func (row noticeRow) toNotice() (bid.Notice, error) {
	keywords, err := decodeList(row.MatchedKeywords)
	if err != nil {
		return bid.Notice{}, fmt.Errorf("notice %s: %w", row.NoticeID, err)
	}

	notice := bid.Notice{
		NoticeID:        row.NoticeID,
		Title:           row.Title,
		Agency:          row.Agency,
		Region:          row.Region,
		Category:        row.Category,
		Deadline:        row.Deadline,
		URL:             row.URL,
		Status:          bid.Status(row.Status),
		MatchedKeywords: keywords,
		Budget:          budgetValue(row.Budget),
		CreatedAt:       row.CreatedAt,
	}
	return notice, nil
}

func toNotices(rows []noticeRow) ([]bid.Notice, error) {
	notices := make([]bid.Notice, 0, len(rows))
	for _, row := range rows {
		notice, err := row.toNotice()
		if err != nil {
			return nil, err
		}
		notices = append(notices, notice)
	}
	return notices, nil
}

func mergeKeywords(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	merged := make([]string, 0, len(existing)+len(added))
	for _, list := range [][]string{existing, added} {
		for _, keyword := range list {
			if keyword == "" || seen[keyword] {
				continue
			}
			seen[keyword] = true
			merged = append(merged, keyword)
		}
	}
	return merged
}
