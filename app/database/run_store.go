package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const runColumns = `id, started_at, finished_at, window_start, window_end, state,
	fetched, inserted, duplicates, dropped, pending, matched, recipients, sent, failed, error`

type RunStore struct {
	db *DB
}

func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// Start records a run as it begins.
func (r *RunStore) Start(ctx context.Context, run Run) error {
	run = normalizeRun(run)
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (:id, :started_at, :finished_at, :window_start, :window_end, :state,
			:fetched, :inserted, :duplicates, :dropped, :pending, :matched, :recipients, :sent, :failed, :error)
	`, run)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// Finish stores the final counters and terminal state of a started run.
func (r *RunStore) Finish(ctx context.Context, run Run) error {
	run = normalizeRun(run)
	result, err := r.db.NamedExecContext(ctx, `
		UPDATE runs SET
			finished_at = :finished_at, state = :state,
			fetched = :fetched, inserted = :inserted, duplicates = :duplicates, dropped = :dropped,
			pending = :pending, matched = :matched, recipients = :recipients,
			sent = :sent, failed = :failed, error = :error
		WHERE id = :id
	`, run)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

func (r *RunStore) GetLast(ctx context.Context) (*Run, error) {
	var run Run
	err := r.db.GetContext(ctx, &run, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}
	return &run, nil
}

func normalizeRun(run Run) Run {
	run.StartedAt = run.StartedAt.UTC()
	run.WindowStart = run.WindowStart.UTC()
	run.WindowEnd = run.WindowEnd.UTC()
	if run.FinishedAt != nil {
		finishedAt := run.FinishedAt.UTC()
		run.FinishedAt = &finishedAt
	}
	return run
}
