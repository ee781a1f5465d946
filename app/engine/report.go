package engine

import (
	"time"

	"github.com/lysyi3m/bid-comb/app/database"
	"github.com/lysyi3m/bid-comb/app/g2b"
)

type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Report holds the run-level metrics. A completed run may still carry
// per-recipient failures.
type Report struct {
	RunID            string
	Window           g2b.Window
	State            State
	StartedAt        time.Time
	FinishedAt       time.Time
	Fetched          int
	Inserted         int
	Duplicates       int
	Dropped          int
	Pending          int
	Matched          int
	Skipped          int
	Recipients       int
	Sent             int
	Failed           int
	FailedRecipients []string
	Err              error
}

func (r Report) run() database.Run {
	run := database.Run{
		ID:          r.RunID,
		StartedAt:   r.StartedAt,
		WindowStart: r.Window.Start,
		WindowEnd:   r.Window.End,
		State:       string(r.State),
		Fetched:     r.Fetched,
		Inserted:    r.Inserted,
		Duplicates:  r.Duplicates,
		Dropped:     r.Dropped,
		Pending:     r.Pending,
		Matched:     r.Matched,
		Recipients:  r.Recipients,
		Sent:        r.Sent,
		Failed:      r.Failed,
	}
	if !r.FinishedAt.IsZero() {
		finishedAt := r.FinishedAt
		run.FinishedAt = &finishedAt
	}
	if r.Err != nil {
		msg := r.Err.Error()
		run.Error = &msg
	}
	return run
}
