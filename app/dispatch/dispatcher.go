package dispatch

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/bid-comb/app/bid"
	"github.com/lysyi3m/bid-comb/app/database"
)

type Transport interface {
	Send(ctx context.Context, recipient string, entries []bid.DigestEntry) (string, error)
}

type NoticeMarker interface {
	MarkNotified(ctx context.Context, noticeID string, matchedKeywords []string) error
}

type LogWriter interface {
	Create(ctx context.Context, log database.NotificationLog) error
}

// Result is the outcome of one recipient's digest.
type Result struct {
	Recipient string `json:"recipient"`
	Notices   int    `json:"notices"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (r Result) Failed() bool {
	return r.Error != ""
}

type Summary struct {
	Recipients int      `json:"recipients"`
	Sent       int      `json:"sent"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

func (s Summary) FailedRecipients() []string {
	var failed []string
	for _, r := range s.Results {
		if r.Failed() {
			failed = append(failed, r.Recipient)
		}
	}
	return failed
}

type Dispatcher struct {
	transport Transport
	notices   NoticeMarker
	logs      LogWriter
	workers   int
	now       func() time.Time
}

func NewDispatcher(transport Transport, notices NoticeMarker, logs LogWriter, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		transport: transport,
		notices:   notices,
		logs:      logs,
		workers:   workers,
		now:       time.Now,
	}
}

// DispatchAll sends one digest per recipient through a bounded pool. A
// failing recipient never stops the others.
func (d *Dispatcher) DispatchAll(ctx context.Context, runID string, digest bid.Digest) Summary {
	recipients := make([]string, 0, len(digest))
	for recipient := range digest {
		recipients = append(recipients, recipient)
	}
	sort.Strings(recipients)

	results := make([]Result, len(recipients))
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, recipient := range recipients {
		g.Go(func() error {
			results[i] = d.SendDigest(ctx, runID, recipient, digest[recipient])
			return nil
		})
	}
	g.Wait()

	summary := Summary{Recipients: len(recipients), Results: results}
	for _, r := range results {
		if r.Failed() {
			summary.Failed += r.Notices
		} else {
			summary.Sent += r.Notices
		}
	}
	return summary
}

// SendDigest delivers entries to email as a single message, then writes one
// log row per notice. Notices are marked notified only after a successful
// send; a failed send leaves them new for the next run.
func (d *Dispatcher) SendDigest(ctx context.Context, runID, email string, entries []bid.DigestEntry) Result {
	result := Result{Recipient: email, Notices: len(entries)}
	if len(entries) == 0 {
		return result
	}

	start := time.Now()
	messageID, err := d.transport.Send(ctx, email, entries)
	attemptedAt := d.now()

	if err != nil {
		result.Error = err.Error()
		slog.Warn("Digest delivery failed", "run_id", runID, "recipient", email, "notices", len(entries), "error", err)

		for _, entry := range entries {
			errMsg := result.Error
			d.writeLog(ctx, database.NotificationLog{
				RunID:          runID,
				NoticeID:       entry.Notice.NoticeID,
				RecipientEmail: email,
				Status:         database.LogFailed,
				ErrorMessage:   &errMsg,
				AttemptedAt:    attemptedAt,
			})
		}
		return result
	}

	result.MessageID = messageID
	for _, entry := range entries {
		id := messageID
		sentAt := attemptedAt
		d.writeLog(ctx, database.NotificationLog{
			RunID:          runID,
			NoticeID:       entry.Notice.NoticeID,
			RecipientEmail: email,
			Status:         database.LogSent,
			MessageID:      &id,
			SentAt:         &sentAt,
			AttemptedAt:    attemptedAt,
		})

		if err := d.notices.MarkNotified(ctx, entry.Notice.NoticeID, entry.MatchedKeywords); err != nil {
			slog.Error("Failed to mark notice notified", "run_id", runID, "notice_id", entry.Notice.NoticeID, "error", err)
		}
	}

	slog.Info("Digest delivered", "run_id", runID, "recipient", email, "notices", len(entries), "message_id", messageID, "duration", time.Since(start))
	return result
}

func (d *Dispatcher) writeLog(ctx context.Context, log database.NotificationLog) {
	if err := d.logs.Create(ctx, log); err != nil {
		slog.Error("Failed to write notification log", "run_id", log.RunID, "notice_id", log.NoticeID, "recipient", log.RecipientEmail, "status", log.Status, "error", err)
	}
}
