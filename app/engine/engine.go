package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/bid-comb/app/bid"
	"github.com/lysyi3m/bid-comb/app/database"
	"github.com/lysyi3m/bid-comb/app/dispatch"
	"github.com/lysyi3m/bid-comb/app/g2b"
)

const maxRetryDelay = 30 * time.Second

type Source interface {
	FetchPage(ctx context.Context, keyword string, window g2b.Window, page, pageSize int) (g2b.Page, error)
}

type NoticeStore interface {
	InsertIfAbsent(ctx context.Context, notice bid.Notice) (bool, error)
	ListPending(ctx context.Context, createdSince, now time.Time) ([]bid.Notice, error)
	MarkNotified(ctx context.Context, noticeID string, matchedKeywords []string) error
}

type SubscriptionSource interface {
	ListEnabled(ctx context.Context) ([]bid.Subscription, error)
}

type SentChecker interface {
	HasSent(ctx context.Context, noticeID, recipientEmail string) (bool, error)
}

type RunRecorder interface {
	Start(ctx context.Context, run database.Run) error
	Finish(ctx context.Context, run database.Run) error
}

type Dispatcher interface {
	DispatchAll(ctx context.Context, runID string, digest bid.Digest) dispatch.Summary
}

type Options struct {
	Keywords          []string
	FallbackRecipient string
	Anchor            Anchor
	Location          *time.Location
	PageSize          int
	MaxPages          int
	FetchWorkers      int
	FetchRetries      int
	RetryBaseDelay    time.Duration
	PendingLookback   time.Duration
}

type Deps struct {
	Source        Source
	Notices       NoticeStore
	Subscriptions SubscriptionSource
	Logs          SentChecker
	Runs          RunRecorder
	Dispatcher    Dispatcher
	Lock          Locker
}

// Engine runs one ingestion pass per call to Run.
type Engine struct {
	opts       Options
	deps       Deps
	parser     *bid.Parser
	aggregator *bid.Aggregator
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func New(opts Options, deps Deps) *Engine {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	opts.PageSize = cmp.Or(opts.PageSize, 100)
	opts.FetchWorkers = max(opts.FetchWorkers, 1)
	opts.FetchRetries = max(opts.FetchRetries, 0)
	opts.RetryBaseDelay = cmp.Or(opts.RetryBaseDelay, time.Second)
	opts.Keywords = normalizeKeywords(opts.Keywords)
	if deps.Lock == nil {
		deps.Lock = NewLocalLock()
	}

	return &Engine{
		opts:       opts,
		deps:       deps,
		parser:     bid.NewParser(opts.Location),
		aggregator: bid.NewAggregator(bid.NewMatcher(), opts.FallbackRecipient),
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// Window is the window a run started now would cover.
func (e *Engine) Window() g2b.Window {
	return ComputeWindow(e.now(), e.opts.Anchor, e.opts.Location)
}

// Run executes ComputeWindow, FetchAndParse, Deduplicate, Match, BuildDigests,
// DispatchAll and Report in order. Every upstream page is fetched before
// anything is written, so an aborted run leaves notices untouched and can be
// retried in full.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	release, err := e.deps.Lock.Acquire(ctx)
	if err != nil {
		return Report{}, err
	}
	defer release()

	report := Report{
		RunID:     uuid.New().String(),
		State:     StateRunning,
		StartedAt: e.now(),
	}
	report.Window = ComputeWindow(report.StartedAt, e.opts.Anchor, e.opts.Location)

	if err := e.deps.Runs.Start(ctx, report.run()); err != nil {
		return report, fmt.Errorf("failed to record run: %w", err)
	}

	slog.Info("Run started", "run_id", report.RunID, "window", report.Window.String(), "keywords", len(e.opts.Keywords))

	if err := e.execute(ctx, &report); err != nil {
		return e.abort(ctx, report, err)
	}

	report.State = StateCompleted
	report.FinishedAt = e.now()
	e.finish(ctx, report)

	slog.Info("Run completed",
		"run_id", report.RunID,
		"fetched", report.Fetched,
		"inserted", report.Inserted,
		"duplicates", report.Duplicates,
		"dropped", report.Dropped,
		"pending", report.Pending,
		"matched", report.Matched,
		"skipped", report.Skipped,
		"recipients", report.Recipients,
		"sent", report.Sent,
		"failed", report.Failed,
		"failed_recipients", report.FailedRecipients,
		"duration", report.FinishedAt.Sub(report.StartedAt))

	return report, nil
}

func (e *Engine) execute(ctx context.Context, report *Report) error {
	raws, err := e.fetchAll(ctx, report.Window)
	if err != nil {
		return err
	}
	report.Fetched = len(raws)

	parsed := e.parse(raws, report)

	candidates, err := e.deduplicate(ctx, parsed, report)
	if err != nil {
		return err
	}

	subs, err := e.deps.Subscriptions.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}

	digest := e.aggregator.Run(candidates, subs)
	report.Matched = digest.Notices()

	digest, err = e.dropAlreadySent(ctx, digest, report)
	if err != nil {
		return err
	}

	summary := e.deps.Dispatcher.DispatchAll(ctx, report.RunID, digest)
	report.Recipients = summary.Recipients
	report.Sent = summary.Sent
	report.Failed = summary.Failed
	report.FailedRecipients = summary.FailedRecipients()

	return nil
}

func (e *Engine) abort(ctx context.Context, report Report, err error) (Report, error) {
	report.State = StateAborted
	report.FinishedAt = e.now()
	report.Err = err
	e.finish(ctx, report)

	if g2b.IsRetryable(err) {
		slog.Warn("Run aborted by transient upstream error", "run_id", report.RunID, "error", err)
	} else {
		slog.Error("Run aborted", "run_id", report.RunID, "alert", true, "error", err)
	}
	return report, err
}

func (e *Engine) finish(ctx context.Context, report Report) {
	if err := e.deps.Runs.Finish(context.WithoutCancel(ctx), report.run()); err != nil {
		slog.Error("Failed to record run report", "run_id", report.RunID, "error", err)
	}
}

// fetchAll queries keywords concurrently; pages of one keyword are fetched in
// order. The first error cancels the remaining keywords.
func (e *Engine) fetchAll(ctx context.Context, window g2b.Window) ([]bid.RawNotice, error) {
	keywords := e.opts.Keywords
	if len(keywords) == 0 {
		keywords = []string{""}
	}

	perKeyword := make([][]bid.RawNotice, len(keywords))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.FetchWorkers)
	for i, keyword := range keywords {
		g.Go(func() error {
			raws, err := e.fetchKeyword(gctx, keyword, window)
			if err != nil {
				return fmt.Errorf("keyword %q: %w", keyword, err)
			}
			perKeyword[i] = raws
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []bid.RawNotice
	for _, raws := range perKeyword {
		all = append(all, raws...)
	}
	return all, nil
}

func (e *Engine) fetchKeyword(ctx context.Context, keyword string, window g2b.Window) ([]bid.RawNotice, error) {
	var raws []bid.RawNotice
	seen := 0
	for page := 1; ; page++ {
		if e.opts.MaxPages > 0 && page > e.opts.MaxPages {
			slog.Warn("Page cap reached, keyword results truncated", "keyword", keyword, "max_pages", e.opts.MaxPages, "fetched", seen)
			break
		}

		result, err := e.fetchPage(ctx, keyword, window, page)
		if err != nil {
			return nil, err
		}
		raws = append(raws, result.Items...)
		seen += result.Fetched

		slog.Debug("Page fetched", "keyword", keyword, "page", page, "fetched", result.Fetched, "kept", len(result.Items), "total", result.TotalCount)

		// The gateway may serve fewer rows than requested, so only an
		// empty page or the reported total ends the keyword.
		if result.Fetched == 0 || (result.TotalCount > 0 && seen >= result.TotalCount) {
			break
		}
	}
	return raws, nil
}

func (e *Engine) fetchPage(ctx context.Context, keyword string, window g2b.Window, page int) (g2b.Page, error) {
	var lastErr error
	for attempt := 0; attempt <= e.opts.FetchRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(e.opts.RetryBaseDelay, attempt)
			slog.Warn("Retrying page fetch", "keyword", keyword, "page", page, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := e.sleep(ctx, delay); err != nil {
				return g2b.Page{}, err
			}
		}

		result, err := e.deps.Source.FetchPage(ctx, keyword, window, page, e.opts.PageSize)
		if err == nil {
			return result, nil
		}
		if !g2b.IsRetryable(err) {
			return g2b.Page{}, err
		}
		lastErr = err
	}
	return g2b.Page{}, lastErr
}

// parse drops items without identity and collapses repeats across keyword
// queries, keeping first-seen order.
func (e *Engine) parse(raws []bid.RawNotice, report *Report) []bid.Notice {
	seen := make(map[string]bool, len(raws))
	notices := make([]bid.Notice, 0, len(raws))

	for _, raw := range raws {
		notice, err := e.parser.Run(raw)
		if err != nil {
			report.Dropped++
			slog.Warn("Dropping malformed notice", "run_id", report.RunID, "notice_id", raw.NoticeID, "error", err)
			continue
		}
		if seen[notice.NoticeID] {
			continue
		}
		seen[notice.NoticeID] = true
		notices = append(notices, notice)
	}
	return notices
}

// deduplicate stores unseen notices and returns the notices to evaluate: the
// ones created by this run followed by older pending ones.
func (e *Engine) deduplicate(ctx context.Context, parsed []bid.Notice, report *Report) ([]bid.Notice, error) {
	now := e.now()
	candidates := make([]bid.Notice, 0, len(parsed))
	inRun := make(map[string]bool, len(parsed))

	for _, notice := range parsed {
		notice.CreatedAt = now
		inserted, err := e.deps.Notices.InsertIfAbsent(ctx, notice)
		if err != nil {
			return nil, fmt.Errorf("failed to store notice %s: %w", notice.NoticeID, err)
		}
		if !inserted {
			report.Duplicates++
			continue
		}
		report.Inserted++
		inRun[notice.NoticeID] = true
		candidates = append(candidates, notice)
	}

	if e.opts.PendingLookback <= 0 {
		return candidates, nil
	}

	pending, err := e.deps.Notices.ListPending(ctx, now.Add(-e.opts.PendingLookback), now)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending notices: %w", err)
	}
	for _, notice := range pending {
		if inRun[notice.NoticeID] {
			continue
		}
		report.Pending++
		candidates = append(candidates, notice)
	}

	return candidates, nil
}

// dropAlreadySent removes pairs that already have a sent log. Notices found
// that way are still new only because marking failed earlier, so they are
// marked now.
func (e *Engine) dropAlreadySent(ctx context.Context, digest bid.Digest, report *Report) (bid.Digest, error) {
	filtered := make(bid.Digest, len(digest))

	for recipient, entries := range digest {
		kept := make([]bid.DigestEntry, 0, len(entries))
		for _, entry := range entries {
			sent, err := e.deps.Logs.HasSent(ctx, entry.Notice.NoticeID, recipient)
			if err != nil {
				return nil, fmt.Errorf("failed to check delivery history: %w", err)
			}
			if !sent {
				kept = append(kept, entry)
				continue
			}

			report.Skipped++
			slog.Debug("Skipping already delivered notice", "run_id", report.RunID, "notice_id", entry.Notice.NoticeID, "recipient", recipient)
			if err := e.deps.Notices.MarkNotified(ctx, entry.Notice.NoticeID, entry.MatchedKeywords); err != nil && !errors.Is(err, database.ErrNotFound) {
				slog.Error("Failed to mark notice notified", "run_id", report.RunID, "notice_id", entry.Notice.NoticeID, "error", err)
			}
		}
		if len(kept) > 0 {
			filtered[recipient] = kept
		}
	}

	return filtered, nil
}

func retryDelay(base time.Duration, attempt int) time.Duration {
	delay := base << (attempt - 1)
	if delay <= 0 || delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	normalized := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" || seen[keyword] {
			continue
		}
		seen[keyword] = true
		normalized = append(normalized, keyword)
	}
	return normalized
}
