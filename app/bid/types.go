package bid

import (
	"time"
)

// Notice lifecycle

type Status string

const (
	StatusNew      Status = "new"
	StatusNotified Status = "notified"
)

type Notice struct {
	NoticeID        string
	Title           string
	Agency          string
	Region          *string
	Category        *string
	Budget          *uint64 // smallest currency unit (KRW)
	Deadline        *time.Time
	URL             string
	Status          Status
	MatchedKeywords []string
	CreatedAt       time.Time
}

// RawNotice is the canonical shape the source adapter hands to the parser.
// Every field is the upstream string as received, empty when absent.
type RawNotice struct {
	NoticeID string
	Order    string
	Title    string

	Agency       string
	DemandAgency string // fallback for Agency

	Region         string
	RegionFallback string

	Category         string
	CategoryFallback string

	Budget         string // comma-delimited, e.g. "50,000,000"
	BudgetFallback string

	Deadline string // "2006-01-02 15:04:05" or "2006-01-02 15:04"

	DetailURL   string
	NoticeURL   string // fallback for DetailURL
	PublishedAt string
}

// Subscription filters

type Subscription struct {
	ID         string
	Email      string
	OwnerRef   *string
	Keywords   []string
	Regions    []string
	Categories []string
	MinBudget  *uint64
	MaxBudget  *uint64
	Enabled    bool
}

type MatchResult struct {
	Matched         bool
	MatchedKeywords []string
}

// Digest aggregation

type DigestEntry struct {
	Notice          Notice
	MatchedKeywords []string
}

// Digest maps a recipient email to its ordered entries.
type Digest map[string][]DigestEntry
