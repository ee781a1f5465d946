package cfg

import (
	"time"
)

type Cfg struct {
	// Storage and HTTP
	DBPath       string
	Port         string
	APIAccessKey string

	// Upstream bid-notice API
	G2BBaseURL    string
	G2BServiceKey string
	G2BPageSize   int
	G2BTimeout    time.Duration
	G2BMaxPages   int

	// Run
	Keywords          []string
	FallbackRecipient string
	Anchor            string
	FetchWorkers      int
	DispatchWorkers   int
	FetchRetries      int
	PendingLookback   time.Duration
	Once              bool

	// Mail
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	MailFrom          string
	MailSubjectPrefix string

	// Subscriptions and locking
	SubscriptionsDir string
	SyncInterval     time.Duration
	RedisURL         string

	// Application metadata
	UserAgent string
	Timezone  string
	Location  *time.Location
	Debug     bool
	Version   string
}
