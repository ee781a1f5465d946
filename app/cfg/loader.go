package cfg

import (
	"cmp"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage and HTTP
	DBPath       string `long:"db-path" env:"DB_PATH" default:"./data/bid-comb.db" description:"SQLite database file"`
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Upstream bid-notice API
	G2BBaseURL    string `long:"g2b-base-url" env:"G2B_BASE_URL" default:"https://apis.data.go.kr/1230000/ad/BidPublicInfoService/getBidPblancListInfoServc" description:"Bid notice search endpoint"`
	G2BServiceKey string `long:"g2b-service-key" env:"G2B_SERVICE_KEY" description:"data.go.kr service key (required)" required:"true"`
	G2BPageSize   int    `long:"g2b-page-size" env:"G2B_PAGE_SIZE" default:"100" description:"Rows requested per page"`
	G2BTimeout    int    `long:"g2b-timeout" env:"G2B_TIMEOUT" default:"30" description:"Upstream request timeout in seconds"`
	G2BMaxPages   int    `long:"g2b-max-pages" env:"G2B_MAX_PAGES" default:"20" description:"Maximum pages fetched per keyword (0 = unlimited)"`

	// Run
	Keywords            string `long:"keywords" env:"KEYWORDS" default:"교육여행,수학여행,체험학습" description:"Comma separated keywords queried upstream"`
	FallbackRecipient   string `long:"fallback-recipient" env:"FALLBACK_RECIPIENT" description:"Recipient used when no subscription is configured"`
	Anchor              string `long:"anchor" env:"ANCHOR_TIME" default:"09:00" description:"Daily run time and window boundary (HH:MM)"`
	FetchWorkers        int    `long:"fetch-workers" env:"FETCH_WORKERS" default:"4" description:"Concurrent keyword fetches"`
	DispatchWorkers     int    `long:"dispatch-workers" env:"DISPATCH_WORKERS" default:"4" description:"Concurrent digest deliveries"`
	FetchRetries        int    `long:"fetch-retries" env:"FETCH_RETRIES" default:"3" description:"Retries per page on transient upstream errors"`
	PendingLookbackDays int    `long:"pending-lookback-days" env:"PENDING_LOOKBACK_DAYS" default:"7" description:"Days of undelivered notices re-evaluated each run (0 disables)"`
	Once                bool   `long:"once" env:"RUN_ONCE" description:"Run a single pass and exit"`

	// Mail
	SMTPHost          string `long:"smtp-host" env:"SMTP_HOST" default:"localhost" description:"SMTP server host"`
	SMTPPort          int    `long:"smtp-port" env:"SMTP_PORT" default:"587" description:"SMTP server port (465 for implicit TLS)"`
	SMTPUsername      string `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP username"`
	SMTPPassword      string `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
	MailFrom          string `long:"mail-from" env:"MAIL_FROM" default:"Bid Comb <noreply@localhost>" description:"Sender address"`
	MailSubjectPrefix string `long:"mail-subject-prefix" env:"MAIL_SUBJECT_PREFIX" default:"나라장터" description:"Prefix shown in digest subjects"`

	// Subscriptions and locking
	SubscriptionsDir string `long:"subscriptions-dir" env:"SUBSCRIPTIONS_DIR" default:"./subscriptions" description:"Directory containing subscription files"`
	SyncInterval     int    `long:"sync-interval" env:"SYNC_INTERVAL" default:"0" description:"Subscription resync interval in minutes (0 = startup and API only)"`
	RedisURL         string `long:"redis-url" env:"REDIS_URL" description:"Redis URL for a cross-process run lock (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Bid Comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"Asia/Seoul" description:"Timezone for the anchor and upstream timestamps"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses args instead of os.Args when args is non-nil.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	loc, err := time.LoadLocation(raw.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", raw.Timezone, err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		Port:              raw.Port,
		APIAccessKey:      raw.APIAccessKey,
		G2BBaseURL:        raw.G2BBaseURL,
		G2BServiceKey:     raw.G2BServiceKey,
		G2BPageSize:       raw.G2BPageSize,
		G2BTimeout:        time.Duration(raw.G2BTimeout) * time.Second,
		G2BMaxPages:       raw.G2BMaxPages,
		Keywords:          splitList(raw.Keywords),
		FallbackRecipient: strings.TrimSpace(raw.FallbackRecipient),
		Anchor:            raw.Anchor,
		FetchWorkers:      raw.FetchWorkers,
		DispatchWorkers:   raw.DispatchWorkers,
		FetchRetries:      raw.FetchRetries,
		PendingLookback:   time.Duration(raw.PendingLookbackDays) * 24 * time.Hour,
		Once:              raw.Once,
		SMTPHost:          raw.SMTPHost,
		SMTPPort:          raw.SMTPPort,
		SMTPUsername:      raw.SMTPUsername,
		SMTPPassword:      raw.SMTPPassword,
		MailFrom:          raw.MailFrom,
		MailSubjectPrefix: raw.MailSubjectPrefix,
		SubscriptionsDir:  raw.SubscriptionsDir,
		SyncInterval:      time.Duration(raw.SyncInterval) * time.Minute,
		RedisURL:          raw.RedisURL,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Location:          loc,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if cfg.G2BPageSize < 1 {
		return nil, fmt.Errorf("g2b-page-size must be positive, got %d", cfg.G2BPageSize)
	}
	if cfg.FetchRetries < 0 {
		return nil, fmt.Errorf("fetch-retries must not be negative, got %d", cfg.FetchRetries)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
