package cfg

import (
	"os"
	"testing"
	"time"
)

func unsetenv(t *testing.T, key string) {
	t.Helper()
	if value, ok := os.LookupEnv(key); ok {
		os.Unsetenv(key)
		t.Cleanup(func() { os.Setenv(key, value) })
	}
}

func clearEnv(t *testing.T) {
	for _, key := range []string{"TZ", "G2B_SERVICE_KEY", "KEYWORDS", "ANCHOR_TIME", "G2B_PAGE_SIZE", "FETCH_RETRIES", "SYNC_INTERVAL", "RUN_ONCE"} {
		unsetenv(t, key)
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestLoadArgsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadArgs([]string{"--g2b-service-key", "secret"})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.G2BServiceKey != "secret" {
		t.Errorf("Expected service key 'secret', got '%s'", cfg.G2BServiceKey)
	}
	if cfg.Timezone != "Asia/Seoul" || cfg.Location == nil || cfg.Location.String() != "Asia/Seoul" {
		t.Errorf("Expected Asia/Seoul location, got %s / %v", cfg.Timezone, cfg.Location)
	}
	if cfg.Anchor != "09:00" {
		t.Errorf("Expected anchor '09:00', got '%s'", cfg.Anchor)
	}
	if cfg.G2BPageSize != 100 {
		t.Errorf("Expected page size 100, got %d", cfg.G2BPageSize)
	}
	if cfg.G2BTimeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", cfg.G2BTimeout)
	}
	if cfg.FetchWorkers != 4 || cfg.DispatchWorkers != 4 {
		t.Errorf("Expected 4 workers, got %d / %d", cfg.FetchWorkers, cfg.DispatchWorkers)
	}
	if cfg.PendingLookback != 7*24*time.Hour {
		t.Errorf("Expected 7 day lookback, got %v", cfg.PendingLookback)
	}
	if len(cfg.Keywords) != 3 || cfg.Keywords[0] != "교육여행" {
		t.Errorf("Expected default keywords, got %v", cfg.Keywords)
	}
	if Get() != cfg {
		t.Error("Expected Get to return the loaded configuration")
	}
}

func TestLoadArgsOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("G2B_SERVICE_KEY", "from-env")
	t.Setenv("KEYWORDS", " 캠프 , ,연수 ")
	t.Setenv("TZ", "UTC")

	cfg, err := LoadArgs([]string{"--anchor", "07:30", "--once", "--sync-interval", "15"})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.G2BServiceKey != "from-env" {
		t.Errorf("Expected service key from env, got '%s'", cfg.G2BServiceKey)
	}
	if len(cfg.Keywords) != 2 || cfg.Keywords[0] != "캠프" || cfg.Keywords[1] != "연수" {
		t.Errorf("Expected trimmed keywords [캠프 연수], got %v", cfg.Keywords)
	}
	if cfg.Location != time.UTC {
		t.Errorf("Expected UTC, got %v", cfg.Location)
	}
	if cfg.Anchor != "07:30" || !cfg.Once {
		t.Errorf("Expected anchor 07:30 and once, got %s / %v", cfg.Anchor, cfg.Once)
	}
	if cfg.SyncInterval != 15*time.Minute {
		t.Errorf("Expected 15m sync interval, got %v", cfg.SyncInterval)
	}
}

func TestLoadArgsErrors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing service key", []string{}},
		{"invalid timezone", []string{"--g2b-service-key", "k", "--timezone", "Mars/Olympus"}},
		{"invalid page size", []string{"--g2b-service-key", "k", "--g2b-page-size", "0"}},
		{"negative retries", []string{"--g2b-service-key", "k", "--fetch-retries", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadArgs(tt.args); err == nil {
				t.Error("Expected error")
			}
		})
	}
}
