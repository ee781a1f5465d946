package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/bid-comb/app/bid"
)

type ConfigCache struct {
	dir     string
	cache   map[string]*Config
	missing bool
	mu      sync.RWMutex
}

func NewConfigCache(dir string) *ConfigCache {
	return &ConfigCache{
		dir:   dir,
		cache: make(map[string]*Config),
	}
}

// Run reloads every *.yml file in the directory. Files that disappeared
// since the previous run are dropped from the cache.
func (cc *ConfigCache) Run() error {
	loaded := make(map[string]*Config)

	if _, err := os.Stat(cc.dir); os.IsNotExist(err) {
		cc.replace(loaded, true)
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.dir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.loadConfig(file, name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}
		loaded[name] = config

		slog.Debug("Subscription loaded", "subscription", name, "email", config.Email, "enabled", *config.Enabled, "keywords", len(config.Keywords))
	}

	cc.replace(loaded, false)
	return nil
}

// Sync loads the directory and mirrors it into store. Subscriptions whose
// file was removed are disabled, never deleted. A missing directory leaves
// the store untouched.
func (cc *ConfigCache) Sync(ctx context.Context, store Store) (SyncResult, error) {
	if err := cc.Run(); err != nil {
		return SyncResult{}, err
	}
	if cc.DirMissing() {
		slog.Warn("Subscriptions directory not found, keeping stored subscriptions", "dir", cc.dir)
		return SyncResult{}, nil
	}

	configs := cc.GetConfigs()
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := store.Upsert(ctx, configs[name].Subscription(), Origin); err != nil {
			return SyncResult{}, fmt.Errorf("failed to store subscription %s: %w", name, err)
		}
	}

	disabled, err := store.DisableMissing(ctx, Origin, names)
	if err != nil {
		return SyncResult{}, err
	}

	return SyncResult{Loaded: len(names), Disabled: disabled}, nil
}

func (cc *ConfigCache) GetConfig(name string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	config, ok := cc.cache[name]
	if !ok {
		return nil, fmt.Errorf("subscription config with name '%s' not found", name)
	}
	return config, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

// Subscription converts the file form into the matcher's filter. The file
// name is the subscription ID.
func (c *Config) Subscription() bid.Subscription {
	sub := bid.Subscription{
		ID:         c.Name,
		Email:      strings.ToLower(strings.TrimSpace(c.Email)),
		Keywords:   cleanTerms(c.Keywords),
		Regions:    cleanTerms(c.Regions),
		Categories: cleanTerms(c.Categories),
		MinBudget:  c.Budget.Min,
		MaxBudget:  c.Budget.Max,
		Enabled:    c.Enabled == nil || *c.Enabled,
	}
	if owner := strings.TrimSpace(c.Owner); owner != "" {
		sub.OwnerRef = &owner
	}
	return sub
}

func (cc *ConfigCache) replace(configs map[string]*Config, missing bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache = configs
	cc.missing = missing
}

// DirMissing reports whether the last Run found no subscriptions directory.
func (cc *ConfigCache) DirMissing() bool {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.missing
}

func (cc *ConfigCache) loadConfig(file, name string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.Name = name
	if config.Enabled == nil {
		enabled := true
		config.Enabled = &enabled
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	if strings.TrimSpace(config.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(config.Email); err != nil {
		return fmt.Errorf("invalid email %q: %w", config.Email, err)
	}

	for _, bound := range []*uint64{config.Budget.Min, config.Budget.Max} {
		if bound != nil && *bound > math.MaxInt64 {
			return fmt.Errorf("budget %d is out of range", *bound)
		}
	}

	if config.Budget.Min != nil && config.Budget.Max != nil && *config.Budget.Min > *config.Budget.Max {
		return fmt.Errorf("budget min %d exceeds max %d", *config.Budget.Min, *config.Budget.Max)
	}

	return nil
}

func cleanTerms(terms []string) []string {
	cleaned := make([]string, 0, len(terms))
	for _, term := range terms {
		if term = strings.TrimSpace(term); term != "" {
			cleaned = append(cleaned, term)
		}
	}
	return cleaned
}
