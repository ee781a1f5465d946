package subscription

import (
	"context"

	"github.com/lysyi3m/bid-comb/app/bid"
)

// Origin marks store rows owned by subscription files.
const Origin = "file"

type Config struct {
	Name       string       // Derived from filename (without .yml extension)
	Email      string       `yaml:"email"`
	Owner      string       `yaml:"owner"`
	Enabled    *bool        `yaml:"enabled"`
	Keywords   []string     `yaml:"keywords"`
	Regions    []string     `yaml:"regions"`
	Categories []string     `yaml:"categories"`
	Budget     ConfigBudget `yaml:"budget"`
}

type ConfigBudget struct {
	Min *uint64 `yaml:"min"`
	Max *uint64 `yaml:"max"`
}

type Store interface {
	Upsert(ctx context.Context, sub bid.Subscription, origin string) error
	DisableMissing(ctx context.Context, origin string, keepIDs []string) (int, error)
}

// SyncResult summarizes one file-to-store sync.
type SyncResult struct {
	Loaded   int `json:"loaded"`
	Disabled int `json:"disabled"`
}
