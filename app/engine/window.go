package engine

import (
	"fmt"
	"time"

	"github.com/lysyi3m/bid-comb/app/g2b"
)

// Anchor is the daily time of day that bounds fetch windows.
type Anchor struct {
	Hour   int
	Minute int
}

func ParseAnchor(value string) (Anchor, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return Anchor{}, fmt.Errorf("invalid anchor %q (want HH:MM): %w", value, err)
	}
	return Anchor{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (a Anchor) String() string {
	return fmt.Sprintf("%02d:%02d", a.Hour, a.Minute)
}

// CronSpec is the daily cron expression firing at the anchor.
func (a Anchor) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", a.Minute, a.Hour)
}

// ComputeWindow returns [previous anchor, last anchor) where last anchor is
// the most recent anchor at or before now in loc. Every run between two
// anchors gets the same window, and consecutive days share their boundary.
func ComputeWindow(now time.Time, anchor Anchor, loc *time.Location) g2b.Window {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)

	end := time.Date(local.Year(), local.Month(), local.Day(), anchor.Hour, anchor.Minute, 0, 0, loc)
	if local.Before(end) {
		end = end.AddDate(0, 0, -1)
	}
	start := end.AddDate(0, 0, -1)

	return g2b.Window{Start: start, End: end}
}
