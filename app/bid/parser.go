package bid

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingID    = errors.New("notice id is required")
	ErrMissingTitle = errors.New("notice title is required")
)

const detailURLTemplate = "https://www.g2b.go.kr:8081/ep/invitation/publish/bidInfoDtl.do?bidno=%s&bidseq=%s"

var deadlineLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"200601021504",
	"20060102150405",
}

type Parser struct {
	location *time.Location
}

// NewParser returns a parser that interprets upstream local datetimes in loc.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{location: loc}
}

// Run converts a raw notice into a Notice. Only a missing id or title is an
// error; callers drop the item and continue with the batch.
func (p *Parser) Run(raw RawNotice) (Notice, error) {
	id := strings.TrimSpace(raw.NoticeID)
	if id == "" {
		return Notice{}, ErrMissingID
	}

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return Notice{}, fmt.Errorf("%w: %s", ErrMissingTitle, id)
	}

	notice := Notice{
		NoticeID: id,
		Title:    title,
		Agency:   cmp.Or(strings.TrimSpace(raw.Agency), strings.TrimSpace(raw.DemandAgency)),
		Region:   firstNonEmpty(raw.Region, raw.RegionFallback),
		Category: firstNonEmpty(raw.Category, raw.CategoryFallback),
		Budget:   p.parseBudget(raw.Budget),
		Deadline: p.parseDeadline(raw.Deadline),
		URL:      p.resolveURL(raw, id),
		Status:   StatusNew,
	}

	if notice.Budget == nil {
		notice.Budget = p.parseBudget(raw.BudgetFallback)
	}

	return notice, nil
}

func (p *Parser) parseBudget(value string) *uint64 {
	value = strings.TrimSpace(value)
	value = strings.TrimSuffix(value, "원")
	value = strings.ReplaceAll(value, ",", "")
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	amount, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		// Some deployments send "50000000.0"
		f, ferr := strconv.ParseFloat(value, 64)
		if ferr != nil || f < 0 || f >= math.MaxInt64 || f != float64(uint64(f)) {
			return nil
		}
		amount = uint64(f)
	}
	// Budgets are stored as signed 64-bit integers
	if amount > math.MaxInt64 {
		return nil
	}

	// Zero means "not disclosed" upstream
	if amount == 0 {
		return nil
	}
	return &amount
}

func (p *Parser) parseDeadline(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, value, p.location); err == nil {
			return &t
		}
	}
	return nil
}

func (p *Parser) resolveURL(raw RawNotice, id string) string {
	for _, candidate := range []string{raw.DetailURL, raw.NoticeURL} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if u, err := url.Parse(candidate); err == nil && u.Scheme != "" && u.Host != "" {
			return candidate
		}
	}

	order := cmp.Or(strings.TrimSpace(raw.Order), "00")
	return fmt.Sprintf(detailURLTemplate, url.QueryEscape(id), url.QueryEscape(order))
}

func firstNonEmpty(values ...string) *string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return &v
		}
	}
	return nil
}
