package bid

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func kst(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

func TestParser_CompleteNotice(t *testing.T) {
	parser := NewParser(kst(t))

	raw := RawNotice{
		NoticeID:  "20250112345",
		Order:     "00",
		Title:     " 2025 교육여행 용역 ",
		Agency:    "서울특별시교육청",
		Region:    "서울특별시",
		Category:  "일반용역",
		Budget:    "50,000,000",
		Deadline:  "2025-01-15 10:00:00",
		DetailURL: "https://www.g2b.go.kr/detail?id=20250112345",
	}

	notice, err := parser.Run(raw)
	if err != nil {
		t.Fatal(err)
	}

	if notice.NoticeID != "20250112345" {
		t.Errorf("Expected notice id '20250112345', got '%s'", notice.NoticeID)
	}
	if notice.Title != "2025 교육여행 용역" {
		t.Errorf("Expected trimmed title, got '%s'", notice.Title)
	}
	if notice.Agency != "서울특별시교육청" {
		t.Errorf("Expected agency '서울특별시교육청', got '%s'", notice.Agency)
	}
	if notice.Region == nil || *notice.Region != "서울특별시" {
		t.Errorf("Expected region '서울특별시', got %v", notice.Region)
	}
	if notice.Category == nil || *notice.Category != "일반용역" {
		t.Errorf("Expected category '일반용역', got %v", notice.Category)
	}
	if notice.Budget == nil || *notice.Budget != 50_000_000 {
		t.Errorf("Expected budget 50000000, got %v", notice.Budget)
	}
	if notice.Deadline == nil {
		t.Fatal("Expected deadline to be parsed")
	}
	expected := time.Date(2025, 1, 15, 10, 0, 0, 0, kst(t))
	if !notice.Deadline.Equal(expected) {
		t.Errorf("Expected deadline %v, got %v", expected, *notice.Deadline)
	}
	if notice.URL != raw.DetailURL {
		t.Errorf("Expected detail URL, got '%s'", notice.URL)
	}
	if notice.Status != StatusNew {
		t.Errorf("Expected status new, got '%s'", notice.Status)
	}
}

func TestParser_MissingRequiredFields(t *testing.T) {
	parser := NewParser(time.UTC)

	if _, err := parser.Run(RawNotice{Title: "제목"}); !errors.Is(err, ErrMissingID) {
		t.Errorf("Expected ErrMissingID, got %v", err)
	}
	if _, err := parser.Run(RawNotice{NoticeID: "N1", Title: "   "}); !errors.Is(err, ErrMissingTitle) {
		t.Errorf("Expected ErrMissingTitle, got %v", err)
	}
}

func TestParser_Fallbacks(t *testing.T) {
	parser := NewParser(time.UTC)

	notice, err := parser.Run(RawNotice{
		NoticeID:         "N2",
		Order:            "01",
		Title:            "용역",
		DemandAgency:     "부산광역시",
		RegionFallback:   "부산",
		CategoryFallback: "용역",
		Budget:           "",
		BudgetFallback:   "1,200",
		NoticeURL:        "https://example.com/notice/N2",
	})
	if err != nil {
		t.Fatal(err)
	}

	if notice.Agency != "부산광역시" {
		t.Errorf("Expected agency fallback, got '%s'", notice.Agency)
	}
	if notice.Region == nil || *notice.Region != "부산" {
		t.Errorf("Expected region fallback, got %v", notice.Region)
	}
	if notice.Category == nil || *notice.Category != "용역" {
		t.Errorf("Expected category fallback, got %v", notice.Category)
	}
	if notice.Budget == nil || *notice.Budget != 1200 {
		t.Errorf("Expected budget fallback 1200, got %v", notice.Budget)
	}
	if notice.URL != "https://example.com/notice/N2" {
		t.Errorf("Expected secondary URL, got '%s'", notice.URL)
	}
}

func TestParser_SynthesizedURL(t *testing.T) {
	parser := NewParser(time.UTC)

	notice, err := parser.Run(RawNotice{NoticeID: "R25BK0001", Order: "000", Title: "용역", DetailURL: "not a url"})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(notice.URL, "bidno=R25BK0001") || !strings.Contains(notice.URL, "bidseq=000") {
		t.Errorf("Expected URL synthesized from notice id, got '%s'", notice.URL)
	}
}

func TestParser_DegradesMalformedOptionalFields(t *testing.T) {
	parser := NewParser(time.UTC)

	tests := []struct {
		name     string
		budget   string
		deadline string
	}{
		{"garbage budget", "미정", "2025-13-45 99:99"},
		{"negative budget", "-100", "tomorrow"},
		{"zero budget", "0", ""},
		{"fractional budget", "100.5", "2025/01/15"},
		{"budget above int64", "9223372036854775813", ""},
		{"float budget above int64", "1e19", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notice, err := parser.Run(RawNotice{NoticeID: "N", Title: "용역", Budget: tt.budget, Deadline: tt.deadline})
			if err != nil {
				t.Fatalf("Expected no error for malformed optional fields, got %v", err)
			}
			if notice.Budget != nil {
				t.Errorf("Expected nil budget, got %d", *notice.Budget)
			}
			if notice.Deadline != nil {
				t.Errorf("Expected nil deadline, got %v", *notice.Deadline)
			}
			if notice.Region != nil || notice.Category != nil {
				t.Error("Expected nil region and category")
			}
		})
	}
}

func TestParser_BudgetFormats(t *testing.T) {
	parser := NewParser(time.UTC)

	tests := map[string]uint64{
		"50,000,000":          50_000_000,
		" 1,000 원":            1000,
		"123456789012":        123_456_789_012,
		"70000000.0":          70_000_000,
		"9223372036854775807": 9_223_372_036_854_775_807,
	}

	for input, expected := range tests {
		notice, err := parser.Run(RawNotice{NoticeID: "N", Title: "용역", Budget: input})
		if err != nil {
			t.Fatal(err)
		}
		if notice.Budget == nil || *notice.Budget != expected {
			t.Errorf("Budget %q: expected %d, got %v", input, expected, notice.Budget)
		}
	}
}
