package bid

import (
	"testing"
)

func TestAggregator_GroupsPerRecipient(t *testing.T) {
	aggregator := NewAggregator(NewMatcher(), "ops@example.com")

	notices := []Notice{
		{NoticeID: "N1", Title: "수학여행 용역"},
		{NoticeID: "N2", Title: "교육 캠프 운영"},
		{NoticeID: "N3", Title: "도로 포장 공사"},
	}
	subs := []Subscription{
		{ID: "s1", Email: "A@Example.com", Keywords: []string{"수학여행"}, Enabled: true},
		{ID: "s2", Email: "a@example.com", Keywords: []string{"캠프", "여행"}, Enabled: true},
		{ID: "s3", Email: "b@example.com", Enabled: true},
		{ID: "s4", Email: "c@example.com", Enabled: false},
	}

	digest := aggregator.Run(notices, subs)

	if len(digest) != 2 {
		t.Fatalf("Expected 2 recipients, got %d: %v", len(digest), digest)
	}

	a := digest["a@example.com"]
	if len(a) != 2 {
		t.Fatalf("Expected 2 entries for a@example.com, got %d", len(a))
	}
	if a[0].Notice.NoticeID != "N1" || a[1].Notice.NoticeID != "N2" {
		t.Errorf("Expected notices in input order, got %s, %s", a[0].Notice.NoticeID, a[1].Notice.NoticeID)
	}
	if len(a[0].MatchedKeywords) != 2 || a[0].MatchedKeywords[0] != "수학여행" || a[0].MatchedKeywords[1] != "여행" {
		t.Errorf("Expected keyword union [수학여행 여행], got %v", a[0].MatchedKeywords)
	}

	if len(digest["b@example.com"]) != 3 {
		t.Errorf("Expected catch-all subscription to receive 3 notices, got %d", len(digest["b@example.com"]))
	}
	if _, ok := digest["c@example.com"]; ok {
		t.Error("Disabled subscription should not receive a digest")
	}
	if _, ok := digest["ops@example.com"]; ok {
		t.Error("Fallback recipient must not be used while enabled subscriptions exist")
	}
	if digest.Notices() != 5 {
		t.Errorf("Expected 5 recipient-notice pairs, got %d", digest.Notices())
	}
}

func TestAggregator_FallbackWhenNoSubscriptions(t *testing.T) {
	aggregator := NewAggregator(NewMatcher(), " Ops@Example.com ")

	notices := []Notice{
		{NoticeID: "N1", Title: "2025 수학여행 운영 용역"},
		{NoticeID: "N2", Title: "청사 청소 용역"},
	}

	digest := aggregator.Run(notices, nil)

	entries, ok := digest["ops@example.com"]
	if !ok {
		t.Fatalf("Expected fallback recipient digest, got %v", digest)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected every notice routed to fallback, got %d", len(entries))
	}
	if len(entries[0].MatchedKeywords) == 0 || entries[0].MatchedKeywords[0] != "수학여행" {
		t.Errorf("Expected vocabulary keywords for first notice, got %v", entries[0].MatchedKeywords)
	}
	if len(entries[1].MatchedKeywords) != 0 {
		t.Errorf("Expected no vocabulary keywords for second notice, got %v", entries[1].MatchedKeywords)
	}
}

func TestAggregator_FallbackWhenOnlyDisabledSubscriptions(t *testing.T) {
	aggregator := NewAggregator(NewMatcher(), "ops@example.com")

	digest := aggregator.Run([]Notice{{NoticeID: "N1", Title: "용역"}}, []Subscription{{Email: "x@example.com", Enabled: false}})

	if len(digest["ops@example.com"]) != 1 {
		t.Errorf("Expected fallback digest, got %v", digest)
	}
}

func TestAggregator_NoFallbackConfigured(t *testing.T) {
	aggregator := NewAggregator(NewMatcher(), "")

	digest := aggregator.Run([]Notice{{NoticeID: "N1", Title: "용역"}}, nil)

	if len(digest) != 0 {
		t.Errorf("Expected empty digest, got %v", digest)
	}
}

func TestAggregator_GroupIgnoresUnmatched(t *testing.T) {
	aggregator := NewAggregator(NewMatcher(), "")

	digest := aggregator.Group([]Match{
		{Notice: Notice{NoticeID: "N1"}, Subscription: Subscription{Email: "a@example.com"}, Result: MatchResult{Matched: false}},
		{Notice: Notice{NoticeID: "N2"}, Subscription: Subscription{Email: ""}, Result: MatchResult{Matched: true}},
	})

	if len(digest) != 0 {
		t.Errorf("Expected empty digest, got %v", digest)
	}
}
