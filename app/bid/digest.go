package bid

import (
	"strings"
)

// fallbackVocabulary is used only to label notices routed to the fallback
// recipient when no subscription is configured.
var fallbackVocabulary = []string{
	"교육여행",
	"수학여행",
	"체험학습",
	"현장체험",
	"수련활동",
	"교육",
	"여행",
	"연수",
	"캠프",
	"견학",
}

type Match struct {
	Notice       Notice
	Subscription Subscription
	Result       MatchResult
}

type Aggregator struct {
	matcher           *Matcher
	fallbackRecipient string
}

func NewAggregator(matcher *Matcher, fallbackRecipient string) *Aggregator {
	return &Aggregator{
		matcher:           matcher,
		fallbackRecipient: normalizeEmail(fallbackRecipient),
	}
}

// Run matches every notice against every enabled subscription and groups the
// hits per recipient. With no enabled subscription at all it degrades to the
// fallback recipient, if one is configured.
func (a *Aggregator) Run(notices []Notice, subs []Subscription) Digest {
	enabled := make([]Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.Enabled && normalizeEmail(sub.Email) != "" {
			enabled = append(enabled, sub)
		}
	}

	if len(enabled) == 0 {
		return a.Fallback(notices)
	}

	var matches []Match
	for _, notice := range notices {
		for _, sub := range enabled {
			result := a.matcher.Run(notice, sub)
			if result.Matched {
				matches = append(matches, Match{Notice: notice, Subscription: sub, Result: result})
			}
		}
	}

	return a.Group(matches)
}

// Group folds match triples into a digest. A notice matched by several
// subscriptions of the same recipient appears once, with the keyword union.
func (a *Aggregator) Group(matches []Match) Digest {
	digest := make(Digest)
	index := make(map[string]map[string]int)

	for _, m := range matches {
		if !m.Result.Matched {
			continue
		}
		email := normalizeEmail(m.Subscription.Email)
		if email == "" {
			continue
		}

		if index[email] == nil {
			index[email] = make(map[string]int)
		}

		if pos, ok := index[email][m.Notice.NoticeID]; ok {
			entry := &digest[email][pos]
			entry.MatchedKeywords = unionKeywords(entry.MatchedKeywords, m.Result.MatchedKeywords)
			continue
		}

		index[email][m.Notice.NoticeID] = len(digest[email])
		digest[email] = append(digest[email], DigestEntry{
			Notice:          m.Notice,
			MatchedKeywords: unionKeywords(nil, m.Result.MatchedKeywords),
		})
	}

	return digest
}

// Fallback routes every notice to the fallback recipient, labelled with the
// fixed vocabulary terms found in its title.
func (a *Aggregator) Fallback(notices []Notice) Digest {
	digest := make(Digest)
	if a.fallbackRecipient == "" || len(notices) == 0 {
		return digest
	}

	entries := make([]DigestEntry, 0, len(notices))
	for _, notice := range notices {
		entries = append(entries, DigestEntry{
			Notice:          notice,
			MatchedKeywords: a.matcher.matchKeywords(notice.Title, fallbackVocabulary),
		})
	}
	digest[a.fallbackRecipient] = entries

	return digest
}

// Notices returns the number of (recipient, notice) pairs in the digest.
func (d Digest) Notices() int {
	total := 0
	for _, entries := range d {
		total += len(entries)
	}
	return total
}

func unionKeywords(existing, added []string) []string {
	out := make([]string, 0, len(existing)+len(added))
	seen := make(map[string]bool, len(existing)+len(added))
	for _, list := range [][]string{existing, added} {
		for _, k := range list {
			key := fold(k)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, k)
		}
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
