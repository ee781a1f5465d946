package bid

type Matcher struct{}

func NewMatcher() *Matcher {
	return &Matcher{}
}

// Run applies the keyword, region, category and budget checks in order. The
// first failing check rejects the notice for this subscription.
func (m *Matcher) Run(notice Notice, sub Subscription) MatchResult {
	matchedKeywords := []string{}

	if hasTerms(sub.Keywords) {
		matchedKeywords = m.matchKeywords(notice.Title, sub.Keywords)
		if len(matchedKeywords) == 0 {
			return MatchResult{}
		}
	}

	if !m.matchesPlace(notice.Region, sub.Regions) {
		return MatchResult{}
	}

	if !m.matchesPlace(notice.Category, sub.Categories) {
		return MatchResult{}
	}

	if !m.matchesBudget(notice.Budget, sub.MinBudget, sub.MaxBudget) {
		return MatchResult{}
	}

	return MatchResult{Matched: true, MatchedKeywords: matchedKeywords}
}

func (m *Matcher) matchKeywords(title string, keywords []string) []string {
	matched := make([]string, 0, len(keywords))
	seen := make(map[string]bool, len(keywords))
	for _, keyword := range keywords {
		key := fold(keyword)
		if key == "" || seen[key] {
			continue
		}
		if ContainsFold(title, keyword) {
			seen[key] = true
			matched = append(matched, keyword)
		}
	}
	return matched
}

// matchesPlace is the symmetric substring rule used for regions and
// categories: upstream naming varies in granularity ("서울" vs "서울특별시").
// An unknown notice value never rejects.
func (m *Matcher) matchesPlace(value *string, wanted []string) bool {
	if len(wanted) == 0 || value == nil || fold(*value) == "" {
		return true
	}

	considered := 0
	for _, w := range wanted {
		if fold(w) == "" {
			continue
		}
		considered++
		if ContainsFold(*value, w) || ContainsFold(w, *value) {
			return true
		}
	}
	return considered == 0
}

func (m *Matcher) matchesBudget(budget, minBudget, maxBudget *uint64) bool {
	if budget == nil {
		return true
	}
	if minBudget != nil && *budget < *minBudget {
		return false
	}
	if maxBudget != nil && *budget > *maxBudget {
		return false
	}
	return true
}

func hasTerms(terms []string) bool {
	for _, t := range terms {
		if fold(t) != "" {
			return true
		}
	}
	return false
}
