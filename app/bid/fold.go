package bid

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// fold normalizes text for substring comparison: NFC composition (upstream
// Hangul sometimes arrives decomposed), full-width to half-width, and
// Unicode case folding.
func fold(s string) string {
	s = norm.NFC.String(s)
	s = width.Fold.String(s)
	return cases.Fold().String(strings.TrimSpace(s))
}

// ContainsFold reports whether needle occurs in haystack after folding both.
func ContainsFold(haystack, needle string) bool {
	n := fold(needle)
	if n == "" {
		return false
	}
	return strings.Contains(fold(haystack), n)
}
