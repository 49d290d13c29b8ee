// Package analyzer computes filtered views over a keyword's stored URL sets.
package analyzer

import (
	"strconv"
	"strings"
)

// Filter selects URLs from a keyword's ad and result sets. A nil field means
// the parameter was not supplied.
type Filter struct {
	// AdURLContains activates ad mode: a case-sensitive substring.
	AdURLContains *string
	// Word and MatchAtLeast together activate result mode.
	Word         *string
	MatchAtLeast *string
}

// AdModeActive reports whether MatchingAdURLs will filter.
func (f Filter) AdModeActive() bool {
	return f.AdURLContains != nil
}

// ResultModeActive reports whether MatchingResultURLs will filter. A partial
// specification counts as not requested.
func (f Filter) ResultModeActive() bool {
	return f.Word != nil && f.MatchAtLeast != nil
}

// MatchingAdURLs returns the ad URLs containing f.AdURLContains, preserving
// order and duplicates. The bool is false when ad mode is inactive.
func MatchingAdURLs(urls []string, f Filter) ([]string, bool) {
	if !f.AdModeActive() {
		return nil, false
	}
	needle := *f.AdURLContains
	matched := make([]string, 0, len(urls))
	for _, u := range urls {
		if strings.Contains(u, needle) {
			matched = append(matched, u)
		}
	}
	return matched, true
}

// MatchingResultURLs returns the result URLs in which f.Word occurs at least
// f.MatchAtLeast times, case-insensitively. A threshold that is not an integer
// keeps the mode active but matches nothing.
func MatchingResultURLs(urls []string, f Filter) ([]string, bool) {
	if !f.ResultModeActive() {
		return nil, false
	}
	matched := make([]string, 0, len(urls))

	threshold, err := strconv.Atoi(strings.TrimSpace(*f.MatchAtLeast))
	if err != nil {
		return matched, true
	}

	if *f.Word == "" {
		return matched, true
	}
	for _, u := range urls {
		if CountOccurrences(u, *f.Word) >= threshold {
			matched = append(matched, u)
		}
	}
	return matched, true
}

// CountOccurrences counts the non-overlapping, case-insensitive occurrences of
// word in s. An empty word never occurs.
func CountOccurrences(s, word string) int {
	if word == "" {
		return 0
	}
	return strings.Count(strings.ToLower(s), strings.ToLower(word))
}
