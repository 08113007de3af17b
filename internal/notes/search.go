package notes

import "strings"

// ContainsFold reports whether needle occurs in haystack, ignoring case.
// Search uses it; reference detection never does.
func ContainsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// MatchesQuery reports whether a note's title or content contains query, ignoring case.
func MatchesQuery(n Note, query string) bool {
	return ContainsFold(n.Title, query) || ContainsFold(n.Content, query)
}
