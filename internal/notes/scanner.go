package notes

import "strings"

// Mentions reports whether content references title.
// References are case-sensitive substring occurrences; there is no marker syntax.
func Mentions(content, title string) bool {
	if title == "" || len(title) > len(content) {
		return false
	}
	return strings.Contains(content, title)
}

// Scanner extracts referenced titles from note content.
// It is immutable once built and safe for concurrent use.
type Scanner struct {
	titles []string // distinct, non-empty
}

// NewScanner builds a scanner over the universe of known titles.
// Duplicate and empty titles are collapsed.
func NewScanner(titles []string) *Scanner {
	seen := make(map[string]struct{}, len(titles))
	distinct := make([]string, 0, len(titles))
	for _, t := range titles {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		distinct = append(distinct, t)
	}
	return &Scanner{titles: distinct}
}

// NewScannerForNotes builds a scanner over the titles of notes.
func NewScannerForNotes(all []Note) *Scanner {
	titles := make([]string, len(all))
	for i, n := range all {
		titles[i] = n.Title
	}
	return NewScanner(titles)
}

// Scan returns every known title that occurs in content, except self.
// Overlapping titles are all reported: "Golang" yields both "Go" and "Golang"
// when both are known.
func (s *Scanner) Scan(content, self string) TitleSet {
	refs := make(TitleSet)
	for _, t := range s.titles {
		if t == self {
			continue
		}
		if Mentions(content, t) {
			refs.Add(t)
		}
	}
	return refs
}
