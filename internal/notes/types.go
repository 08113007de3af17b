package notes

import (
	"encoding/json"
	"errors"
	"slices"
	"time"
)

// Error sentinels for note operations
var (
	// ErrNotFound is returned by stores and the service when a note id does not exist
	ErrNotFound = errors.New("note not found")

	// ErrTitleRequired is returned when a title is empty or only whitespace
	ErrTitleRequired = errors.New("title is required")
)

// TitleSet is an unordered set of note titles.
// The zero value is an empty set ready for reads; use NewTitleSet before Add.
type TitleSet map[string]struct{}

// NewTitleSet returns a set holding the given titles.
func NewTitleSet(titles ...string) TitleSet {
	s := make(TitleSet, len(titles))
	for _, t := range titles {
		s[t] = struct{}{}
	}
	return s
}

// Add inserts title into the set.
func (s TitleSet) Add(title string) {
	s[title] = struct{}{}
}

// Has reports whether title is in the set.
func (s TitleSet) Has(title string) bool {
	_, ok := s[title]
	return ok
}

// Len returns the number of titles.
func (s TitleSet) Len() int {
	return len(s)
}

// Sorted returns the titles in lexical order.
func (s TitleSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Equal reports whether both sets hold the same titles.
func (s TitleSet) Equal(other TitleSet) bool {
	if len(s) != len(other) {
		return false
	}
	for t := range s {
		if !other.Has(t) {
			return false
		}
	}
	return true
}

// Union returns a new set holding the titles of s and other.
func (s TitleSet) Union(other TitleSet) TitleSet {
	out := make(TitleSet, len(s)+len(other))
	for t := range s {
		out.Add(t)
	}
	for t := range other {
		out.Add(t)
	}
	return out
}

// Clone returns an independent copy.
func (s TitleSet) Clone() TitleSet {
	out := make(TitleSet, len(s))
	for t := range s {
		out.Add(t)
	}
	return out
}

// MarshalJSON encodes the set as a sorted array so responses are stable.
func (s TitleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of titles.
func (s *TitleSet) UnmarshalJSON(data []byte) error {
	var titles []string
	if err := json.Unmarshal(data, &titles); err != nil {
		return err
	}
	*s = NewTitleSet(titles...)
	return nil
}

// MarshalYAML encodes the set as a sorted sequence.
func (s TitleSet) MarshalYAML() (any, error) {
	return s.Sorted(), nil
}

// Note represents a note together with its derived backlinks
type Note struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"content"`
	Backlinks TitleSet  `json:"backlinks" yaml:"backlinks"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a copy that shares no mutable state with n.
func (n Note) Clone() Note {
	out := n
	out.Backlinks = n.Backlinks.Clone()
	return out
}

// NoteListResult is the full, ordered set of notes at one settled state
type NoteListResult struct {
	Notes      []Note `json:"notes"`
	TotalCount int    `json:"total_count"`
}

// CreateNoteParams contains parameters for creating a note
type CreateNoteParams struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateNoteParams contains parameters for updating a note
// Both Title and Content are optional (pointer to distinguish empty string from omitted)
type UpdateNoteParams struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// RebuildResult reports what a full graph recompute changed
type RebuildResult struct {
	NotesScanned   int `json:"notes_scanned"`
	NotesRewritten int `json:"notes_rewritten"`
}
