package db

import (
	"errors"
	"strings"

	"github.com/kuitang/linknotes/internal/notes"
)

const (
	backlinkSeparator = ';'
	backlinkEscape    = '\\'
)

// ErrMalformedBacklinks is returned when a stored backlink column cannot be decoded
var ErrMalformedBacklinks = errors.New("malformed backlinks encoding")

// EncodeBacklinks serializes a title set into the single text column.
// Titles are sorted and joined with ';'. A ';' or '\' inside a title is
// prefixed with '\', so every set has exactly one encoding and decodes back
// to itself. The empty set encodes as "".
func EncodeBacklinks(set notes.TitleSet) string {
	var b strings.Builder
	for i, title := range set.Sorted() {
		if i > 0 {
			b.WriteByte(backlinkSeparator)
		}
		for j := 0; j < len(title); j++ {
			c := title[j]
			if c == backlinkSeparator || c == backlinkEscape {
				b.WriteByte(backlinkEscape)
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// DecodeBacklinks parses a column written by EncodeBacklinks.
// Empty segments are dropped.
func DecodeBacklinks(s string) (notes.TitleSet, error) {
	set := make(notes.TitleSet)
	if s == "" {
		return set, nil
	}

	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			set.Add(cur.String())
		}
		cur.Reset()
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case backlinkEscape:
			if i+1 >= len(s) {
				return nil, ErrMalformedBacklinks
			}
			i++
			cur.WriteByte(s[i])
		case backlinkSeparator:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return set, nil
}
