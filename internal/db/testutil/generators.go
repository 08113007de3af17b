// Package testutil provides rapid generators for storage property tests.
// String generators are deliberately hostile: they mix delimiter bytes,
// SQL fragments, odd Unicode and large payloads.
package testutil

import (
	"strings"

	"pgregory.net/rapid"
)

// ArbitraryString generates strings including empty strings, control bytes,
// backlink delimiters, SQL injection attempts, Unicode edge cases and long text.
func ArbitraryString() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.String(),
		rapid.Just(""),
		rapid.StringMatching(`[a-zA-Z0-9 ]{0,100}`),
		rapid.StringMatching(`[\x01-\x1F]{1,10}`),
		ArbitraryDelimiterString(),
		arbitrarySQLInjection(),
		arbitraryUnicode(),
		arbitraryWhitespace(),
		arbitraryLongString(),
	)
}

// ArbitraryNoteTitle generates titles the service accepts: at least one
// non-whitespace character, otherwise unconstrained.
func ArbitraryNoteTitle() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`[a-zA-Z0-9][a-zA-Z0-9 ]{0,60}`),
		ArbitraryDelimiterString(),
		arbitrarySQLInjection(),
		arbitraryUnicode().Filter(func(s string) bool { return strings.TrimSpace(s) != "" }),
		rapid.StringN(1, 80, 320).Filter(func(s string) bool { return strings.TrimSpace(s) != "" }),
	)
}

// ArbitraryNoteContent generates content for property testing.
// Can be empty or contain any characters.
func ArbitraryNoteContent() *rapid.Generator[string] {
	return ArbitraryString()
}

// ArbitraryDelimiterString generates non-empty strings dense in the bytes the
// backlink column encoding treats specially.
func ArbitraryDelimiterString() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`[a;\\]{1,12}`),
		rapid.SampledFrom([]string{
			`;`,
			`\`,
			`\;`,
			`;;`,
			`\\`,
			`a;b`,
			`a\;b`,
			`trailing\`,
			`;leading`,
			`C:\notes\todo`,
		}),
	)
}

// ArbitraryTitleSet generates backlink sets over ArbitraryNoteTitle
func ArbitraryTitleSet() *rapid.Generator[[]string] {
	return rapid.SliceOfN(ArbitraryNoteTitle(), 0, 8)
}

// arbitrarySQLInjection generates common SQL injection patterns
func arbitrarySQLInjection() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		`' OR 1=1 --`,
		`'; DROP TABLE notes; --`,
		`" OR "1"="1`,
		`' UNION SELECT * FROM notes --`,
		`'; UPDATE notes SET backlinks = ''; --`,
		`' OR ''='`,
		`%27%20OR%20%271%27%3D%271`,
		`<script>alert('xss')</script>`,
	})
}

// arbitraryUnicode generates various Unicode edge cases
func arbitraryUnicode() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		"日本語",
		"中文测试",
		"العربية",
		"🔥🎉💻🚀",
		"emoji🔥in🎉middle",
		"Zürich",
		"Москва",
		"\u200B",
		"\uFEFF",
		"a\u0300",
		"\u202E" + "reversed" + "\u202C",
		"👨‍👩‍👧‍👦",
		"test\u00A0space",
		"line\u2028separator",
	})
}

// arbitraryWhitespace generates various whitespace patterns
func arbitraryWhitespace() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		" ",
		"\t",
		"\n",
		"\r\n",
		" \t \n ",
		"  test  ",
		"line1\nline2",
		"\u00A0",
		"\u3000",
	})
}

// arbitraryLongString generates long strings up to the content limit
func arbitraryLongString() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		length := rapid.SampledFrom([]int{
			1000,
			100000,
			1048576,
		}).Draw(t, "length")
		return strings.Repeat("abcdefghij", length/10+1)[:length]
	})
}
