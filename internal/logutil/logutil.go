package logutil

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// IsSensitiveLogField returns true when a key likely contains sensitive data.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	switch {
	case normalized == "authorization":
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "password"):
		return true
	case strings.HasSuffix(normalized, "key") && !strings.HasSuffix(normalized, "objectkey"):
		return true
	default:
		return false
	}
}

// RedactValue redacts a value when its key looks sensitive. Empty values stay
// empty so an unset secret is still visible as unset.
func RedactValue(key, value string) string {
	if value != "" && IsSensitiveLogField(key) {
		return "[REDACTED]"
	}
	return value
}

// FormatArgsForLog renders tool or request arguments as stable single-line
// text: keys sorted, sensitive values redacted, long values truncated.
func FormatArgsForLog(args map[string]any, maxValueChars int) string {
	if len(args) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprint(args[k])
		if IsSensitiveLogField(k) {
			v = "[REDACTED]"
		} else {
			v = TruncateForLog(v, maxValueChars)
		}
		parts = append(parts, fmt.Sprintf("%s=%q", k, v))
	}
	return strings.Join(parts, " ")
}

// TruncateForLog returns a single-line truncated preview for unstructured values.
// Truncation never splits a UTF-8 sequence.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\n", "\\n")
	if maxChars <= 0 || len(normalized) <= maxChars {
		return normalized
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(normalized[cut]) {
		cut--
	}
	return normalized[:cut] + "... [truncated]"
}
