// Package strings holds small text helpers shared by the reporters and the
// CLI.
package strings

import (
	"strings"
)

// DefaultReasonMaxLen bounds failure reasons in tabular output.
const DefaultReasonMaxLen = 80

// MinTruncateLen is the smallest useful width: one character plus "...".
const MinTruncateLen = 4

// Truncate collapses all whitespace in s to single spaces and cuts it to
// maxLen runes, ending in "..." when shortened. maxLen is clamped to
// MinTruncateLen.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// FirstLine returns the first non-blank line of s, trimmed.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// ShellQuote quotes s for a POSIX shell when it holds characters the shell
// would interpret. Test ids with modes contain "~", which some shells expand.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=,+@", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// JoinQuoted shell-quotes every element and joins them with spaces.
func JoinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = ShellQuote(item)
	}
	return strings.Join(quoted, " ")
}
