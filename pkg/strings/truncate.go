// Package strings holds small text helpers shared by the table and console
// output.
package strings

import (
	"path/filepath"
	"strings"
)

const (
	// DefaultOutcomeMaxLen bounds activity outcomes in table cells.
	DefaultOutcomeMaxLen = 60

	// DefaultPathMaxLen bounds target and source paths in table cells.
	DefaultPathMaxLen = 48

	// MinTruncateLen is the smallest useful limit: one rune plus the ellipsis.
	MinTruncateLen = 4
)

const ellipsis = "..."

// TruncateLine collapses all whitespace runs (newlines included) to single
// spaces and cuts the result to maxLen runes, ending in "..." when cut.
// maxLen below MinTruncateLen is raised to MinTruncateLen.
func TruncateLine(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-len(ellipsis)]) + ellipsis
}

// TruncatePath shortens a path from the left so the interesting tail stays
// visible, e.g. ".../music/albums". Whole trailing elements are kept while
// they fit; if even the last element is too long it is cut like TruncateLine
// but from the front.
func TruncatePath(p string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}
	if len([]rune(p)) <= maxLen {
		return p
	}

	sep := string(filepath.Separator)
	parts := strings.Split(p, sep)
	budget := maxLen - len(ellipsis)

	kept := ""
	for i := len(parts) - 1; i >= 0; i-- {
		candidate := parts[i]
		if kept != "" {
			candidate += sep + kept
		}
		if len([]rune(sep+candidate)) > budget {
			break
		}
		kept = candidate
	}

	if kept == "" {
		runes := []rune(p)
		return ellipsis + string(runes[len(runes)-budget:])
	}
	return ellipsis + sep + kept
}
