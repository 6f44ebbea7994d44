package tabular

import (
	"strings"

	"github.com/OFFIS-RIT/testcase-agent/internal/util"
)

// Merge concatenates per-batch CSV texts in order. The first line of the first
// non-empty chunk is kept as the only header; the first line of every later
// chunk is dropped as a repeated header. Empty lines are discarded and the
// result uses CRLF line endings.
func Merge(chunks []string) string {
	var (
		header string
		found  bool
		rows   []string
	)

	for _, chunk := range chunks {
		if chunk == "" {
			continue
		}
		lines := nonEmptyLines(util.NormalizeNewlines(chunk))
		if len(lines) == 0 {
			continue
		}
		if !found {
			header = lines[0]
			found = true
		}
		rows = append(rows, lines[1:]...)
	}

	if !found {
		return ""
	}
	return strings.Join(append([]string{header}, rows...), "\r\n")
}

func nonEmptyLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := raw[:0]
	for _, ln := range raw {
		if ln != "" {
			lines = append(lines, ln)
		}
	}
	return lines
}
