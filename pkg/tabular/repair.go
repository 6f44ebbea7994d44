package tabular

import (
	"encoding/csv"
	"strings"
)

// Repair is a best-effort coercion of model output into the schema.
//
// It looks for the header line (comma or full-width comma delimited, exact or
// fuzzy), drops everything before it and rewrites every data row to Width
// columns: extra trailing cells are joined into the last column, short rows
// are padded, and blank rows or repeated headers are dropped. Cells are trimmed. Output uses CRLF
// line endings. When no header can be found, a JSON array of rows is
// converted instead; otherwise text is returned unchanged.
//
// Repair is idempotent: Repair(Repair(x)) == Repair(x).
func (s Schema) Repair(text string) string {
	if text == "" {
		return ""
	}

	cleaned := Clean(text)
	lines := nonBlankLines(cleaned)
	if len(lines) == 0 {
		return ""
	}

	idx, fullWidth := s.findHeader(lines)
	if idx < 0 {
		if out, ok := s.repairJSON(cleaned); ok {
			return out
		}
		return text
	}

	payload := strings.Join(lines[idx:], "\n")
	if fullWidth {
		payload = strings.ReplaceAll(payload, fullWidthComma, ",")
	}
	records, _ := readRecords(payload)
	if len(records) == 0 {
		return text
	}
	return s.write(records[1:])
}

func (s Schema) findHeader(lines []string) (int, bool) {
	for i, ln := range lines {
		if s.matchesHeader(strings.Split(ln, ",")) {
			return i, false
		}
		if s.matchesHeader(strings.Split(ln, fullWidthComma)) {
			return i, true
		}
	}

	if s.Width() == 0 {
		return -1, false
	}
	first, last := s.Columns[0], s.Columns[s.Width()-1]
	for i, ln := range lines {
		if !strings.Contains(ln, first) || !strings.Contains(ln, last) {
			continue
		}
		ascii := strings.Count(ln, ",")
		wide := strings.Count(ln, fullWidthComma)
		if ascii >= s.Width()-1 || wide >= s.Width()-1 {
			return i, wide > ascii
		}
	}
	return -1, false
}

// coerce fits row to Width columns. It reports false for a blank row.
func (s Schema) coerce(row []string) ([]string, bool) {
	blank := true
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			blank = false
			break
		}
	}
	if blank {
		return nil, false
	}

	w := s.Width()
	out := make([]string, w)
	for i := 0; i < w && i < len(row); i++ {
		out[i] = row[i]
	}
	if len(row) > w {
		out[w-1] = strings.Join(row[w-1:], ",")
	}
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out, true
}

func (s Schema) write(rows [][]string) string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	w.UseCRLF = true

	_ = w.Write(s.Columns)
	for _, r := range rows {
		row, ok := s.coerce(r)
		if !ok || s.matchesHeader(row) {
			continue
		}
		_ = w.Write(row)
	}
	w.Flush()
	return b.String()
}

func nonBlankLines(text string) []string {
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		if strings.TrimSpace(ln) != "" {
			lines = append(lines, ln)
		}
	}
	return lines
}
