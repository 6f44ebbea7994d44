package tabular

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/OFFIS-RIT/testcase-agent/internal/util"
)

// Validate parses text as CSV and requires the exact header of s, at least one
// data row and exactly Width columns in every row. A data row equal to the
// header is rejected. A surrounding markdown code
// fence and a byte order mark are ignored. The returned error is a
// *ValidationError.
func (s Schema) Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Err: ErrEmpty}
	}

	records, err := readRecords(Clean(text))
	if err != nil {
		return &ValidationError{Err: ErrParse, Line: len(records) + 1}
	}
	if len(records) == 0 {
		return &ValidationError{Err: ErrEmpty}
	}
	if !s.matchesHeader(records[0]) {
		return &ValidationError{Err: ErrHeaderMismatch, Line: 1}
	}
	if len(records) < 2 {
		return &ValidationError{Err: ErrNoRows}
	}
	for i, r := range records[1:] {
		if len(r) != s.Width() {
			return &ValidationError{Err: ErrColumnCount, Line: i + 2, Got: len(r), Want: s.Width()}
		}
		if s.matchesHeader(r) {
			return &ValidationError{Err: ErrRepeatedHeader, Line: i + 2}
		}
	}
	return nil
}

// Clean strips a byte order mark and a surrounding code fence and normalizes
// line endings to LF.
func Clean(text string) string {
	text = util.NormalizeNewlines(util.StripBOM(text))
	return stripCodeFence(text)
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") {
		return text
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[len(lines)-1]) != "```" {
		return text
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}

// readRecords returns the records parsed before the first error.
func readRecords(text string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
