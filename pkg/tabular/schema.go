// Package tabular merges per-batch CSV fragments and checks or repairs the
// result against the fixed test case schema.
package tabular

import (
	"errors"
	"fmt"
	"strings"
)

// Header columns of the test case CSV: case ID, module, sub-module,
// test item, preconditions, steps, expected result, case type.
var DefaultColumns = []string{
	"用例ID",
	"模块",
	"子模块",
	"测试项",
	"前置条件",
	"操作步骤",
	"预期结果",
	"用例类型",
}

// fullWidthComma is the delimiter models sometimes emit for CJK text.
const fullWidthComma = "，"

var (
	ErrEmpty          = errors.New("output is empty")
	ErrParse          = errors.New("output is not parseable as csv")
	ErrHeaderMismatch = errors.New("header does not match the expected columns")
	ErrNoRows         = errors.New("no data rows")
	ErrColumnCount    = errors.New("row has the wrong number of columns")
	ErrRepeatedHeader = errors.New("header repeated as a data row")
)

// ValidationError describes why a CSV text failed validation.
// Line is the 1-based record number, 0 when not tied to a record.
type ValidationError struct {
	Err  error
	Line int
	Got  int
	Want int
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Err, ErrColumnCount):
		return fmt.Sprintf("line %d has %d columns, expected %d", e.Line, e.Got, e.Want)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Schema is an ordered tuple of column names.
type Schema struct {
	Columns []string
}

// Default is the schema of the generated test case CSV.
var Default = Schema{Columns: DefaultColumns}

// Width is the number of columns.
func (s Schema) Width() int {
	return len(s.Columns)
}

// HeaderLine renders the header as a plain comma separated line.
func (s Schema) HeaderLine() string {
	return strings.Join(s.Columns, ",")
}

func (s Schema) matchesHeader(cells []string) bool {
	if len(cells) != len(s.Columns) {
		return false
	}
	for i, c := range cells {
		if strings.TrimSpace(c) != s.Columns[i] {
			return false
		}
	}
	return true
}

// Validate checks text against the default schema.
func Validate(text string) error {
	return Default.Validate(text)
}

// Repair coerces text towards the default schema.
func Repair(text string) string {
	return Default.Repair(text)
}
