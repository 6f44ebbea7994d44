package generate

import (
	"errors"
)

// Error taxonomy of a generation run. Failures below the batch level never
// surface: a failed image is skipped, a failed vision call degrades to text
// and a failed degraded call leaves the batch empty.
var (
	ErrConfiguration  = errors.New("invalid configuration")
	ErrFormat         = errors.New("model output is not valid test case csv")
	ErrUpstream       = errors.New("upstream model call failed")
	ErrBatchExhausted = errors.New("batch produced no output")
	ErrInternal       = errors.New("internal error")
)

// IsClientError reports whether err was caused by the request rather than
// by the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
