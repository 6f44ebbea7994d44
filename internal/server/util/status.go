package util

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/testcase-agent/internal/uploads"
	"github.com/OFFIS-RIT/testcase-agent/pkg/generate"
	"github.com/OFFIS-RIT/testcase-agent/pkg/jobs"
)

// StatusFromError maps a service error to its HTTP status.
func StatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case generate.IsClientError(err), errors.Is(err, uploads.ErrEmpty):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, uploads.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generate.ErrFormat):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// MessageFromError is the text shown to the client. Errors outside the known
// taxonomy are not echoed.
func MessageFromError(err error) string {
	known := []error{
		generate.ErrConfiguration,
		generate.ErrFormat,
		generate.ErrUpstream,
		uploads.ErrEmpty,
		uploads.ErrNotFound,
		jobs.ErrNotFound,
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return err.Error()
		}
	}
	return "Internal server error"
}
