package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/testcase-agent/pkg/tabular"

	"github.com/labstack/echo/v4"
)

type validateBody struct {
	TestCases string `json:"test_cases" validate:"required"`
}

type validateResponse struct {
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
	Repaired string `json:"repaired,omitempty"`
}

// ValidateHandler checks a CSV against the test case schema and offers a
// repaired version when repair makes it valid.
func ValidateHandler(c echo.Context) error {
	data := new(validateBody)
	if !bindAndValidate(c, data) {
		return invalidBody(c)
	}

	err := tabular.Validate(data.TestCases)
	if err == nil {
		return c.JSON(http.StatusOK, validateResponse{Valid: true})
	}

	resp := validateResponse{Reason: err.Error()}
	if repaired := tabular.Repair(data.TestCases); tabular.Validate(repaired) == nil {
		resp.Repaired = repaired
	}
	return c.JSON(http.StatusOK, resp)
}
