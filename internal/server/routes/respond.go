package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/testcase-agent/internal/server/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"

	"github.com/labstack/echo/v4"
)

type messageResponse struct {
	Message string `json:"message"`
}

func respondError(c echo.Context, err error) error {
	status := util.StatusFromError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
	} else {
		logger.Debug("[Server] Request rejected", "path", c.Path(), "status", status, "err", err)
	}
	return c.JSON(status, messageResponse{Message: util.MessageFromError(err)})
}

func invalidBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request body"})
}

// bindAndValidate decodes the body into data and runs its validate tags.
func bindAndValidate(c echo.Context, data any) bool {
	if err := c.Bind(data); err != nil {
		return false
	}
	return c.Validate(data) == nil
}

func HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
