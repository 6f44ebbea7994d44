package middleware

import (
	"github.com/OFFIS-RIT/testcase-agent/internal/uploads"
	"github.com/OFFIS-RIT/testcase-agent/pkg/generate"
	"github.com/OFFIS-RIT/testcase-agent/pkg/jobs"

	"github.com/labstack/echo/v4"
)

// App holds the long-lived services shared by all handlers.
type App struct {
	Generator *generate.Service
	Jobs      *jobs.Manager
	Uploads   *uploads.Store
	APIKey    string
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{c, app})
		}
	}
}

// GetApp returns the App of the request.
func GetApp(c echo.Context) *App {
	return c.(*AppContext).App
}
