package server

import (
	"github.com/OFFIS-RIT/testcase-agent/internal/server/middleware"
	"github.com/OFFIS-RIT/testcase-agent/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)
	apiRoutes.GET("/health", routes.HealthHandler)

	// Generation routes
	apiRoutes.POST("/generate", routes.GenerateHandler)
	apiRoutes.POST("/generate_async", routes.GenerateAsyncHandler)
	apiRoutes.POST("/enhance", routes.EnhanceHandler)
	apiRoutes.POST("/enhance_async", routes.EnhanceAsyncHandler)
	apiRoutes.GET("/job_status/:id", routes.JobStatusHandler)
	apiRoutes.POST("/validate", routes.ValidateHandler)

	// Upload routes
	apiRoutes.POST("/uploads/prds", routes.UploadPRDHandler)
	apiRoutes.GET("/uploads/prds", routes.ListPRDsHandler)
	apiRoutes.GET("/uploads/prds/:id", routes.GetPRDHandler)
	apiRoutes.POST("/uploads/testcases", routes.UploadTestcasesHandler)
	apiRoutes.GET("/uploads/testcases", routes.ListTestcasesHandler)
	apiRoutes.GET("/uploads/testcases/:id", routes.GetTestcasesHandler)
}
