package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/testcase-agent/internal/server/middleware"
	"github.com/OFFIS-RIT/testcase-agent/pkg/generate"
	"github.com/OFFIS-RIT/testcase-agent/pkg/jobs"

	"github.com/labstack/echo/v4"
)

type enhanceBody struct {
	TestCases string          `json:"test_cases" validate:"required"`
	Config    generate.Config `json:"config"`
}

func EnhanceHandler(c echo.Context) error {
	data := new(enhanceBody)
	if !bindAndValidate(c, data) {
		return invalidBody(c)
	}

	res, err := middleware.GetApp(c).Generator.Enhance(c.Request().Context(), generate.EnhanceRequest{
		TestCases: data.TestCases,
		Config:    data.Config,
	}, nil)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resultResponse{TestCases: res.TestCases, Meta: res.Meta})
}

func EnhanceAsyncHandler(c echo.Context) error {
	data := new(enhanceBody)
	if !bindAndValidate(c, data) {
		return invalidBody(c)
	}

	app := middleware.GetApp(c)
	ctx := c.Request().Context()
	req := generate.EnhanceRequest{TestCases: data.TestCases, Config: data.Config}
	cfg, err := app.Generator.Prepare(req.Config)
	if err != nil {
		return respondError(c, err)
	}

	if res, ok := app.Generator.Lookup(ctx, app.Generator.EnhanceKey(req, cfg)); ok {
		return c.JSON(http.StatusOK, cachedResponse(res))
	}

	job, err := app.Jobs.Submit(ctx, jobs.TypeEnhance, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, asyncResponse{JobID: &job.ID})
}
