package routes

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/OFFIS-RIT/testcase-agent/internal/server/middleware"
	"github.com/OFFIS-RIT/testcase-agent/internal/uploads"
	"github.com/OFFIS-RIT/testcase-agent/pkg/generate"
	"github.com/OFFIS-RIT/testcase-agent/pkg/jobs"

	"github.com/labstack/echo/v4"
)

type generateBody struct {
	NewPRD   string          `json:"new_prd" validate:"required_without=NewPRDID"`
	NewPRDID string          `json:"new_prd_id"`
	OldPRD   string          `json:"old_prd"`
	OldPRDID string          `json:"old_prd_id"`
	Config   generate.Config `json:"config"`
}

// request resolves upload IDs into document text.
func (b *generateBody) request(ctx context.Context, store *uploads.Store) (generate.Request, error) {
	req := generate.Request{NewPRD: b.NewPRD, OldPRD: b.OldPRD, Config: b.Config}
	if b.NewPRDID != "" {
		rec, err := store.GetPRD(ctx, b.NewPRDID)
		if err != nil {
			return req, fmt.Errorf("new_prd_id %s: %w", b.NewPRDID, err)
		}
		req.NewPRD = rec.Content
	}
	if b.OldPRDID != "" {
		rec, err := store.GetPRD(ctx, b.OldPRDID)
		if err != nil {
			return req, fmt.Errorf("old_prd_id %s: %w", b.OldPRDID, err)
		}
		req.OldPRD = rec.Content
	}
	return req, nil
}

type resultResponse struct {
	TestCases string        `json:"test_cases"`
	Meta      generate.Meta `json:"meta"`
}

type asyncResponse struct {
	JobID  *string        `json:"job_id"`
	Cached bool           `json:"cached"`
	Result string         `json:"result,omitempty"`
	Meta   *generate.Meta `json:"meta,omitempty"`
}

func cachedResponse(res generate.Result) asyncResponse {
	return asyncResponse{Cached: true, Result: res.TestCases, Meta: &res.Meta}
}

// GenerateHandler runs a generation and answers with the test cases.
func GenerateHandler(c echo.Context) error {
	data := new(generateBody)
	if !bindAndValidate(c, data) {
		return invalidBody(c)
	}

	app := middleware.GetApp(c)
	ctx := c.Request().Context()
	req, err := data.request(ctx, app.Uploads)
	if err != nil {
		return respondError(c, err)
	}

	res, err := app.Generator.Generate(ctx, req, nil)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resultResponse{TestCases: res.TestCases, Meta: res.Meta})
}

// GenerateAsyncHandler starts a generation job, or answers from the cache.
func GenerateAsyncHandler(c echo.Context) error {
	data := new(generateBody)
	if !bindAndValidate(c, data) {
		return invalidBody(c)
	}

	app := middleware.GetApp(c)
	ctx := c.Request().Context()
	req, err := data.request(ctx, app.Uploads)
	if err != nil {
		return respondError(c, err)
	}
	if strings.TrimSpace(req.NewPRD) == "" {
		return respondError(c, fmt.Errorf("%w: document is empty", generate.ErrConfiguration))
	}
	cfg, err := app.Generator.Prepare(req.Config)
	if err != nil {
		return respondError(c, err)
	}

	if res, ok := app.Generator.Lookup(ctx, app.Generator.GenerateKey(req, cfg)); ok {
		return c.JSON(http.StatusOK, cachedResponse(res))
	}

	job, err := app.Jobs.Submit(ctx, jobs.TypeGenerate, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, asyncResponse{JobID: &job.ID})
}

// JobStatusHandler returns the job snapshot.
func JobStatusHandler(c echo.Context) error {
	job, err := middleware.GetApp(c).Jobs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}
