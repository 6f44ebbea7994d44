package routes

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/internal/server/middleware"
	"github.com/OFFIS-RIT/testcase-agent/internal/uploads"

	"github.com/labstack/echo/v4"
)

// maxUploadBytes caps a single uploaded document.
const maxUploadBytes = 20 << 20

type uploadBody struct {
	Name    string `json:"name"`
	Content string `json:"content" validate:"required"`
}

type uploadResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type listResponse struct {
	Items []uploads.Record `json:"items"`
}

// readUpload takes the "file" part of a multipart form, or a JSON body with
// name and content.
func readUpload(c echo.Context) (string, string, bool) {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return "", "", false
		}
		f, err := fh.Open()
		if err != nil {
			return "", "", false
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
		if err != nil {
			return "", "", false
		}
		return fh.Filename, strings.ToValidUTF8(string(data), ""), true
	}

	body := new(uploadBody)
	if !bindAndValidate(c, body) {
		return "", "", false
	}
	return body.Name, body.Content, true
}

func uploadHandler(save func(*uploads.Store, context.Context, string, string) (*uploads.Record, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		name, content, ok := readUpload(c)
		if !ok {
			return invalidBody(c)
		}
		rec, err := save(middleware.GetApp(c).Uploads, c.Request().Context(), name, content)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, uploadResponse{ID: rec.ID, Name: rec.Name, CreatedAt: rec.CreatedAt})
	}
}

func listHandler(list func(*uploads.Store, context.Context) ([]uploads.Record, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		items, err := list(middleware.GetApp(c).Uploads, c.Request().Context())
		if err != nil {
			return respondError(c, err)
		}
		if items == nil {
			items = []uploads.Record{}
		}
		return c.JSON(http.StatusOK, listResponse{Items: items})
	}
}

func getHandler(get func(*uploads.Store, context.Context, string) (*uploads.Record, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		rec, err := get(middleware.GetApp(c).Uploads, c.Request().Context(), c.Param("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, rec)
	}
}

var (
	UploadPRDHandler = uploadHandler((*uploads.Store).SavePRD)
	ListPRDsHandler  = listHandler((*uploads.Store).ListPRDs)
	GetPRDHandler    = getHandler((*uploads.Store).GetPRD)

	UploadTestcasesHandler = uploadHandler((*uploads.Store).SaveTestcases)
	ListTestcasesHandler   = listHandler((*uploads.Store).ListTestcases)
	GetTestcasesHandler    = getHandler((*uploads.Store).GetTestcases)
)
