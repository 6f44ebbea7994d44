package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	mid "github.com/OFFIS-RIT/testcase-agent/internal/server/middleware"
	"github.com/OFFIS-RIT/testcase-agent/internal/uploads"
	"github.com/OFFIS-RIT/testcase-agent/pkg/ai"
	"github.com/OFFIS-RIT/testcase-agent/pkg/cache"
	"github.com/OFFIS-RIT/testcase-agent/pkg/generate"
	"github.com/OFFIS-RIT/testcase-agent/pkg/jobs"
	"github.com/OFFIS-RIT/testcase-agent/pkg/tabular"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCSV = "用例ID,模块,子模块,测试项,前置条件,操作步骤,预期结果,用例类型\nTC-登录-0001,登录,密码,正确密码,已注册,输入密码,登录成功,功能"

type stubClient struct {
	calls atomic.Int32
	reply string
}

func (s *stubClient) GenerateChat(context.Context, []ai.ChatMessage, ...ai.GenerateOption) (string, error) {
	s.calls.Add(1)
	return s.reply, nil
}
func (s *stubClient) ResetMetrics()               {}
func (s *stubClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

type testServer struct {
	e      *echo.Echo
	client *stubClient
	app    *mid.App
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	client := &stubClient{reply: validCSV}
	svc := generate.NewService(generate.NewServiceParams{
		Defaults:      generate.Config{APIKey: "sk-default", TextModel: "text-model"},
		Cache:         cache.NewMemoryCache(time.Hour, 0),
		ClientFactory: func(generate.Config) (ai.ChatClient, error) { return client, nil },
		BackoffBase:   time.Millisecond,
	})

	m := jobs.NewManager(jobs.NewManagerParams{})
	m.SetDispatcher(jobs.DispatcherFunc(func(ctx context.Context, task jobs.Task) error {
		return m.Execute(ctx, task)
	}))
	svc.Register(m)

	app := &mid.App{
		Generator: svc,
		Jobs:      m,
		Uploads:   uploads.NewStore(uploads.NewMemoryBackend()),
		APIKey:    apiKey,
	}
	return &testServer{e: New(app), client: client, app: app}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type resultBody struct {
	TestCases string        `json:"test_cases"`
	Meta      generate.Meta `json:"meta"`
	Message   string        `json:"message"`
}

type asyncBody struct {
	JobID  *string        `json:"job_id"`
	Cached bool           `json:"cached"`
	Result string         `json:"result"`
	Meta   *generate.Meta `json:"meta"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)

	rec := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGenerate_Sync(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodPost, "/api/generate", map[string]any{"new_prd": "# Login\npassword rules"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[resultBody](t, rec)
	assert.Equal(t, generate.ModeTextFallback, body.Meta.Mode)
	assert.NoError(t, tabular.Validate(body.TestCases))

	again := decode[resultBody](t, s.do(t, http.MethodPost, "/api/generate", map[string]any{"new_prd": "# Login\npassword rules"}))
	assert.True(t, again.Meta.Cached)
	assert.EqualValues(t, 1, s.client.calls.Load())
}

func TestGenerate_Errors(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodPost, "/api/generate", map[string]any{"old_prd": "only old"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode[resultBody](t, rec).Message)

	rec = s.do(t, http.MethodPost, "/api/generate", `{"new_prd":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/generate", map[string]any{
		"new_prd": "# A\nb",
		"config":  map[string]any{"provider": "carrier-pigeon"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[resultBody](t, rec).Message, "invalid configuration")

	rec = s.do(t, http.MethodPost, "/api/generate", map[string]any{"new_prd_id": "0123456789abcdef"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Zero(t, s.client.calls.Load())
}

func TestGenerate_FormatErrorIs422(t *testing.T) {
	s := newTestServer(t, "")
	s.client.reply = "I am not a CSV"

	disabled := false
	rec := s.do(t, http.MethodPost, "/api/generate", map[string]any{
		"new_prd": "# Page\nlayout\n![a](http://img.example/a.png)",
		"config": generate.Config{
			VisionModel:    "vision-model",
			DisableVision:  &disabled,
			ImageEmbedMode: generate.EmbedMarkdown,
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestGenerate_FromUploadedPRD(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodPost, "/api/uploads/prds", map[string]any{"name": "v2.md", "content": "# Login\nnew rules"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	up := decode[uploads.Record](t, rec)

	rec = s.do(t, http.MethodPost, "/api/generate", map[string]any{"new_prd_id": up.ID, "old_prd": "# Login\nold rules"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, generate.ModeIncremental, decode[resultBody](t, rec).Meta.Mode)
}

func TestGenerateAsync_JobThenCache(t *testing.T) {
	s := newTestServer(t, "")
	payload := map[string]any{"new_prd": "# Search\nquery box"}

	rec := s.do(t, http.MethodPost, "/api/generate_async", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	started := decode[asyncBody](t, rec)
	require.NotNil(t, started.JobID)
	assert.False(t, started.Cached)

	rec = s.do(t, http.MethodGet, "/api/job_status/"+*started.JobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[jobs.Job](t, rec)
	assert.Equal(t, jobs.StatusDone, job.Status)
	assert.Equal(t, jobs.Progress{Current: 1, Total: 1}, job.Progress)
	require.NotNil(t, job.ETASeconds)
	assert.Equal(t, 0, *job.ETASeconds)
	assert.NoError(t, tabular.Validate(job.Result))

	rec = s.do(t, http.MethodPost, "/api/generate_async", payload)
	cached := decode[asyncBody](t, rec)
	assert.Nil(t, cached.JobID)
	assert.True(t, cached.Cached)
	assert.Equal(t, job.Result, cached.Result)
	require.NotNil(t, cached.Meta)
	assert.EqualValues(t, 1, s.client.calls.Load())
}

func TestJobStatus_Unknown(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(t, http.MethodGet, "/api/job_status/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"job not found"}`, rec.Body.String())
}

func TestEnhance(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodPost, "/api/enhance", map[string]any{"test_cases": validCSV})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, generate.ModeEnhance, decode[resultBody](t, rec).Meta.Mode)

	rec = s.do(t, http.MethodPost, "/api/enhance_async", map[string]any{"test_cases": validCSV})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[asyncBody](t, rec).Cached)

	rec = s.do(t, http.MethodPost, "/api/enhance", map[string]any{"test_cases": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidate(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, http.MethodPost, "/api/validate", map[string]any{"test_cases": validCSV})
	assert.JSONEq(t, `{"valid":true}`, rec.Body.String())

	fenced := "Here you go:\n" + strings.ReplaceAll(validCSV, ",", "，")
	rec = s.do(t, http.MethodPost, "/api/validate", map[string]any{"test_cases": fenced})
	var body struct {
		Valid    bool   `json:"valid"`
		Reason   string `json:"reason"`
		Repaired string `json:"repaired"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Valid)
	assert.NotEmpty(t, body.Reason)
	assert.NoError(t, tabular.Validate(body.Repaired))
}

func TestUploads_MultipartAndList(t *testing.T) {
	s := newTestServer(t, "")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "cases.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte(validCSV))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/testcases", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	up := decode[uploads.Record](t, rec)
	assert.Equal(t, "cases.csv", up.Name)

	rec = s.do(t, http.MethodGet, "/api/uploads/testcases/"+up.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, validCSV, decode[uploads.Record](t, rec).Content)

	rec = s.do(t, http.MethodGet, "/api/uploads/testcases", nil)
	list := decode[struct {
		Items []uploads.Record `json:"items"`
	}](t, rec)
	require.Len(t, list.Items, 1)
	assert.Empty(t, list.Items[0].Content)

	rec = s.do(t, http.MethodGet, "/api/uploads/prds", nil)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/uploads/prds/"+up.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/uploads/prds", map[string]any{"name": "empty.md"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, "secret")

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/health", nil, "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/health", nil, "Authorization", "Bearer secret").Code)
}
