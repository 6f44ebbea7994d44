// Package generate turns requirements documents into test case CSV by
// orchestrating batched model calls.
package generate

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/ai"
	"github.com/OFFIS-RIT/testcase-agent/pkg/cache"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"
	"github.com/OFFIS-RIT/testcase-agent/pkg/ratelimit"
	"github.com/OFFIS-RIT/testcase-agent/pkg/tabular"
	"github.com/OFFIS-RIT/testcase-agent/pkg/vision"

	"golang.org/x/sync/singleflight"
)

const (
	ModeIncremental      = "incremental"
	ModeTextFallback     = "full-text-fallback"
	ModeNoImages         = "full-no-images"
	ModeVisionMultimodal = "full-vision-multimodal"
	ModeEnhance          = "enhance"

	enhanceTemperature = 0.7
)

// Request asks for test cases for NewPRD. With OldPRD set, only the changes
// between the two versions are covered.
type Request struct {
	OldPRD string `json:"old_prd,omitempty"`
	NewPRD string `json:"new_prd"`
	Config Config `json:"config"`
}

// EnhanceRequest asks for an existing test case list to be completed.
type EnhanceRequest struct {
	TestCases string `json:"test_cases"`
	Config    Config `json:"config"`
}

// Meta describes how a result was produced.
type Meta struct {
	Mode            string `json:"mode"`
	ModelUsed       string `json:"model_used"`
	UseVision       bool   `json:"use_vision"`
	TotalBatches    int    `json:"total_batches,omitempty"`
	TotalImages     int    `json:"total_images,omitempty"`
	TotalSections   int    `json:"total_sections,omitempty"`
	DegradedBatches int    `json:"degraded_batches,omitempty"`
	EmptyBatches    int    `json:"empty_batches,omitempty"`
	Cached          bool   `json:"cached,omitempty"`

	// Usage sums the provider calls of the run that produced the result.
	Usage *ai.ModelMetrics `json:"usage,omitempty"`
}

type Result struct {
	TestCases string `json:"test_cases"`
	Meta      Meta   `json:"meta"`
}

// Progress receives unit counts while a request runs. *jobs.Tracker
// implements it.
type Progress interface {
	SetTotal(ctx context.Context, total int)
	Advance(ctx context.Context)
}

type noProgress struct{}

func (noProgress) SetTotal(context.Context, int) {}
func (noProgress) Advance(context.Context)       {}

// Service runs generation and enhancement requests. One Service, and with it
// one rate limiter, is shared by every request of the process.
type Service struct {
	defaults      Config
	limiter       *ratelimit.Limiter
	cache         cache.Cache
	clientFactory ClientFactory

	fullTemplate string
	diffTemplate string

	maxRetries  int
	backoffBase time.Duration
	callTimeout time.Duration

	imageHTTP       *http.Client
	imageTimeout    time.Duration
	imageAttempts   int
	imageRetryDelay time.Duration

	group singleflight.Group
}

// NewServiceParams configures a Service.
//
// Limiter defaults to one built from MaxConcurrentCalls and MinCallInterval.
// Cache may be nil to disable caching. ClientFactory defaults to
// NewChatClient. Empty templates select the built-in prompts.
type NewServiceParams struct {
	Defaults      Config
	Limiter       *ratelimit.Limiter
	Cache         cache.Cache
	ClientFactory ClientFactory

	FullTemplate string
	DiffTemplate string

	MaxConcurrentCalls int64
	MinCallInterval    time.Duration
	MaxRetries         int
	BackoffBase        time.Duration
	CallTimeout        time.Duration

	ImageFetchTimeout    time.Duration
	ImageFetchAttempts   int
	ImageFetchRetryDelay time.Duration
	ImageInsecureTLS     bool
}

// ParamsFromEnv reads the process-wide settings. Cache and Limiter are left
// for the caller to wire.
func ParamsFromEnv() NewServiceParams {
	full, err := ai.LoadTemplate(util.GetEnv("PROMPT_TEMPLATE_FULL_PATH"), ai.FullPromptTemplate)
	if err != nil {
		logger.Warn("[Generate] Using built-in full template", "err", err)
	}
	diff, err := ai.LoadTemplate(util.GetEnv("PROMPT_TEMPLATE_DIFF_PATH"), ai.DiffPromptTemplate)
	if err != nil {
		logger.Warn("[Generate] Using built-in diff template", "err", err)
	}

	return NewServiceParams{
		Defaults:             DefaultsFromEnv(),
		FullTemplate:         full,
		DiffTemplate:         diff,
		MaxConcurrentCalls:   int64(util.GetEnvInt("MAX_CONCURRENT_MODEL_CALLS", 3)),
		MinCallInterval:      util.GetEnvDuration("MIN_CALL_INTERVAL_MS", 0, time.Millisecond),
		MaxRetries:           util.GetEnvInt("MODEL_MAX_RETRIES", ai.DefaultMaxRetries),
		BackoffBase:          util.GetEnvDuration("MODEL_BACKOFF_BASE_MS", 600, time.Millisecond),
		CallTimeout:          util.GetEnvDuration("MODEL_TIMEOUT_SECONDS", 180, time.Second),
		ImageFetchTimeout:    util.GetEnvDuration("IMAGE_FETCH_TIMEOUT_SECONDS", 15, time.Second),
		ImageFetchAttempts:   util.GetEnvInt("IMAGE_FETCH_ATTEMPTS", vision.DefaultAttempts),
		ImageFetchRetryDelay: util.GetEnvDuration("IMAGE_FETCH_RETRY_DELAY_MS", 2000, time.Millisecond),
		ImageInsecureTLS:     util.GetEnvBool("IMAGE_INSECURE_TLS", false),
	}
}

func NewService(params NewServiceParams) *Service {
	s := &Service{
		defaults:        params.Defaults.WithDefaults(Defaults()),
		limiter:         params.Limiter,
		cache:           params.Cache,
		clientFactory:   params.ClientFactory,
		fullTemplate:    params.FullTemplate,
		diffTemplate:    params.DiffTemplate,
		maxRetries:      params.MaxRetries,
		backoffBase:     params.BackoffBase,
		callTimeout:     params.CallTimeout,
		imageTimeout:    params.ImageFetchTimeout,
		imageAttempts:   params.ImageFetchAttempts,
		imageRetryDelay: params.ImageFetchRetryDelay,
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewLimiter(ratelimit.NewLimiterParams{
			MaxConcurrent: params.MaxConcurrentCalls,
			MinInterval:   params.MinCallInterval,
		})
	}
	if s.clientFactory == nil {
		s.clientFactory = NewChatClient
	}
	if s.fullTemplate == "" {
		s.fullTemplate = ai.FullPromptTemplate
	}
	if s.diffTemplate == "" {
		s.diffTemplate = ai.DiffPromptTemplate
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if params.ImageInsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for intranet image hosts
	}
	s.imageHTTP = &http.Client{Transport: transport}
	return s
}

// Defaults returns the configuration applied to unset request fields.
func (s *Service) Defaults() Config {
	return s.defaults
}

// Limiter returns the limiter shared by all requests.
func (s *Service) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// Prepare applies defaults to cfg and validates it.
func (s *Service) Prepare(cfg Config) (Config, error) {
	cfg = cfg.WithDefaults(s.defaults)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// GenerateKey is the cache fingerprint of a generation request.
func (s *Service) GenerateKey(req Request, cfg Config) string {
	return cache.Fingerprint(map[string]string{
		"kind":    "generate",
		"old_prd": req.OldPRD,
		"new_prd": req.NewPRD,
	}, cfg.fingerprintFields())
}

// EnhanceKey is the cache fingerprint of an enhancement request.
func (s *Service) EnhanceKey(req EnhanceRequest, cfg Config) string {
	return cache.Fingerprint(map[string]string{
		"kind":       ModeEnhance,
		"test_cases": req.TestCases,
	}, cfg.fingerprintFields())
}

// Lookup returns a cached result for key.
func (s *Service) Lookup(ctx context.Context, key string) (Result, bool) {
	if s.cache == nil {
		return Result{}, false
	}
	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn("[Cache] Lookup failed", "key", key, "err", err)
		}
		return Result{}, false
	}

	res := Result{TestCases: entry.Result}
	if len(entry.Meta) > 0 {
		if err := json.Unmarshal(entry.Meta, &res.Meta); err != nil {
			logger.Warn("[Cache] Ignoring unreadable meta", "key", key, "err", err)
		}
	}
	res.Meta.Cached = true
	return res, true
}

func (s *Service) store(ctx context.Context, key string, res Result) {
	if s.cache == nil {
		return
	}
	meta, err := json.Marshal(res.Meta)
	if err != nil {
		logger.Warn("[Cache] Could not encode meta", "key", key, "err", err)
		return
	}
	if err := s.cache.Set(ctx, key, cache.Entry{Result: res.TestCases, Meta: meta}); err != nil {
		logger.Warn("[Cache] Write failed", "key", key, "err", err)
	}
}

// Generate produces test cases for req. Identical requests are answered from
// the cache, and concurrent identical requests share one run.
func (s *Service) Generate(ctx context.Context, req Request, progress Progress) (Result, error) {
	if progress == nil {
		progress = noProgress{}
	}
	cfg, err := s.Prepare(req.Config)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(req.NewPRD) == "" {
		return Result{}, fmt.Errorf("%w: document is empty", ErrConfiguration)
	}

	key := s.GenerateKey(req, cfg)
	if res, ok := s.Lookup(ctx, key); ok {
		logger.Info("[Generate] Cache hit", "key", key)
		progress.SetTotal(ctx, 1)
		progress.Advance(ctx)
		return res, nil
	}

	// the shared run outlives the caller that started it
	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		res, err := s.run(runCtx, req, cfg, progress)
		if err != nil {
			return Result{}, err
		}
		s.store(runCtx, key, res)
		return res, nil
	})

	var out singleflight.Result
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case out = <-ch:
	}
	if out.Err != nil {
		return Result{}, out.Err
	}
	res := out.Val.(Result)
	if out.Shared {
		progress.SetTotal(ctx, 1)
		progress.Advance(ctx)
	}
	return res, nil
}

// run selects the mode and executes it.
func (s *Service) run(ctx context.Context, req Request, cfg Config, progress Progress) (Result, error) {
	client, err := s.clientFactory(cfg)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	client.ResetMetrics()
	caller := ai.NewCaller(ai.NewCallerParams{
		Client:      client,
		Limiter:     s.limiter,
		MaxRetries:  s.maxRetries,
		BackoffBase: s.backoffBase,
		Timeout:     s.callTimeout,
	})

	var res Result
	switch {
	case strings.TrimSpace(req.OldPRD) != "":
		prompt := ai.Render(s.diffTemplate, map[string]string{
			ai.PlaceholderOldPRD: req.OldPRD,
			ai.PlaceholderNewPRD: req.NewPRD,
		})
		res, err = s.single(ctx, caller, cfg, progress, ModeIncremental, ai.IncrementalSystemPrompt, prompt)
	case !cfg.VisionEnabled():
		prompt := ai.Render(s.fullTemplate, map[string]string{ai.PlaceholderPRD: req.NewPRD})
		res, err = s.single(ctx, caller, cfg, progress, ModeTextFallback, ai.SystemPrompt, prompt)
	default:
		res, err = s.multimodal(ctx, caller, cfg, req.NewPRD, progress)
	}
	if err != nil {
		return Result{}, err
	}
	res.Meta.Usage = usage(client)
	return res, nil
}

// usage returns what client recorded since its last reset, nil when it
// recorded no request.
func usage(client ai.ChatClient) *ai.ModelMetrics {
	m := client.GetMetrics()
	if m.Requests == 0 {
		return nil
	}
	return &m
}

// single makes one text-model call and conforms its output leniently.
func (s *Service) single(ctx context.Context, caller *ai.Caller, cfg Config, progress Progress, mode, system, prompt string) (Result, error) {
	progress.SetTotal(ctx, 1)
	logger.Info("[Generate] Single call", "mode", mode, "model", cfg.TextModel, "prompt_tokens", ai.EstimateTokens(prompt))

	out, err := caller.Call(ctx, []ai.ChatMessage{{Role: ai.RoleUser, Message: prompt}}, s.callOptions(cfg, cfg.TextModel, system)...)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	progress.Advance(ctx)

	return Result{
		TestCases: conform(out),
		Meta:      Meta{Mode: mode, ModelUsed: cfg.TextModel, UseVision: false},
	}, nil
}

func (s *Service) callOptions(cfg Config, model, system string) []ai.GenerateOption {
	opts := []ai.GenerateOption{
		ai.WithModel(model),
		ai.WithSystemPrompts(system),
		ai.WithMaxTokens(cfg.MaxOutputTokens),
	}
	if cfg.Temperature != nil {
		opts = append(opts, ai.WithTemperature(*cfg.Temperature))
	}
	return opts
}

// conformStrict validates text and repairs it when needed. Text that is
// still invalid after repair is a format error.
func conformStrict(text string) (string, error) {
	if err := tabular.Validate(text); err == nil && !wrapped(text) {
		return text, nil
	}
	repaired := tabular.Repair(text)
	if err := tabular.Validate(repaired); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return repaired, nil
}

// conform is the lenient variant: unrepairable text is returned unchanged.
func conform(text string) string {
	out, err := conformStrict(text)
	if err != nil {
		logger.Warn("[Generate] Output kept unrepaired", "err", err)
		return text
	}
	return out
}

// wrapped reports a code fence or byte order mark around otherwise valid CSV.
func wrapped(text string) bool {
	return tabular.Clean(text) != util.NormalizeNewlines(text)
}
