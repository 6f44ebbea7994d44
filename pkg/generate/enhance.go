package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/testcase-agent/pkg/ai"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"
)

// Enhance asks the text model to complete an existing test case CSV. New
// cases are marked in their ID column. The result is cached like a
// generation.
func (s *Service) Enhance(ctx context.Context, req EnhanceRequest, progress Progress) (Result, error) {
	if progress == nil {
		progress = noProgress{}
	}
	if strings.TrimSpace(req.TestCases) == "" {
		return Result{}, fmt.Errorf("%w: test cases are empty", ErrConfiguration)
	}
	cfg, err := s.Prepare(req.Config)
	if err != nil {
		return Result{}, err
	}

	key := s.EnhanceKey(req, cfg)
	if res, ok := s.Lookup(ctx, key); ok {
		logger.Info("[Generate] Cache hit", "key", key, "mode", ModeEnhance)
		progress.SetTotal(ctx, 1)
		progress.Advance(ctx)
		return res, nil
	}

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

	progress.SetTotal(ctx, 1)
	prompt := ai.Render(ai.EnhancePromptTemplate, map[string]string{ai.PlaceholderTestcases: req.TestCases})
	opts := append(s.callOptions(cfg, cfg.TextModel, ai.EnhanceSystemPrompt), ai.WithTemperature(enhanceTemperature))

	out, err := caller.Call(ctx, []ai.ChatMessage{{Role: ai.RoleUser, Message: prompt}}, opts...)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	progress.Advance(ctx)

	res := Result{
		TestCases: conform(out),
		Meta:      Meta{Mode: ModeEnhance, ModelUsed: cfg.TextModel, Usage: usage(client)},
	}
	s.store(ctx, key, res)
	return res, nil
}
