package generate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/testcase-agent/pkg/jobs"
)

// Register binds the generate and enhance runners to m.
func (s *Service) Register(m *jobs.Manager) {
	m.Register(jobs.TypeGenerate, s.generateRunner)
	m.Register(jobs.TypeEnhance, s.enhanceRunner)
}

func (s *Service) generateRunner(ctx context.Context, payload json.RawMessage, tracker *jobs.Tracker) (jobs.Outcome, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return jobs.Outcome{}, fmt.Errorf("%w: decode payload: %w", ErrInternal, err)
	}
	res, err := s.Generate(ctx, req, tracker)
	if err != nil {
		return jobs.Outcome{}, err
	}
	return outcome(res)
}

func (s *Service) enhanceRunner(ctx context.Context, payload json.RawMessage, tracker *jobs.Tracker) (jobs.Outcome, error) {
	var req EnhanceRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return jobs.Outcome{}, fmt.Errorf("%w: decode payload: %w", ErrInternal, err)
	}
	res, err := s.Enhance(ctx, req, tracker)
	if err != nil {
		return jobs.Outcome{}, err
	}
	return outcome(res)
}

func outcome(res Result) (jobs.Outcome, error) {
	meta, err := json.Marshal(res.Meta)
	if err != nil {
		return jobs.Outcome{}, fmt.Errorf("%w: encode meta: %w", ErrInternal, err)
	}
	return jobs.Outcome{Result: res.TestCases, Meta: meta}, nil
}
