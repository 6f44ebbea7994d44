package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/pkg/ai"
	"github.com/OFFIS-RIT/testcase-agent/pkg/document"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"
	"github.com/OFFIS-RIT/testcase-agent/pkg/tabular"
	"github.com/OFFIS-RIT/testcase-agent/pkg/vision"

	"golang.org/x/sync/errgroup"
)

type batchStatus int

const (
	batchOK batchStatus = iota
	batchDegraded
	batchEmpty
)

// batchRun holds what every batch of one request shares.
type batchRun struct {
	caller   *ai.Caller
	cfg      Config
	resolver *vision.Resolver
	embed    string
	total    int
}

// multimodal segments the document, plans batches and runs them on a
// bounded pool. Outputs are collected by batch index, so the merged CSV
// follows document order whatever the completion order.
func (s *Service) multimodal(ctx context.Context, caller *ai.Caller, cfg Config, doc string, progress Progress) (Result, error) {
	sections := document.Segment(doc)
	totalImages := document.CountImages(sections)
	if totalImages == 0 {
		prompt := ai.Render(s.fullTemplate, map[string]string{ai.PlaceholderPRD: doc})
		return s.single(ctx, caller, cfg, progress, ModeNoImages, ai.SystemPrompt, prompt)
	}

	batches := document.Plan(sections, cfg.MaxImagesPerBatch, cfg.MaxSectionChars)
	run := &batchRun{
		caller: caller,
		cfg:    cfg,
		embed:  cfg.EmbedMode(),
		total:  len(batches),
	}
	if run.embed == EmbedNative {
		run.resolver = vision.NewResolver(vision.NewResolverParams{
			MaxSize:     cfg.ImageMaxSize,
			Quality:     cfg.ImageQuality,
			Timeout:     s.imageTimeout,
			Attempts:    s.imageAttempts,
			RetryDelay:  s.imageRetryDelay,
			Concurrency: cfg.ImageDownloadConcurrency,
			HTTPClient:  s.imageHTTP,
		})
	}

	logger.Info("[Generate] Batched run",
		"sections", len(sections),
		"images", totalImages,
		"batches", len(batches),
		"embed", run.embed,
		"workers", cfg.BatchInferenceConcurrency,
	)
	progress.SetTotal(ctx, len(batches))

	var (
		outputs  = make([]string, len(batches))
		degraded atomic.Int32
		empty    atomic.Int32
	)

	var g errgroup.Group
	g.SetLimit(max(1, cfg.BatchInferenceConcurrency))
	for i, b := range batches {
		g.Go(func() error {
			out, status := s.runBatch(ctx, run, b)
			switch status {
			case batchDegraded:
				degraded.Add(1)
			case batchEmpty:
				empty.Add(1)
			}
			outputs[i] = out
			progress.Advance(ctx)
			return nil
		})
	}
	_ = g.Wait()

	chunks := make([]string, len(outputs))
	for i, out := range outputs {
		chunks[i] = tabular.Clean(out)
	}
	final, err := conformStrict(tabular.Merge(chunks))
	if err != nil {
		return Result{}, err
	}

	return Result{
		TestCases: final,
		Meta: Meta{
			Mode:            ModeVisionMultimodal,
			ModelUsed:       cfg.VisionModel,
			UseVision:       true,
			TotalBatches:    len(batches),
			TotalImages:     totalImages,
			TotalSections:   len(sections),
			DegradedBatches: int(degraded.Load()),
			EmptyBatches:    int(empty.Load()),
		},
	}, nil
}

// runBatch calls the vision model for one batch. On failure it degrades to a
// single text-only call without images, and if that fails too the batch
// contributes nothing.
func (s *Service) runBatch(ctx context.Context, run *batchRun, b document.Batch) (string, batchStatus) {
	start := time.Now()
	text := s.batchPrompt(b, run.total)

	msg := ai.ChatMessage{Role: ai.RoleUser, Message: text}
	switch run.embed {
	case EmbedMarkdown:
		msg.Message = appendImageLinks(text, b.Images())
	default:
		msg.Images = vision.Compact(run.resolver.ResolveAll(ctx, b.Images()))
		if skipped := len(b.Images()) - len(msg.Images); skipped > 0 {
			logger.Warn("[Batch] Images skipped", "batch", b.Index, "skipped", skipped)
		}
	}

	out, err := run.caller.Call(ctx, []ai.ChatMessage{msg}, s.callOptions(run.cfg, run.cfg.VisionModel, ai.SystemPrompt)...)
	if err == nil {
		logger.Debug("[Batch] Done", "batch", b.Index, "duration", time.Since(start).Round(time.Millisecond))
		return out, batchOK
	}
	logger.Warn("[Batch] Vision call failed, degrading to text",
		"batch", b.Index,
		"err", fmt.Errorf("%w: %w", ErrUpstream, err),
	)

	out, err = run.caller.CallOnce(ctx, []ai.ChatMessage{{Role: ai.RoleUser, Message: text}}, s.callOptions(run.cfg, run.cfg.TextModel, ai.SystemPrompt)...)
	if err == nil {
		return out, batchDegraded
	}
	logger.Warn("[Batch] Degraded call failed, batch left empty",
		"batch", b.Index,
		"err", errors.Join(ErrBatchExhausted, err),
	)
	return "", batchEmpty
}

// batchPrompt renders the full template over the batch text and, for split
// documents, adds the batch position and case ID range.
func (s *Service) batchPrompt(b document.Batch, total int) string {
	prompt := ai.Render(s.fullTemplate, map[string]string{ai.PlaceholderPRD: b.Text()})
	return prompt + ai.BatchInstructions(b.Index, total)
}

// appendImageLinks lists images as markdown links for endpoints that cannot
// take image attachments.
func appendImageLinks(text string, urls []string) string {
	if len(urls) == 0 {
		return text
	}
	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n\n")
	for _, u := range urls {
		sb.WriteString("![image](")
		sb.WriteString(u)
		sb.WriteString(")\n")
	}
	return sb.String()
}
