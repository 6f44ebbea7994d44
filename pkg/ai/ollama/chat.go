package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/testcase-agent/pkg/ai"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"

	"github.com/ollama/ollama/api"
)

// defaultContext is the context window Ollama uses unless told otherwise.
const defaultContext = 4096

// promptOverhead pads the token estimate for chat template tokens.
const promptOverhead = 200

// GenerateChat sends a chat conversation and returns the assistant text.
// Data URI images are decoded and attached as raw bytes; remote URLs are
// not supported by Ollama and are skipped.
func (c *ChatOllamaClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.defaultModel}, opts...)
	if options.Model == "" {
		return "", fmt.Errorf("no model configured")
	}

	msgs := make([]api.Message, 0, len(options.SystemPrompts)+len(messages))
	for _, sys := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: ai.RoleSystem, Content: sys})
	}
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = ai.RoleUser
		}
		msg := api.Message{Role: role, Content: m.Message}
		for _, img := range m.Images {
			data, err := decodeDataURI(img)
			if err != nil {
				logger.Warn("[Ollama] Skipping image", "err", err)
				continue
			}
			msg.Images = append(msg.Images, api.ImageData(data))
		}
		msgs = append(msgs, msg)
	}

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{},
	}
	if options.Temperature != nil {
		req.Options["temperature"] = *options.Temperature
	}
	if options.MaxTokens > 0 {
		req.Options["num_predict"] = options.MaxTokens
	}
	if n := contextWindow(messages, options); n > defaultContext {
		req.Options["num_ctx"] = n
	}

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", err
	}

	c.modifyMetrics(ai.ModelMetrics{
		Requests:     1,
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	return final.Message.Content, nil
}

// contextWindow estimates prompt plus output tokens.
func contextWindow(messages []ai.ChatMessage, options ai.GenerateOptions) int {
	return promptOverhead + ai.EstimateMessageTokens(messages, options.SystemPrompts...) + options.MaxTokens
}

func decodeDataURI(uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, fmt.Errorf("unsupported image reference %.40q", uri)
	}
	_, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, fmt.Errorf("malformed data uri")
	}
	return base64.StdEncoding.DecodeString(payload)
}
