package ai

import (
	"context"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single message in a chat conversation.
//
// Images holds inline data URIs or plain http(s) URLs attached to the
// message. Providers that cannot attach images ignore them.
type ChatMessage struct {
	Message string   `json:"message"`
	Role    string   `json:"role"`
	Images  []string `json:"images,omitempty"`
}

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the request
	Temperature   *float64 // Sampling temperature, provider default when nil
	MaxTokens     int      // Upper bound on output tokens, provider default when 0
}

// ModelMetrics contains performance metrics from AI model operations.
type ModelMetrics struct {
	Requests       int     `json:"requests"`
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = &temp
	}
}

// WithMaxTokens caps the number of tokens the model may produce.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// ApplyOptions folds opts over defaults.
func ApplyOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, o := range opts {
		o(&defaults)
	}
	return defaults
}

// ChatClient is the model invocation boundary. An implementation sends one
// non-streaming chat request and returns the assistant text.
type ChatClient interface {
	GenerateChat(
		ctx context.Context,
		messages []ChatMessage,
		opts ...GenerateOption,
	) (string, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}

// SumMetrics adds m to acc and recomputes the throughput figure.
func SumMetrics(acc, m ModelMetrics) ModelMetrics {
	acc.Requests += m.Requests
	acc.InputTokens += m.InputTokens
	acc.OutputTokens += m.OutputTokens
	acc.TotalTokens += m.TotalTokens
	acc.DurationMs += m.DurationMs
	if acc.DurationMs > 0 {
		tps := float64(acc.TotalTokens) * 1000.0 / float64(acc.DurationMs)
		acc.TokenPerSecond = float32(int(tps*100+0.5)) / 100
	}
	return acc
}
