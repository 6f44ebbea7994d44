package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/pkg/ai"

	"github.com/openai/openai-go/v3"
)

// GenerateChat sends a chat conversation to the model and returns the
// assistant's reply as plain text. Images on user messages are sent as
// image_url content parts after the message text.
//
// Example:
//
//	msgs := []ai.ChatMessage{
//		{Role: ai.RoleUser, Message: "Describe the login page", Images: []string{dataURI}},
//	}
//	resp, err := client.GenerateChat(ctx, msgs, ai.WithModel("gpt-4o"), ai.WithMaxTokens(4096))
func (c *ChatOpenAIClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{Model: c.defaultModel}, opts...)
	if options.Model == "" {
		return "", fmt.Errorf("no model configured")
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+len(messages))
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	for _, m := range messages {
		switch m.Role {
		case ai.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Message))
		case ai.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Message))
		default:
			msgs = append(msgs, userMessage(m))
		}
	}

	body := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(options.Model),
		Messages: msgs,
	}
	if options.Temperature != nil {
		body.Temperature = openai.Float(*options.Temperature)
	}
	if options.MaxTokens > 0 {
		body.MaxTokens = openai.Int(int64(options.MaxTokens))
	}

	start := time.Now()
	response, err := c.Client.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", err
	}
	duration := time.Since(start).Milliseconds()

	c.modifyMetrics(ai.ModelMetrics{
		Requests:     1,
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   duration,
	})

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response from model")
	}
	return response.Choices[0].Message.Content, nil
}

func userMessage(m ai.ChatMessage) openai.ChatCompletionMessageParamUnion {
	if len(m.Images) == 0 {
		return openai.UserMessage(m.Message)
	}
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Images)+1)
	if m.Message != "" {
		parts = append(parts, openai.TextContentPart(m.Message))
	}
	for _, img := range m.Images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: img,
		}))
	}
	return openai.UserMessage(parts)
}
