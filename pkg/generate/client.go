package generate

import (
	"github.com/OFFIS-RIT/testcase-agent/pkg/ai"
	"github.com/OFFIS-RIT/testcase-agent/pkg/ai/ollama"
	"github.com/OFFIS-RIT/testcase-agent/pkg/ai/openai"
)

// ClientFactory builds the model client for one request's configuration.
type ClientFactory func(cfg Config) (ai.ChatClient, error)

// NewChatClient is the default ClientFactory. It selects the provider named
// in cfg and points it at cfg.BaseURL.
func NewChatClient(cfg Config) (ai.ChatClient, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return ollama.NewChatOllamaClient(ollama.NewChatOllamaClientParams{
			DefaultModel: cfg.TextModel,
			BaseURL:      cfg.BaseURL,
			ApiKey:       cfg.APIKey,
		})
	default:
		return openai.NewChatOpenAIClient(openai.NewChatOpenAIClientParams{
			DefaultModel: cfg.TextModel,
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
		}), nil
	}
}
