package openai

import (
	"net/http"
	"sync"

	"github.com/OFFIS-RIT/testcase-agent/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ChatOpenAIClient talks to any OpenAI-compatible chat completions endpoint.
//
// A ChatOpenAIClient should be created using NewChatOpenAIClient.
type ChatOpenAIClient struct {
	defaultModel string
	baseURL      string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	Client *openai.Client
}

// NewChatOpenAIClientParams defines the configuration parameters for creating
// a new ChatOpenAIClient.
//
// BaseURL may be empty for the official endpoint. DefaultModel is used when a
// request does not name a model. HTTPClient is optional.
type NewChatOpenAIClientParams struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	HTTPClient   *http.Client
}

// NewChatOpenAIClient creates a client. The SDK's own retries are disabled;
// retrying is the caller's job.
func NewChatOpenAIClient(params NewChatOpenAIClientParams) *ChatOpenAIClient {
	options := []option.RequestOption{
		option.WithAPIKey(params.APIKey),
		option.WithMaxRetries(0),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}
	if params.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(params.HTTPClient))
	}

	client := openai.NewClient(options...)

	return &ChatOpenAIClient{
		defaultModel: params.DefaultModel,
		baseURL:      params.BaseURL,
		Client:       &client,
	}
}

// ResetMetrics clears all accumulated token and timing metrics to zero.
func (c *ChatOpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	c.metrics = ai.ModelMetrics{}
	c.metricsLock.Unlock()
}

// GetMetrics returns the accumulated token usage and timing metrics since the last reset.
func (c *ChatOpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *ChatOpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.SumMetrics(c.metrics, m)
}
