package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/OFFIS-RIT/testcase-agent/pkg/ai"

	"github.com/ollama/ollama/api"
)

// ChatOllamaClient implements ai.ChatClient against an Ollama server.
type ChatOllamaClient struct {
	defaultModel string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	baseURL *url.URL

	Client *api.Client
}

// NewChatOllamaClientParams contains configuration options for creating a new ChatOllamaClient.
type NewChatOllamaClientParams struct {
	DefaultModel string

	BaseURL string
	ApiKey  string
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewChatOllamaClient connects to the Ollama server at BaseURL, or to the
// address from OLLAMA_HOST when BaseURL is empty.
func NewChatOllamaClient(params NewChatOllamaClientParams) (*ChatOllamaClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	headers := map[string]string{}
	if params.ApiKey != "" {
		headers["Authorization"] = "Bearer " + params.ApiKey
	}
	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: headers,
			rt:      http.DefaultTransport,
		},
	}

	var cli *api.Client
	if u != nil {
		cli = api.NewClient(u, httpClient)
	} else {
		cli, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	return &ChatOllamaClient{
		defaultModel: params.DefaultModel,
		baseURL:      u,
		Client:       cli,
	}, nil
}
