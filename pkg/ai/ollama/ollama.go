package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/vellum-graph/vellum/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// QueryOllamaClient implements the ai.QueryAIClient interface using Ollama as
// the backend. It supports text generation and embeddings via locally-hosted
// models.
type QueryOllamaClient struct {
	embeddingModel string
	answerModel    string
	routerModel    string

	reqLock *semaphore.Weighted

	timeoutMin int64

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client

	Client *api.Client
}

// NewQueryOllamaClientParams contains configuration options for creating a new QueryOllamaClient.
type NewQueryOllamaClientParams struct {
	EmbeddingModel string
	AnswerModel    string
	RouterModel    string

	BaseURL string
	ApiKey  string

	TimeoutMin            int64
	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		// don't overwrite if already set
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewQueryOllamaClient creates a new Ollama-based AI client with the specified
// configuration. It connects to the Ollama server at the given BaseURL (or
// the default if empty) and uses the configured models.
func NewQueryOllamaClient(
	params NewQueryOllamaClientParams,
) (*QueryOllamaClient, error) {
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

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.ApiKey,
			},
			rt: http.DefaultTransport,
		},
	}

	cli := api.NewClient(u, httpClient)

	maxReqs := params.MaxConcurrentRequests
	if maxReqs <= 0 {
		maxReqs = 2
	}
	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 10
	}

	return &QueryOllamaClient{
		embeddingModel: params.EmbeddingModel,
		answerModel:    params.AnswerModel,
		routerModel:    params.RouterModel,

		reqLock: semaphore.NewWeighted(maxReqs),

		timeoutMin: timeoutMin,

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		baseURL:    u,
		apiKey:     params.ApiKey,
		httpClient: httpClient,

		Client: cli,
	}, nil
}
