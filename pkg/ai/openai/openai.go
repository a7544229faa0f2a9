package openai

import (
	"sync"

	"github.com/vellum-graph/vellum/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// QueryOpenAIClient is a client for the AI models used at query time. It
// manages separate OpenAI clients for embeddings and chat tasks so the two
// can point at different endpoints.
//
// A QueryOpenAIClient should be created using NewQueryOpenAIClient.
type QueryOpenAIClient struct {
	embeddingModel string
	answerModel    string
	routerModel    string

	embeddingURL string
	embeddingKey string
	chatURL      string
	chatKey      string

	timeoutMin    int64
	embeddingLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewQueryOpenAIClientParams defines the configuration parameters for
// creating a new QueryOpenAIClient.
//
// EmbeddingModel specifies the model used for embeddings.
// AnswerModel specifies the model used for answer synthesis.
// RouterModel specifies the cheaper model used for routing and planning.
// EmbeddingURL and EmbeddingKey configure the embedding API endpoint.
// ChatURL and ChatKey configure the chat/completion API endpoint.
type NewQueryOpenAIClientParams struct {
	EmbeddingModel string
	AnswerModel    string
	RouterModel    string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	TimeoutMin              int64
	MaxConcurrentEmbeddings int64
}

// NewQueryOpenAIClient creates and returns a new QueryOpenAIClient configured
// with the provided parameters.
//
// Example:
//
//	params := openai.NewQueryOpenAIClientParams{
//		EmbeddingModel: "text-embedding-3-small",
//		AnswerModel:    "gpt-4o",
//		RouterModel:    "gpt-4o-mini",
//		EmbeddingKey:   os.Getenv("OPENAI_API_KEY"),
//		ChatKey:        os.Getenv("OPENAI_API_KEY"),
//	}
//	client := openai.NewQueryOpenAIClient(params)
func NewQueryOpenAIClient(
	params NewQueryOpenAIClientParams,
) *QueryOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 5
	}
	maxEmbeds := params.MaxConcurrentEmbeddings
	if maxEmbeds <= 0 {
		maxEmbeds = 4
	}

	return &QueryOpenAIClient{
		embeddingModel: params.EmbeddingModel,
		answerModel:    params.AnswerModel,
		routerModel:    params.RouterModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		timeoutMin:    timeoutMin,
		embeddingLock: semaphore.NewWeighted(maxEmbeds),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
