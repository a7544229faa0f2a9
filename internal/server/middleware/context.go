package middleware

import (
	"github.com/MicahParks/keyfunc/v3"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/vellum-graph/vellum/internal/util"
	"github.com/vellum-graph/vellum/pkg/ai"
	oai "github.com/vellum-graph/vellum/pkg/ai/ollama"
	gai "github.com/vellum-graph/vellum/pkg/ai/openai"
	"github.com/vellum-graph/vellum/pkg/logger"
)

type AppUser struct {
	UserID      int64
	Role        string
	Permissions []string
}

type App struct {
	DBConn         *pgxpool.Pool
	Queue          *amqp091.Channel
	Key            *keyfunc.Keyfunc
	S3             *s3.Client
	AiClient       ai.QueryAIClient
	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(
	db *pgxpool.Pool,
	queue *amqp091.Channel,
	key *keyfunc.Keyfunc,
	s3 *s3.Client,
	masterAPIKey string,
	masterUserID int64,
	masterUserRole string,
) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			adapter := util.GetEnv("AI_ADAPTER")
			var aiClient ai.QueryAIClient

			switch adapter {
			case "ollama":
				client, err := oai.NewQueryOllamaClient(oai.NewQueryOllamaClientParams{
					EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
					AnswerModel:    util.GetEnv("AI_CHAT_ANSWER_MODEL"),
					RouterModel:    util.GetEnv("AI_CHAT_ROUTER_MODEL"),

					BaseURL: util.GetEnv("AI_CHAT_URL"),
					ApiKey:  util.GetEnv("AI_CHAT_KEY"),

					MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
				})
				if err != nil {
					logger.Fatal("Failed to create Ollama client", "err", err)
				}
				aiClient = client
			default:
				aiClient = gai.NewQueryOpenAIClient(gai.NewQueryOpenAIClientParams{
					EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
					AnswerModel:    util.GetEnv("AI_CHAT_ANSWER_MODEL"),
					RouterModel:    util.GetEnv("AI_CHAT_ROUTER_MODEL"),

					EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
					EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
					ChatURL:      util.GetEnv("AI_CHAT_URL"),
					ChatKey:      util.GetEnv("AI_CHAT_KEY"),

					MaxConcurrentEmbeddings: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
				})
			}

			app := &App{
				DBConn:         db,
				Queue:          queue,
				Key:            key,
				S3:             s3,
				AiClient:       aiClient,
				MasterAPIKey:   masterAPIKey,
				MasterUserID:   masterUserID,
				MasterUserRole: masterUserRole,
			}
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
