package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vellum-graph/vellum/internal/server/middleware"
	"github.com/vellum-graph/vellum/internal/server/util"
	"github.com/vellum-graph/vellum/pkg/ai"
	"github.com/vellum-graph/vellum/pkg/logger"
	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/query"
	pgxstore "github.com/vellum-graph/vellum/pkg/store/pgx"
)

func PostQueryHandler(c echo.Context) error {
	type queryData struct {
		GroupID string `param:"id" validate:"required"`
		Query   string `json:"query" validate:"required"`

		History []ai.ChatMessage `json:"history"`

		// ResponseType selects answer verbosity.
		ResponseType string `json:"response_type" validate:"omitempty,oneof=concise detailed"`

		// ForceRoute bypasses the router: "local", "global" or "drift".
		ForceRoute string `json:"force_route" validate:"omitempty,oneof=local global drift"`

		TokenBudget int `json:"token_budget" validate:"omitempty,gte=0"`
	}

	type queryMetadata struct {
		Degraded bool                     `json:"degraded"`
		Checks   []query.FieldCheck       `json:"checks,omitempty"`
		Trace    query.QueryTraceSnapshot `json:"trace"`
		Metrics  ai.ModelMetrics          `json:"metrics"`
	}

	type queryResponse struct {
		Answer    string           `json:"answer"`
		RouteUsed string           `json:"route_used"`
		Citations []model.Citation `json:"citations"`
		Metadata  queryMetadata    `json:"metadata"`
	}

	data := new(queryData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	st := pgxstore.NewGraphDBStore(app.DBConn)
	engine := query.NewEngine(app.AiClient, st)

	result, err := engine.Answer(ctx, query.Request{
		GroupID:       data.GroupID,
		Query:         data.Query,
		History:       data.History,
		ResponseType:  query.ResponseType(data.ResponseType),
		RouteOverride: query.RouteKind(data.ForceRoute),
		TokenBudget:   data.TokenBudget,
	})
	if err != nil {
		if errors.Is(err, query.ErrInvalidRequest) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
		}
		if errors.Is(err, query.ErrUpstreamUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "AI backend unavailable"})
		}
		logger.Error("[Server] Query failed", "group", data.GroupID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	// Rewrite [[sourceID]] markers to numbered references and order the
	// citation list to match.
	answer, order := util.RewriteCitations(result.Answer)
	byID := make(map[string]model.Citation, len(result.Citations))
	for _, cit := range result.Citations {
		byID[cit.SourceID] = cit
	}
	citations := make([]model.Citation, 0, len(order))
	for _, id := range order {
		if cit, ok := byID[id]; ok {
			citations = append(citations, cit)
		}
	}
	if len(citations) == 0 {
		citations = result.Citations
	}

	return c.JSON(http.StatusOK, queryResponse{
		Answer:    answer,
		RouteUsed: string(result.Route),
		Citations: citations,
		Metadata: queryMetadata{
			Degraded: result.Degraded,
			Checks:   result.Checks,
			Trace:    result.Trace,
			Metrics:  result.Metrics,
		},
	})
}
