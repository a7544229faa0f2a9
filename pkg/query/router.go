package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/vellum-graph/vellum/pkg/ai"
	"github.com/vellum-graph/vellum/pkg/logger"
	"github.com/vellum-graph/vellum/pkg/retrieval"
)

// Router picks the retrieval strategy for a question. Cheap heuristics
// decide the obvious cases; everything else goes to the classifier model.
// A route override on the request always wins, and any failure falls back
// to the local route, which degrades gracefully for all question shapes.
type Router struct {
	ai ai.QueryAIClient
}

func NewRouter(client ai.QueryAIClient) *Router {
	return &Router{ai: client}
}

type routeChoice struct {
	Route  string `json:"route" jsonschema:"enum=local,enum=global,enum=drift"`
	Reason string `json:"reason"`
}

var driftMarkers = []string{
	"relationship between",
	"how are",
	"connected",
	"linked",
	"indirectly",
	"chain of",
	"who supplies",
	"which of the",
	"through which",
}

// Decide returns the route for the request. It never fails; uncertain or
// erroring classification resolves to RouteLocal.
func (r *Router) Decide(ctx context.Context, req Request) RouteKind {
	switch req.RouteOverride {
	case RouteLocal, RouteGlobal, RouteDrift:
		return req.RouteOverride
	}

	if retrieval.IsComprehensive(req.Query) {
		return RouteGlobal
	}

	q := strings.ToLower(req.Query)
	for _, marker := range driftMarkers {
		if strings.Contains(q, marker) {
			return RouteDrift
		}
	}

	var choice routeChoice
	err := r.ai.GenerateCompletionWithFormat(
		ctx,
		"route_choice",
		"Retrieval route classification for a user question",
		fmt.Sprintf(ai.RoutePrompt, req.Query),
		&choice,
	)
	if err != nil {
		logger.Warn("[Router] classification failed, using local route", "err", err)
		return RouteLocal
	}

	switch RouteKind(choice.Route) {
	case RouteLocal, RouteGlobal, RouteDrift:
		return RouteKind(choice.Route)
	default:
		return RouteLocal
	}
}
