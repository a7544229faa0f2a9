// Package query implements the retrieval routes and answer synthesis over
// the knowledge graph: routing a question to a strategy, gathering budgeted
// evidence, and generating a cited answer.
package query

import (
	"context"
	"errors"

	"github.com/vellum-graph/vellum/pkg/ai"
	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/retrieval"
)

// RouteKind identifies a retrieval strategy.
type RouteKind string

const (
	// RouteLocal answers entity- and field-focused questions from the
	// neighborhood of matching entities and chunks.
	RouteLocal RouteKind = "local"
	// RouteGlobal answers corpus-wide thematic questions from community
	// summaries with full document coverage.
	RouteGlobal RouteKind = "global"
	// RouteDrift answers multi-hop questions by priming on community
	// summaries and drilling down with focused sub-questions.
	RouteDrift RouteKind = "drift"
)

var (
	// ErrInvalidRequest indicates a request without a group ID or question.
	ErrInvalidRequest = errors.New("query: invalid request")

	// ErrUpstreamUnavailable indicates the AI backend failed after retries.
	ErrUpstreamUnavailable = errors.New("query: upstream model unavailable")

	// ErrGroupLeakage indicates retrieved evidence referenced a different
	// group than the request. This is a defect guard, never retried.
	ErrGroupLeakage = errors.New("query: evidence crossed group boundary")
)

// ResponseType selects answer verbosity.
type ResponseType string

const (
	// ResponseDetailed is the default: a thorough, structured answer.
	ResponseDetailed ResponseType = "detailed"
	// ResponseConcise asks for a single short paragraph.
	ResponseConcise ResponseType = "concise"
)

// Request is one question against one group.
type Request struct {
	GroupID string
	Query   string

	// ResponseType selects answer verbosity. Empty means detailed.
	ResponseType ResponseType

	// History carries prior conversation turns, oldest first.
	History []ai.ChatMessage

	// RouteOverride forces a strategy, bypassing the router.
	RouteOverride RouteKind

	// TokenBudget caps assembled evidence. Zero uses the default.
	TokenBudget int
}

// Result is the synthesized, cited answer with its provenance.
type Result struct {
	Answer    string           `json:"answer"`
	Route     RouteKind        `json:"route"`
	Citations []model.Citation `json:"citations"`

	// Degraded marks answers generated without usable evidence.
	Degraded bool `json:"degraded"`

	// Checks carries the field validator's verdicts, when validation ran.
	Checks []FieldCheck `json:"checks,omitempty"`

	Trace   QueryTraceSnapshot `json:"trace"`
	Metrics ai.ModelMetrics    `json:"metrics"`
}

// RouteOutput is what a route hands back to the engine. Routes that
// synthesize internally (drift) fill Answer and Citations; others return
// evidence for the engine to synthesize from.
type RouteOutput struct {
	Evidence  []retrieval.Evidence
	Answer    string
	Citations []model.Citation
	Degraded  bool
}

// Route is one retrieval strategy.
type Route interface {
	Kind() RouteKind
	Run(ctx context.Context, req Request, tracer Tracer) (RouteOutput, error)
}
