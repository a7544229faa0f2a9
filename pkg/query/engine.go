package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vellum-graph/vellum/pkg/ai"
	"github.com/vellum-graph/vellum/pkg/logger"
	"github.com/vellum-graph/vellum/pkg/store"
)

// Engine answers questions end to end: route selection, evidence retrieval,
// synthesis, and field validation. One Engine is shared across concurrent
// queries; all per-query state lives in the request-scoped trace.
type Engine struct {
	ai        ai.QueryAIClient
	router    *Router
	routes    map[RouteKind]Route
	synth     *Synthesizer
	validator *Validator
}

func NewEngine(client ai.QueryAIClient, s store.GraphStore) *Engine {
	return &Engine{
		ai:     client,
		router: NewRouter(client),
		routes: map[RouteKind]Route{
			RouteLocal:  NewLocalRoute(client, s),
			RouteGlobal: NewGlobalRoute(client, s),
			RouteDrift:  NewDriftRoute(client, s),
		},
		synth:     NewSynthesizer(client),
		validator: NewValidator(client, s),
	}
}

// Answer runs one query. Extra tracers receive the same events as the
// result's trace snapshot; they are optional.
func (e *Engine) Answer(ctx context.Context, req Request, tracers ...Tracer) (Result, error) {
	if req.GroupID == "" || strings.TrimSpace(req.Query) == "" {
		return Result{}, fmt.Errorf("%w: group id and query are required", ErrInvalidRequest)
	}

	started := time.Now()
	trace := NewQueryTrace()
	var tracer Tracer = trace
	if len(tracers) > 0 {
		tracer = append(MultiTracer{trace}, tracers...)
	}

	kind := e.router.Decide(ctx, req)
	route, ok := e.routes[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: no route %q", ErrInvalidRequest, kind)
	}

	out, err := route.Run(ctx, req, tracer)
	if err != nil {
		return Result{}, err
	}

	answer := out.Answer
	citations := out.Citations
	degraded := out.Degraded
	if answer == "" {
		var synthDegraded bool
		answer, citations, synthDegraded, err = e.synth.Synthesize(ctx, req.Query, req.ResponseType, req.History, out.Evidence, tracer)
		if err != nil {
			return Result{}, err
		}
		degraded = degraded || synthDegraded
	}

	var checks []FieldCheck
	if e.validator.ShouldValidate(answer) {
		answer, checks = e.validator.Validate(ctx, req.GroupID, req.Query, answer)
	}

	logger.Info("[Engine] query answered",
		"group", req.GroupID,
		"route", kind,
		"citations", len(citations),
		"degraded", degraded,
		"duration", time.Since(started).Round(time.Millisecond))

	return Result{
		Answer:    answer,
		Route:     kind,
		Citations: citations,
		Degraded:  degraded,
		Checks:    checks,
		Trace:     trace.Snapshot(),
		Metrics:   e.ai.GetMetrics(),
	}, nil
}
