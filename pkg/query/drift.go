package query

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vellum-graph/vellum/internal/util"
	"github.com/vellum-graph/vellum/pkg/ai"
	"github.com/vellum-graph/vellum/pkg/logger"
	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/retrieval"
	"github.com/vellum-graph/vellum/pkg/store"
)

const (
	driftMaxRounds       = 2
	driftMaxSubQuestions = 5
	driftConcurrency     = 3

	noEvidenceSentinel = "NO EVIDENCE"
)

// DriftRoute answers multi-hop questions with a bounded primer, drill-down
// and reduce loop. The primer runs global search for thematic grounding and
// proposes focused follow-up sub-questions; each sub-question runs a local
// search drill-down; accumulated findings are merged into the final answer.
// Rounds and fan-out are hard-capped so the loop always terminates.
type DriftRoute struct {
	ai     ai.QueryAIClient
	global *GlobalRoute
	local  *LocalRoute
}

func NewDriftRoute(client ai.QueryAIClient, s store.GraphStore) *DriftRoute {
	return &DriftRoute{
		ai:     client,
		global: NewGlobalRoute(client, s),
		local:  NewLocalRoute(client, s),
	}
}

func (r *DriftRoute) Kind() RouteKind { return RouteDrift }

type primerPlan struct {
	Answer    string   `json:"answer"`
	FollowUps []string `json:"follow_ups"`
}

func (r *DriftRoute) Run(ctx context.Context, req Request, tracer Tracer) (RouteOutput, error) {
	primerOut, err := r.global.Run(ctx, req, tracer)
	if err != nil {
		return RouteOutput{}, err
	}

	evidenceByID := make(map[string]retrieval.Evidence)
	mergeEvidence(evidenceByID, primerOut.Evidence)

	plan, err := r.plan(ctx, FormatEvidenceBlock(primerOut.Evidence), req.Query)
	if err != nil {
		// Without a primer plan the route degrades to its global grounding;
		// the engine synthesizes directly from that evidence.
		logger.Warn("[DriftRoute] primer failed, degrading to global evidence", "group", req.GroupID, "err", err)
		return RouteOutput{Evidence: primerOut.Evidence}, nil
	}

	var findings []string
	if plan.Answer != "" {
		findings = append(findings, "Preliminary: "+plan.Answer)
	}

	degraded := false
	pending := capSubQuestions(plan.FollowUps)
	for round := 1; round <= driftMaxRounds && len(pending) > 0; round++ {
		RecordSubQuestions(tracer, pending...)
		findings = append(findings, r.drillDown(ctx, req, pending, evidenceByID, tracer)...)

		bounded, truncated := boundFindings(findings)
		if truncated {
			logger.Warn("[DriftRoute] findings history truncated", "group", req.GroupID, "round", round)
			RecordTruncated(tracer)
		}
		findings = bounded

		next, err := r.plan(ctx, strings.Join(findings, "\n\n"), req.Query)
		if err != nil {
			logger.Warn("[DriftRoute] follow-up planning failed, stopping drill-down", "group", req.GroupID, "err", err)
			break
		}
		pending = capSubQuestions(next.FollowUps)
		if round == driftMaxRounds && len(pending) > 0 {
			// Iteration cap reached with open follow-ups: the answer below is
			// the best intermediate synthesis, flagged as non-terminal.
			logger.Warn("[DriftRoute] round cap reached with open follow-ups", "group", req.GroupID, "open", len(pending))
			degraded = true
		}
	}

	if len(findings) == 0 {
		return RouteOutput{Evidence: primerOut.Evidence}, nil
	}

	return r.reduce(ctx, req, findings, evidenceByID, degraded, tracer)
}

// plan asks the planner model for a preliminary answer and focused follow-up
// sub-questions over the given context block.
func (r *DriftRoute) plan(ctx context.Context, contextBlock, question string) (primerPlan, error) {
	var plan primerPlan
	err := r.ai.GenerateCompletionWithFormat(
		ctx,
		"drift_plan",
		"Preliminary answer and follow-up sub-questions for multi-hop research",
		fmt.Sprintf(ai.PrimerPrompt, contextBlock, question, driftMaxSubQuestions),
		&plan,
	)
	return plan, err
}

// drillDown answers the sub-questions concurrently with bounded fan-out.
// Individual failures and evidence-free sub-questions are skipped; findings
// come back in sub-question order.
func (r *DriftRoute) drillDown(
	ctx context.Context,
	req Request,
	subQuestions []string,
	evidenceByID map[string]retrieval.Evidence,
	tracer Tracer,
) []string {
	results := make([]string, len(subQuestions))
	collected := make([][]retrieval.Evidence, len(subQuestions))

	var eg errgroup.Group
	eg.SetLimit(driftConcurrency)
	for i, subQ := range subQuestions {
		eg.Go(func() error {
			out, err := r.local.Run(ctx, Request{
				GroupID:     req.GroupID,
				Query:       subQ,
				TokenBudget: req.TokenBudget,
			}, tracer)
			if err != nil {
				logger.Warn("[DriftRoute] drill-down retrieval failed", "group", req.GroupID, "sub_question", subQ, "err", err)
				return nil
			}
			if len(out.Evidence) == 0 {
				return nil
			}
			collected[i] = out.Evidence

			answer, err := r.ai.GenerateCompletion(ctx, fmt.Sprintf(ai.DrillDownPrompt, FormatEvidenceBlock(out.Evidence), subQ))
			if err != nil {
				logger.Warn("[DriftRoute] drill-down synthesis failed", "group", req.GroupID, "sub_question", subQ, "err", err)
				return nil
			}
			if strings.Contains(answer, noEvidenceSentinel) {
				return nil
			}
			results[i] = strings.TrimSpace(answer)
			return nil
		})
	}
	_ = eg.Wait()

	findings := make([]string, 0, len(subQuestions))
	for i, finding := range results {
		if finding == "" {
			continue
		}
		mergeEvidence(evidenceByID, collected[i])
		findings = append(findings, fmt.Sprintf("Q: %s\nA: %s", subQuestions[i], finding))
	}
	return findings
}

// reduce merges the accumulated findings into the final answer and maps its
// citation markers back to the evidence gathered across all rounds.
func (r *DriftRoute) reduce(
	ctx context.Context,
	req Request,
	findings []string,
	evidenceByID map[string]retrieval.Evidence,
	degraded bool,
	tracer Tracer,
) (RouteOutput, error) {
	prompt := fmt.Sprintf(ai.ReducePrompt, strings.Join(findings, "\n\n"), req.Query) + responseDirective(req.ResponseType)
	raw, err := util.RetryWithBackoff(ctx, 2, synthesisRetryDelay, func(ctx context.Context) (string, error) {
		return r.ai.GenerateCompletion(ctx, prompt)
	})
	if err != nil {
		return RouteOutput{}, fmt.Errorf("%w: reduce synthesis: %v", ErrUpstreamUnavailable, err)
	}

	answer, usedIDs := filterCitations(raw, evidenceByID)
	RecordUsedSourceIDs(tracer, usedIDs...)

	citations := make([]model.Citation, 0, len(usedIDs))
	evidence := make([]retrieval.Evidence, 0, len(usedIDs))
	for _, id := range usedIDs {
		ev := evidenceByID[id]
		evidence = append(evidence, ev)
		citations = append(citations, model.Citation{
			Kind:       ev.Kind,
			SourceID:   ev.ID,
			DocumentID: ev.DocumentID,
			Name:       ev.DocumentTitle,
			Score:      ev.Score,
			Preview:    preview(ev.Text),
			Page:       ev.Page,
		})
	}

	return RouteOutput{
		Evidence:  evidence,
		Answer:    answer,
		Citations: citations,
		Degraded:  degraded,
	}, nil
}

func mergeEvidence(byID map[string]retrieval.Evidence, evidence []retrieval.Evidence) {
	for _, ev := range evidence {
		if _, ok := byID[ev.ID]; ok {
			continue
		}
		byID[ev.ID] = ev
	}
}

func capSubQuestions(questions []string) []string {
	out := make([]string, 0, driftMaxSubQuestions)
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == driftMaxSubQuestions {
			break
		}
	}
	return out
}

// boundFindings enforces the history caps: each finding is cut to the
// per-entry cap and oldest findings are dropped first when the total
// exceeds the overall cap.
func boundFindings(findings []string) ([]string, bool) {
	truncated := false
	bounded := make([]string, len(findings))
	for i, f := range findings {
		if len(f) > historyEntryMaxChars {
			f = truncateChars(f, historyEntryMaxChars)
			truncated = true
		}
		bounded[i] = f
	}

	total := 0
	for _, f := range bounded {
		total += len(f)
	}
	for len(bounded) > 1 && total > historyMaxChars {
		total -= len(bounded[0])
		bounded = bounded[1:]
		truncated = true
	}
	return bounded, truncated
}
