package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func TestDriftRoute_PrimerDrillDownReduce(t *testing.T) {
	var mu sync.Mutex
	planCalls := 0
	client := &fakeAI{
		formatFn: func(name, prompt string, out any) error {
			mu.Lock()
			planCalls++
			call := planCalls
			mu.Unlock()
			plan := out.(*primerPlan)
			if call == 1 {
				plan.Answer = "The documents describe recurring payments; exact amounts unknown."
				plan.FollowUps = []string{"What is the invoice total?"}
			}
			return nil
		},
		completionFn: func(prompt string) (string, error) {
			if strings.Contains(prompt, "Sub-question:") {
				return "The invoice total is $29,900.00 [[c3]].", nil
			}
			return "The invoice total of $29,900.00 [[c3]] matches the contract payments [[c1]].", nil
		},
	}

	route := NewDriftRoute(client, globalFixture())
	trace := NewQueryTrace()

	out, err := route.Run(context.Background(), Request{
		GroupID: "g1",
		Query:   "Compare the invoice and contract amounts",
	}, trace)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Answer == "" {
		t.Fatalf("answer empty, want reduced synthesis")
	}
	if out.Degraded {
		t.Fatalf("degraded = true, want converged run")
	}

	cited := make(map[string]bool)
	for _, c := range out.Citations {
		cited[c.SourceID] = true
	}
	if !cited["c3"] || !cited["c1"] {
		t.Fatalf("citations = %v, want both c1 and c3", out.Citations)
	}

	snap := trace.Snapshot()
	if len(snap.SubQuestions) != 1 || snap.SubQuestions[0] != "What is the invoice total?" {
		t.Fatalf("sub-questions = %v, want the primer follow-up", snap.SubQuestions)
	}
}

func TestDriftRoute_RoundCapFlagsNonTerminal(t *testing.T) {
	client := &fakeAI{
		formatFn: func(name, prompt string, out any) error {
			plan := out.(*primerPlan)
			// Always seven open follow-ups; the fan-out cap keeps five.
			plan.FollowUps = []string{"q1", "q2", "q3", "q4", "q5", "q6", "q7"}
			return nil
		},
		completionFn: func(prompt string) (string, error) {
			if strings.Contains(prompt, "Sub-question:") {
				return "A partial fact [[c1]].", nil
			}
			return "Best intermediate synthesis [[c1]].", nil
		},
	}

	route := NewDriftRoute(client, globalFixture())
	trace := NewQueryTrace()

	out, err := route.Run(context.Background(), Request{
		GroupID: "g1",
		Query:   "Compare everything with everything else",
	}, trace)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !out.Degraded {
		t.Fatalf("degraded = false, want non-terminal flag at round cap")
	}
	if out.Answer == "" {
		t.Fatalf("answer empty, want best intermediate synthesis")
	}

	subQs := trace.Snapshot().SubQuestions
	if len(subQs) != 2*driftMaxSubQuestions {
		t.Fatalf("sub-questions recorded = %d, want %d (two capped rounds)", len(subQs), 2*driftMaxSubQuestions)
	}
}

func TestDriftRoute_PrimerFailureDegradesToEvidence(t *testing.T) {
	client := &fakeAI{
		formatFn: func(name, prompt string, out any) error {
			return errors.New("planner down")
		},
	}

	route := NewDriftRoute(client, globalFixture())
	out, err := route.Run(context.Background(), Request{
		GroupID: "g1",
		Query:   "Compare the invoice and contract amounts",
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v, want graceful degradation", err)
	}
	if out.Answer != "" {
		t.Fatalf("answer = %q, want empty so the engine synthesizes", out.Answer)
	}
	if len(out.Evidence) == 0 {
		t.Fatalf("evidence empty, want global grounding to survive primer failure")
	}
}

func TestDriftRoute_NoEvidenceFindingsSkipped(t *testing.T) {
	var mu sync.Mutex
	planCalls := 0
	client := &fakeAI{
		formatFn: func(name, prompt string, out any) error {
			mu.Lock()
			planCalls++
			call := planCalls
			mu.Unlock()
			plan := out.(*primerPlan)
			if call == 1 {
				plan.FollowUps = []string{"Is there a routing number?"}
			}
			return nil
		},
		completionFn: func(prompt string) (string, error) {
			if strings.Contains(prompt, "Sub-question:") {
				return "NO EVIDENCE", nil
			}
			return "should not be called", nil
		},
	}

	route := NewDriftRoute(client, globalFixture())
	out, err := route.Run(context.Background(), Request{
		GroupID: "g1",
		Query:   "Compare the invoice and contract amounts",
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// No findings at all: the route hands back its primer evidence.
	if out.Answer != "" {
		t.Fatalf("answer = %q, want empty with no usable findings", out.Answer)
	}
	if len(out.Evidence) == 0 {
		t.Fatalf("evidence empty, want primer evidence")
	}
}

func TestBoundFindings(t *testing.T) {
	long := strings.Repeat("x", historyEntryMaxChars+50)
	findings := []string{long, "recent finding"}

	bounded, truncated := boundFindings(findings)
	if !truncated {
		t.Fatalf("truncated = false, want per-entry cap to trigger")
	}
	if len(bounded[0]) > historyEntryMaxChars+len("…") {
		t.Fatalf("entry length = %d, exceeds per-entry cap", len(bounded[0]))
	}

	many := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		many = append(many, strings.Repeat("y", historyEntryMaxChars))
	}
	bounded, truncated = boundFindings(many)
	if !truncated {
		t.Fatalf("truncated = false, want total cap to drop oldest entries")
	}
	total := 0
	for _, f := range bounded {
		total += len(f)
	}
	if total > historyMaxChars {
		t.Fatalf("total history = %d, exceeds cap %d", total, historyMaxChars)
	}
	if bounded[len(bounded)-1] != many[len(many)-1] {
		t.Fatalf("most recent finding was dropped, want oldest-first truncation")
	}

	multibyte := strings.Repeat("ü", historyEntryMaxChars)
	bounded, _ = boundFindings([]string{multibyte})
	if !utf8.ValidString(bounded[0]) {
		t.Fatalf("per-entry cap split a rune: %q", bounded[0][:12])
	}
}
