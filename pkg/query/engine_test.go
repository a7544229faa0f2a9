package query

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func scriptedEngineAI(answer string) *fakeAI {
	return &fakeAI{
		formatFn: func(name, prompt string, out any) error {
			switch v := out.(type) {
			case *routeChoice:
				v.Route = "local"
			case *fieldClaims:
				// no checkable claims extracted
			}
			return nil
		},
		completionFn: func(prompt string) (string, error) {
			return answer, nil
		},
	}
}

func TestEngine_InvoiceTotalViaLocalRoute(t *testing.T) {
	client := scriptedEngineAI("The invoice total is $29,900.00 [[c1]].")
	engine := NewEngine(client, localFixture())

	res, err := engine.Answer(context.Background(), Request{
		GroupID: "g1",
		Query:   "What is the invoice total?",
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if res.Route != RouteLocal {
		t.Fatalf("route = %q, want %q", res.Route, RouteLocal)
	}
	if !strings.Contains(res.Answer, "29,900.00") {
		t.Fatalf("answer = %q, want the invoice total", res.Answer)
	}
	if len(res.Citations) == 0 || res.Citations[0].DocumentID != "d1" {
		t.Fatalf("citations = %v, want at least one pointing at the invoice", res.Citations)
	}
	if res.Degraded {
		t.Fatalf("degraded = true, want clean answer")
	}
	if len(res.Trace.UsedSourceIDs) == 0 {
		t.Fatalf("trace has no used sources")
	}
}

func TestEngine_ForcedGlobalCoversAllDocuments(t *testing.T) {
	client := scriptedEngineAI("Payments apply in all documents [[c1]] [[c2]] [[c3]].")
	engine := NewEngine(client, globalFixture())

	res, err := engine.Answer(context.Background(), Request{
		GroupID:       "g1",
		Query:         "List the payment obligations",
		RouteOverride: RouteGlobal,
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if res.Route != RouteGlobal {
		t.Fatalf("route = %q, want forced %q", res.Route, RouteGlobal)
	}

	docs := make(map[string]bool)
	for _, c := range res.Citations {
		docs[c.DocumentID] = true
	}
	for _, id := range []string{"d1", "d2", "d3"} {
		if !docs[id] {
			t.Fatalf("cited documents %v missing %s", docs, id)
		}
	}
}

func TestEngine_AbsenceAnswerValidated(t *testing.T) {
	client := scriptedEngineAI("A bank routing number was not found in the documents.")
	engine := NewEngine(client, localFixture())

	res, err := engine.Answer(context.Background(), Request{
		GroupID:       "g1",
		Query:         "What is the bank routing number?",
		RouteOverride: RouteLocal,
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(res.Checks) == 0 {
		t.Fatalf("no field checks recorded for an absence answer")
	}
	for _, c := range res.Checks {
		if !c.Supported {
			t.Fatalf("check %+v contradicted, want confirmed absence", c)
		}
	}
	if strings.Contains(res.Answer, "Correction:") {
		t.Fatalf("answer = %q, want no correction for a true absence", res.Answer)
	}
}

func TestEngine_AbsenceAnswerOverridden(t *testing.T) {
	client := scriptedEngineAI("The invoice total was not found in the documents.")
	engine := NewEngine(client, localFixture())

	res, err := engine.Answer(context.Background(), Request{
		GroupID:       "g1",
		Query:         "What is the invoice total?",
		RouteOverride: RouteLocal,
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !strings.Contains(res.Answer, "does contain") {
		t.Fatalf("answer = %q, want deterministic correction appended", res.Answer)
	}
}

func TestEngine_FalsePresenceClaimCorrected(t *testing.T) {
	// The draft asserts a value in plain factual phrasing, without any
	// confirmation marker; the extracted claim has no deterministic match.
	client := &fakeAI{
		formatFn: func(name, prompt string, out any) error {
			switch v := out.(type) {
			case *routeChoice:
				v.Route = "local"
			case *fieldClaims:
				v.Claims = []fieldClaim{{
					Statement: "The routing number is 021000021",
					Term:      "routing number",
				}}
			}
			return nil
		},
		completionFn: func(prompt string) (string, error) {
			return "The routing number is 021000021 [[c1]].", nil
		},
	}
	engine := NewEngine(client, localFixture())

	res, err := engine.Answer(context.Background(), Request{
		GroupID:       "g1",
		Query:         "What is the routing number?",
		RouteOverride: RouteLocal,
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !strings.Contains(res.Answer, "could not be confirmed") {
		t.Fatalf("answer = %q, want deterministic correction for an unsupported value", res.Answer)
	}
	unsupported := false
	for _, c := range res.Checks {
		if !c.Supported && c.Matches == 0 {
			unsupported = true
		}
	}
	if !unsupported {
		t.Fatalf("checks = %+v, want an unsupported zero-match verdict", res.Checks)
	}
}

func TestEngine_RejectsInvalidRequest(t *testing.T) {
	engine := NewEngine(&fakeAI{}, localFixture())

	_, err := engine.Answer(context.Background(), Request{GroupID: "", Query: "anything"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
	_, err = engine.Answer(context.Background(), Request{GroupID: "g1", Query: "   "})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestEngine_ExtraTracerReceivesEvents(t *testing.T) {
	client := scriptedEngineAI("The invoice total is $29,900.00 [[c1]].")
	engine := NewEngine(client, localFixture())
	extra := NewQueryTrace()

	_, err := engine.Answer(context.Background(), Request{
		GroupID:       "g1",
		Query:         "What is the invoice total?",
		RouteOverride: RouteLocal,
	}, extra)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(extra.Snapshot().ConsideredSourceIDs) == 0 {
		t.Fatalf("extra tracer saw no considered sources")
	}
}
