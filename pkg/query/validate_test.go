package query

import (
	"context"
	"strings"
	"testing"

	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/store/memory"
)

func validatorFixture() *memory.GraphMemStore {
	st := memory.NewGraphMemStore()
	st.AddDocument(model.Document{ID: "d1", GroupID: "g1", Title: "Invoice"})
	st.AddKeyValue(model.KeyValue{
		ID: "kv1", GroupID: "g1", DocumentID: "d1",
		Key: "Invoice Total", Value: "$29,900.00", Confidence: 0.95,
	})
	st.AddEntity(model.Entity{
		ID: "e1", GroupID: "g1", Name: "Acme Corp", Type: "organization",
		Description: "Vendor issuing the invoice.",
	})
	return st
}

func TestShouldValidate(t *testing.T) {
	v := NewValidator(&fakeAI{}, validatorFixture())
	tests := []struct {
		answer string
		want   bool
	}{
		{"The routing number was not found in the documents.", true},
		{"I don't know, but you can provide new sources with that information.", true},
		{"The invoice total is recorded as $29,900.00.", true},
		{"The invoice total is $29,900.00 [[c1]].", true},
		{"The routing number is 021000021 [[c1]].", true},
		{"The parties signed the agreement [[c1]].", false},
	}
	for _, tt := range tests {
		if got := v.ShouldValidate(tt.answer); got != tt.want {
			t.Fatalf("ShouldValidate(%q) = %v, want %v", tt.answer, got, tt.want)
		}
	}
}

func TestValidate_AbsenceConfirmed(t *testing.T) {
	client := &fakeAI{formatFn: func(name, prompt string, out any) error {
		out.(*fieldClaims).Claims = nil
		return nil
	}}
	v := NewValidator(client, validatorFixture())

	answer := "A bank routing number was not found in the documents."
	corrected, checks := v.Validate(context.Background(), "g1", "What is the bank routing number?", answer)

	if corrected != answer {
		t.Fatalf("corrected = %q, want unchanged answer for a true absence", corrected)
	}
	if len(checks) == 0 {
		t.Fatalf("no checks recorded for absence probing")
	}
	for _, c := range checks {
		if !c.Supported {
			t.Fatalf("check %+v unsupported, want confirmed absence", c)
		}
	}
}

func TestValidate_AbsenceContradicted(t *testing.T) {
	client := &fakeAI{formatFn: func(name, prompt string, out any) error {
		out.(*fieldClaims).Claims = nil
		return nil
	}}
	v := NewValidator(client, validatorFixture())

	answer := "The invoice total was not found in the documents."
	corrected, checks := v.Validate(context.Background(), "g1", "What is the invoice total?", answer)

	contradicted := false
	for _, c := range checks {
		if !c.Supported && c.Matches > 0 {
			contradicted = true
		}
	}
	if !contradicted {
		t.Fatalf("checks %v, want a contradicted absence claim", checks)
	}
	if !strings.Contains(corrected, "does contain") {
		t.Fatalf("corrected = %q, want appended correction", corrected)
	}
}

func TestValidate_UnsupportedPresenceClaimCorrected(t *testing.T) {
	client := &fakeAI{formatFn: func(name, prompt string, out any) error {
		out.(*fieldClaims).Claims = []fieldClaim{
			{Statement: "the warranty period is recorded as 24 months", Term: "warranty period"},
		}
		return nil
	}}
	v := NewValidator(client, validatorFixture())

	answer := "The warranty period is recorded as 24 months."
	corrected, checks := v.Validate(context.Background(), "g1", "What is the warranty period?", answer)

	if len(checks) == 0 {
		t.Fatalf("no checks recorded")
	}
	if checks[0].Supported {
		t.Fatalf("check %+v supported, want unsupported claim", checks[0])
	}
	if !strings.Contains(corrected, "could not be confirmed") {
		t.Fatalf("corrected = %q, want absence correction appended", corrected)
	}
}

func TestValidate_SupportedClaimUntouched(t *testing.T) {
	client := &fakeAI{formatFn: func(name, prompt string, out any) error {
		out.(*fieldClaims).Claims = []fieldClaim{
			{Statement: "the invoice total is $29,900.00", Term: "invoice total"},
		}
		return nil
	}}
	v := NewValidator(client, validatorFixture())

	answer := "The invoice total is recorded as $29,900.00."
	corrected, checks := v.Validate(context.Background(), "g1", "What is the invoice total?", answer)

	if corrected != answer {
		t.Fatalf("corrected = %q, want unchanged answer", corrected)
	}
	if len(checks) != 1 || !checks[0].Supported || checks[0].Matches == 0 {
		t.Fatalf("checks = %v, want one supported check with matches", checks)
	}
}

func TestProbeTerms(t *testing.T) {
	terms := probeTerms("Is there any bank routing number in the documents?")
	if len(terms) == 0 || len(terms) > maxProbeTerms {
		t.Fatalf("terms = %v, want 1..%d probe terms", terms, maxProbeTerms)
	}
	for _, term := range terms {
		if probeStopwords[term] || len(term) < 4 {
			t.Fatalf("term %q should have been filtered", term)
		}
	}
	// Longest, most specific term first.
	if terms[0] != "routing" {
		t.Fatalf("terms = %v, want routing first", terms)
	}
}
