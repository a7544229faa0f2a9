package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/vellum-graph/vellum/pkg/ai"
	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/retrieval"
)

func sampleEvidence() []retrieval.Evidence {
	return []retrieval.Evidence{
		{Kind: model.SourceChunk, ID: "c1", DocumentID: "d1", DocumentTitle: "Invoice", Text: "The total is $29,900.00.", Score: 0.9, Page: 2},
		{Kind: model.SourceChunk, ID: "c2", DocumentID: "d1", DocumentTitle: "Invoice", Text: "Payment is due in 30 days.", Score: 0.7},
	}
}

func TestSynthesize_CitationsFromEvidence(t *testing.T) {
	client := &fakeAI{completionFn: func(prompt string) (string, error) {
		return "The total is $29,900.00 [[c1]] and payment is due in 30 days [[c2]].", nil
	}}
	syn := NewSynthesizer(client)
	trace := NewQueryTrace()

	answer, citations, degraded, err := syn.Synthesize(context.Background(), "What is the total?", ResponseDetailed, nil, sampleEvidence(), trace)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if degraded {
		t.Fatalf("degraded = true, want false")
	}
	if len(citations) != 2 {
		t.Fatalf("citations length = %d, want 2", len(citations))
	}
	if citations[0].SourceID != "c1" || citations[1].SourceID != "c2" {
		t.Fatalf("citation order = %v, want first-mention order c1, c2", citations)
	}
	if citations[0].Page != 2 {
		t.Fatalf("citation page = %d, want 2", citations[0].Page)
	}
	if !strings.Contains(answer, "[[c1]]") {
		t.Fatalf("answer lost valid citation marker: %q", answer)
	}

	used := trace.Snapshot().UsedSourceIDs
	if len(used) != 2 {
		t.Fatalf("trace used sources = %v, want 2 entries", used)
	}
}

func TestSynthesize_StripsFabricatedCitations(t *testing.T) {
	client := &fakeAI{completionFn: func(prompt string) (string, error) {
		return "The total is $29,900.00 [[c1]] [[made-up]].", nil
	}}
	syn := NewSynthesizer(client)

	answer, citations, _, err := syn.Synthesize(context.Background(), "What is the total?", "", nil, sampleEvidence(), nil)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if strings.Contains(answer, "made-up") {
		t.Fatalf("fabricated marker survived: %q", answer)
	}
	if len(citations) != 1 || citations[0].SourceID != "c1" {
		t.Fatalf("citations = %v, want only c1", citations)
	}
}

func TestSynthesize_NoEvidenceDegrades(t *testing.T) {
	client := &fakeAI{completionFn: func(prompt string) (string, error) {
		if !strings.Contains(prompt, "no relevant information was found") {
			t.Fatalf("expected no-data prompt, got: %q", prompt[:80])
		}
		return "No information available for this question.", nil
	}}
	syn := NewSynthesizer(client)

	answer, citations, degraded, err := syn.Synthesize(context.Background(), "What is X?", "", nil, nil, nil)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !degraded {
		t.Fatalf("degraded = false, want true without evidence")
	}
	if len(citations) != 0 {
		t.Fatalf("citations = %v, want none", citations)
	}
	if answer == "" {
		t.Fatalf("answer empty, want degraded text")
	}
}

func TestSynthesize_NoEvidenceFallbackOnAIFailure(t *testing.T) {
	client := &fakeAI{completionFn: func(prompt string) (string, error) {
		return "", errors.New("backend down")
	}}
	syn := NewSynthesizer(client)

	answer, _, degraded, err := syn.Synthesize(context.Background(), "What is X?", "", nil, nil, nil)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !degraded || answer == "" {
		t.Fatalf("want static degraded answer, got degraded=%v answer=%q", degraded, answer)
	}
}

func TestSynthesize_RetriesThenUpstreamError(t *testing.T) {
	client := &fakeAI{completionFn: func(prompt string) (string, error) {
		return "", errors.New("backend down")
	}}
	syn := NewSynthesizer(client)

	_, _, _, err := syn.Synthesize(context.Background(), "What is the total?", "", nil, sampleEvidence(), nil)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("error = %v, want ErrUpstreamUnavailable", err)
	}
	if client.completionCalls < 2 {
		t.Fatalf("completion calls = %d, want at least one retry", client.completionCalls)
	}
}

func TestSynthesize_ConcisePromptDirective(t *testing.T) {
	var sawPrompt string
	client := &fakeAI{completionFn: func(prompt string) (string, error) {
		sawPrompt = prompt
		return "The total is $29,900.00 [[c1]].", nil
	}}
	syn := NewSynthesizer(client)

	_, _, _, err := syn.Synthesize(context.Background(), "What is the total?", ResponseConcise, nil, sampleEvidence(), nil)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !strings.Contains(sawPrompt, "single concise paragraph") {
		t.Fatalf("prompt missing concise directive")
	}
}

func TestSynthesize_HistoryRidesAsChatTurns(t *testing.T) {
	var sawMessages []ai.ChatMessage
	client := &fakeAI{chatFn: func(messages []ai.ChatMessage) (string, error) {
		sawMessages = messages
		return "Payment is due in 30 days [[c2]].", nil
	}}
	syn := NewSynthesizer(client)

	history := []ai.ChatMessage{
		{Role: "user", Message: "What is the total?"},
		{Role: "assistant", Message: "The total is $29,900.00 [[c1]]."},
	}
	answer, citations, _, err := syn.Synthesize(context.Background(), "When is payment due?", "", history, sampleEvidence(), nil)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(sawMessages) != 3 {
		t.Fatalf("chat messages = %d, want history plus prompt", len(sawMessages))
	}
	if sawMessages[0].Message != "What is the total?" || sawMessages[1].Role != "assistant" {
		t.Fatalf("history turns not carried in order: %+v", sawMessages[:2])
	}
	if !strings.Contains(sawMessages[2].Message, "When is payment due?") {
		t.Fatalf("final turn missing the prompt: %q", sawMessages[2].Message)
	}
	if len(citations) != 1 || citations[0].SourceID != "c2" {
		t.Fatalf("citations = %v, want c2", citations)
	}
	if answer == "" {
		t.Fatalf("answer empty")
	}
}

func TestBoundHistory_CapsEntries(t *testing.T) {
	long := strings.Repeat("x", historyEntryMaxChars+100)
	history := []ai.ChatMessage{
		{Role: "user", Message: long},
		{Role: "assistant", Message: "short answer"},
	}
	bounded := boundHistory(history)
	if len(bounded) != 2 {
		t.Fatalf("bounded length = %d, want 2", len(bounded))
	}
	// Order must stay chronological, most recent turns survive.
	if bounded[0].Role != "user" || bounded[1].Message != "short answer" {
		t.Fatalf("bounded history out of order: %+v", bounded)
	}
	if len(bounded[0].Message) > historyEntryMaxChars+len("…") {
		t.Fatalf("entry length = %d, exceeds per-entry cap", len(bounded[0].Message))
	}
}

func TestTruncateChars_KeepsRunesIntact(t *testing.T) {
	s := strings.Repeat("ü", 10)
	cut := truncateChars(s, 5)
	if !utf8.ValidString(cut) {
		t.Fatalf("truncation split a rune: %q", cut)
	}
	if cut != "üü…" {
		t.Fatalf("cut = %q, want two runes plus ellipsis", cut)
	}
	if got := truncateChars("short", 10); got != "short" {
		t.Fatalf("cut = %q, want input unchanged under the cap", got)
	}
}

func TestFormatEvidenceBlock(t *testing.T) {
	block := FormatEvidenceBlock(sampleEvidence())
	if !strings.Contains(block, "[c1] (chunk, Invoice):") {
		t.Fatalf("block missing formatted header: %q", block)
	}
	if !strings.Contains(block, "The total is $29,900.00.") {
		t.Fatalf("block missing evidence text: %q", block)
	}
}
