package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vellum-graph/vellum/internal/util"
	"github.com/vellum-graph/vellum/pkg/ai"
	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/retrieval"
)

const (
	synthesisRetryDelay = 500 * time.Millisecond

	historyMaxChars      = 24000
	historyEntryMaxChars = 4000

	citationPreviewRunes = 160
)

var citationPattern = regexp.MustCompile(`\[\[([^\[\]\s]+)\]\]`)

// Synthesizer turns budgeted evidence into a cited answer. Every factual
// statement in the answer carries inline [[id]] markers referencing
// evidence IDs; markers pointing at IDs outside the evidence set are
// stripped so the citation list never contains fabricated sources.
type Synthesizer struct {
	ai ai.QueryAIClient
}

func NewSynthesizer(client ai.QueryAIClient) *Synthesizer {
	return &Synthesizer{ai: client}
}

// Synthesize generates the answer for a question over the given evidence.
// Prior conversation turns ride as chat messages ahead of the prompt,
// bounded by the history caps.
// With no evidence it produces a short degraded response instead of
// hallucinating one. AI failures are retried once with backoff before the
// call fails with ErrUpstreamUnavailable.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	question string,
	responseType ResponseType,
	history []ai.ChatMessage,
	evidence []retrieval.Evidence,
	tracer Tracer,
) (string, []model.Citation, bool, error) {
	if len(evidence) == 0 {
		answer, err := s.noEvidenceAnswer(ctx, question)
		if err != nil {
			return "", nil, false, err
		}
		return answer, nil, true, nil
	}

	historyNote := "(none)"
	if len(history) > 0 {
		historyNote = "(carried as the preceding conversation turns)"
	}
	prompt := fmt.Sprintf(
		ai.AnswerPrompt,
		FormatEvidenceBlock(evidence),
		historyNote,
		question,
	) + responseDirective(responseType)

	raw, err := util.RetryWithBackoff(ctx, 2, synthesisRetryDelay, func(ctx context.Context) (string, error) {
		if len(history) == 0 {
			return s.ai.GenerateCompletion(ctx, prompt)
		}
		messages := append(boundHistory(history), ai.ChatMessage{Role: "user", Message: prompt})
		return s.ai.GenerateChat(ctx, messages)
	})
	if err != nil {
		return "", nil, false, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	byID := make(map[string]retrieval.Evidence, len(evidence))
	for _, ev := range evidence {
		byID[ev.ID] = ev
	}

	answer, usedIDs := filterCitations(raw, byID)
	RecordUsedSourceIDs(tracer, usedIDs...)

	citations := make([]model.Citation, 0, len(usedIDs))
	for _, id := range usedIDs {
		ev := byID[id]
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

	return answer, citations, false, nil
}

func (s *Synthesizer) noEvidenceAnswer(ctx context.Context, question string) (string, error) {
	answer, err := s.ai.GenerateCompletion(ctx, fmt.Sprintf(ai.NoDataPrompt, question))
	if err != nil {
		// The degraded path must not fail the whole query on AI trouble.
		return "There is no information available in the knowledge base for this question.", nil
	}
	return answer, nil
}

// FormatEvidenceBlock renders evidence as the numbered blocks the prompts
// describe: one line header with id, kind and document, then the text.
func FormatEvidenceBlock(evidence []retrieval.Evidence) string {
	var b strings.Builder
	for _, ev := range evidence {
		doc := ev.DocumentTitle
		if doc == "" {
			doc = ev.DocumentID
		}
		if doc == "" {
			doc = "-"
		}
		fmt.Fprintf(&b, "[%s] (%s, %s): %s\n\n", ev.ID, ev.Kind, doc, strings.TrimSpace(ev.Text))
	}
	return strings.TrimSpace(b.String())
}

// responseDirective extends the prompt's output formatting rules with the
// requested verbosity.
func responseDirective(rt ResponseType) string {
	if rt == ResponseConcise {
		return "- Keep the answer to a single concise paragraph.\n"
	}
	return ""
}

// boundHistory caps prior turns so a long conversation cannot crowd out the
// evidence: each entry is cut to the per-entry cap and older turns are
// dropped once the total cap is reached.
func boundHistory(history []ai.ChatMessage) []ai.ChatMessage {
	bounded := make([]ai.ChatMessage, 0, len(history))
	total := 0
	// Walk backwards so the most recent turns survive the cap.
	for i := len(history) - 1; i >= 0; i-- {
		msg := truncateChars(history[i].Message, historyEntryMaxChars)
		if total+len(msg) > historyMaxChars {
			break
		}
		total += len(msg)
		bounded = append(bounded, ai.ChatMessage{Role: history[i].Role, Message: msg})
	}
	// Restore chronological order.
	for i, j := 0, len(bounded)-1; i < j; i, j = i+1, j-1 {
		bounded[i], bounded[j] = bounded[j], bounded[i]
	}
	return bounded
}

// truncateChars cuts s to at most max bytes without splitting a rune, and
// marks the cut with an ellipsis.
func truncateChars(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

// filterCitations strips [[id]] markers whose ID is not in the evidence set
// and returns the cleaned answer plus the used IDs in first-mention order.
func filterCitations(answer string, byID map[string]retrieval.Evidence) (string, []string) {
	var used []string
	seen := make(map[string]struct{})

	cleaned := citationPattern.ReplaceAllStringFunc(answer, func(marker string) string {
		id := citationPattern.FindStringSubmatch(marker)[1]
		if _, ok := byID[id]; !ok {
			return ""
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			used = append(used, id)
		}
		return marker
	})

	// Collapse doubled spaces left behind by stripped markers.
	cleaned = strings.ReplaceAll(cleaned, "  ", " ")
	return strings.TrimSpace(cleaned), used
}

func preview(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= citationPreviewRunes {
		return string(runes)
	}
	return string(runes[:citationPreviewRunes]) + "…"
}
