package query

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vellum-graph/vellum/pkg/ai"
	"github.com/vellum-graph/vellum/pkg/logger"
	"github.com/vellum-graph/vellum/pkg/store"
)

const (
	maxFieldClaims = 5
	maxProbeTerms  = 3
)

// FieldCheck is one deterministic verdict of the field validator.
type FieldCheck struct {
	Statement string `json:"statement"`
	Term      string `json:"term"`
	Supported bool   `json:"supported"`
	Matches   int    `json:"matches"`
}

type fieldClaim struct {
	Statement string `json:"statement"`
	Term      string `json:"term"`
}

type fieldClaims struct {
	Claims []fieldClaim `json:"claims"`
}

// Validator double-checks negative and presence claims in a synthesized
// answer with direct existence queries against the graph, bypassing all
// retrieval ranking. Statistical retrieval can miss rare but present facts;
// the deterministic check wins over the synthesized claim.
type Validator struct {
	ai    ai.QueryAIClient
	store store.GraphStore
}

func NewValidator(client ai.QueryAIClient, s store.GraphStore) *Validator {
	return &Validator{ai: client, store: s}
}

var negativeMarkers = []string{
	"not found",
	"no information",
	"not present",
	"not specified",
	"no record",
	"not available",
	"does not contain",
	"no mention",
	"i don't know",
	"cannot find",
	"could not find",
}

var confirmationMarkers = []string{
	"is present",
	"does contain",
	"is included",
	"is recorded",
	"is listed",
	"confirms",
}

var valuePattern = regexp.MustCompile(`[0-9]`)

// ShouldValidate reports whether the answer carries a claim worth checking:
// an absence assertion, an explicit presence confirmation, or a concrete
// field value stated as plain fact.
func (v *Validator) ShouldValidate(answer string) bool {
	return answerAssertsAbsence(answer) || answerConfirmsPresence(answer) || answerStatesValue(answer)
}

// answerStatesValue detects concrete field values outside citation markers.
// A draft like "The routing number is 021000021" asserts presence without
// any confirmation phrase; its claims still get checked.
func answerStatesValue(answer string) bool {
	return valuePattern.MatchString(citationPattern.ReplaceAllString(answer, ""))
}

func answerAssertsAbsence(answer string) bool {
	a := strings.ToLower(answer)
	for _, m := range negativeMarkers {
		if strings.Contains(a, m) {
			return true
		}
	}
	return false
}

func answerConfirmsPresence(answer string) bool {
	a := strings.ToLower(answer)
	for _, m := range confirmationMarkers {
		if strings.Contains(a, m) {
			return true
		}
	}
	return false
}

// Validate checks the answer's claims against the graph and returns the
// possibly corrected answer plus every verdict. When a deterministic check
// contradicts the answer the correction is appended and the discrepancy
// logged; validation never fails the query.
func (v *Validator) Validate(ctx context.Context, groupID, question, answer string) (string, []FieldCheck) {
	var checks []FieldCheck

	for _, claim := range v.extractClaims(ctx, answer) {
		matches, err := v.countMatches(ctx, groupID, claim.Term)
		if err != nil {
			logger.Warn("[Validator] existence check failed", "group", groupID, "term", claim.Term, "err", err)
			continue
		}
		checks = append(checks, FieldCheck{
			Statement: claim.Statement,
			Term:      claim.Term,
			Supported: matches > 0,
			Matches:   matches,
		})
	}

	if answerAssertsAbsence(answer) {
		for _, term := range probeTerms(question) {
			matches, err := v.countMatches(ctx, groupID, term)
			if err != nil {
				logger.Warn("[Validator] existence check failed", "group", groupID, "term", term, "err", err)
				continue
			}
			checks = append(checks, FieldCheck{
				Statement: "stated as absent: " + term,
				Term:      term,
				Supported: matches == 0,
				Matches:   matches,
			})
		}
	}

	corrected := answer
	for _, check := range checks {
		if check.Supported {
			continue
		}
		logger.Warn("[Validator] deterministic check contradicts answer",
			"group", groupID, "statement", check.Statement, "term", check.Term, "matches", check.Matches)
		if check.Matches > 0 {
			corrected += fmt.Sprintf(
				"\n\nCorrection: the knowledge base does contain %d record(s) matching \"%s\"; the absence statement above is not reliable.",
				check.Matches, check.Term)
		} else {
			corrected += fmt.Sprintf(
				"\n\nCorrection: no record matching \"%s\" exists in the knowledge base; the statement \"%s\" could not be confirmed.",
				check.Term, check.Statement)
		}
	}

	return corrected, checks
}

// extractClaims pulls checkable field claims out of the answer. A failed
// extraction degrades to the marker-based absence probing alone.
func (v *Validator) extractClaims(ctx context.Context, answer string) []fieldClaim {
	var claims fieldClaims
	err := v.ai.GenerateCompletionWithFormat(
		ctx,
		"field_claims",
		"Concrete factual field claims made in a generated answer",
		fmt.Sprintf(ai.ClaimPrompt, answer, maxFieldClaims),
		&claims,
	)
	if err != nil {
		logger.Warn("[Validator] claim extraction failed", "err", err)
		return nil
	}
	out := make([]fieldClaim, 0, maxFieldClaims)
	for _, c := range claims.Claims {
		c.Term = strings.TrimSpace(c.Term)
		if c.Term == "" {
			continue
		}
		out = append(out, c)
		if len(out) == maxFieldClaims {
			break
		}
	}
	return out
}

func (v *Validator) countMatches(ctx context.Context, groupID, term string) (int, error) {
	kvMatches, err := v.store.CountKeyValueMatches(ctx, groupID, term)
	if err != nil {
		return 0, err
	}
	entityMatches, err := v.store.CountEntityMatches(ctx, groupID, term)
	if err != nil {
		return 0, err
	}
	return kvMatches + entityMatches, nil
}

var probeStopwords = map[string]bool{
	"the": true, "is": true, "are": true, "there": true, "any": true,
	"what": true, "which": true, "who": true, "where": true, "does": true,
	"this": true, "that": true, "from": true, "with": true, "for": true,
	"and": true, "not": true, "have": true, "has": true, "was": true,
	"documents": true, "document": true, "mentioned": true, "contain": true,
}

// probeTerms derives the deterministic search terms for an absence claim
// from the question: the longest non-stopword terms, most specific first.
func probeTerms(question string) []string {
	fields := strings.Fields(strings.ToLower(question))
	terms := make([]string, 0, len(fields))
	seen := make(map[string]bool)
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?"'()`)
		if len(f) < 4 || probeStopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	sort.SliceStable(terms, func(i, j int) bool {
		if len(terms[i]) == len(terms[j]) {
			return terms[i] < terms[j]
		}
		return len(terms[i]) > len(terms[j])
	})
	if len(terms) > maxProbeTerms {
		terms = terms[:maxProbeTerms]
	}
	return terms
}
