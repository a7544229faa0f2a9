package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode"

	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/store"
	"github.com/vellum-graph/vellum/pkg/tokens"
)

const (
	// DefaultTokenBudget caps the evidence handed to synthesis.
	DefaultTokenBudget = 32000

	shortChunkRunes   = 120
	shortChunkPenalty = 0.5
	lowLetterPenalty  = 0.7
)

// Evidence is one budgeted evidence block handed to synthesis. IDs are the
// citation targets the model refers to with [[id]].
type Evidence struct {
	Kind          model.SourceKind `json:"kind"`
	ID            string           `json:"id"`
	DocumentID    string           `json:"document_id,omitempty"`
	DocumentTitle string           `json:"document_title,omitempty"`
	Text          string           `json:"text"`
	Score         float64          `json:"score"`
	Page          int              `json:"page,omitempty"`
	GapFilled     bool             `json:"gap_filled,omitempty"`
}

// Controller turns ranked hits into a budgeted, deduplicated evidence set
// and guarantees document coverage for comprehensive queries.
type Controller struct {
	store store.GraphStore
}

func NewController(s store.GraphStore) *Controller {
	return &Controller{store: s}
}

var comprehensiveMarkers = []string{
	"all ", "every ", "each ", "summarize", "summarise", "overview",
	"compare", "comparison", "complete list", "list of", "themes",
	"across", "overall",
}

// IsComprehensive reports whether the query asks for corpus-wide coverage,
// in which case every document should be represented in the evidence.
func IsComprehensive(query string) bool {
	q := " " + strings.ToLower(query)
	for _, marker := range comprehensiveMarkers {
		if strings.Contains(q, marker) {
			return true
		}
	}
	return false
}

// noisePenalty down-weights chunks unlikely to carry answerable content:
// very short fragments and text dominated by non-letter characters
// (tables of dashes, page furniture, OCR noise).
func noisePenalty(text string) float64 {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	penalty := 1.0
	if len(runes) < shortChunkRunes {
		penalty *= shortChunkPenalty
	}
	if len(runes) > 0 {
		letters := 0
		for _, r := range runes {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				letters++
			}
		}
		if float64(letters)/float64(len(runes)) < 0.5 {
			penalty *= lowLetterPenalty
		}
	}
	return penalty
}

// AssembleParams describe one evidence assembly pass.
type AssembleParams struct {
	GroupID   string
	Query     string
	Embedding []float32

	// Hits is the primary chunk ranking, best first.
	Hits []store.ChunkHit
	// Extra evidence (community summaries, summary nodes) is budgeted
	// before chunks so thematic context survives truncation.
	Extra []Evidence

	// TokenBudget defaults to DefaultTokenBudget.
	TokenBudget int
	// ForceComprehensive enables gap fill regardless of query wording.
	ForceComprehensive bool
}

// Assemble produces the final evidence list: noise-penalized, deduplicated
// by content hash (first seen wins), gap-filled so every document is
// represented when the query is comprehensive, and cut to the token budget.
// The returned flag reports whether anything was dropped for budget.
func (c *Controller) Assemble(ctx context.Context, params AssembleParams) ([]Evidence, bool, error) {
	budget := params.TokenBudget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	hits := make([]store.ChunkHit, len(params.Hits))
	copy(hits, params.Hits)
	for i := range hits {
		hits[i].Score *= noisePenalty(hits[i].Chunk.Text)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].Chunk.ID < hits[j].Chunk.ID
		}
		return hits[i].Score > hits[j].Score
	})

	seenHashes := make(map[string]struct{})
	deduped := make([]store.ChunkHit, 0, len(hits))
	for _, h := range hits {
		hash := h.Chunk.Hash
		if hash == "" {
			hash = model.ContentHash(h.Chunk.Text)
		}
		if _, ok := seenHashes[hash]; ok {
			continue
		}
		seenHashes[hash] = struct{}{}
		deduped = append(deduped, h)
	}

	titles, err := c.documentTitles(ctx, params.GroupID)
	if err != nil {
		return nil, false, err
	}

	used := 0
	truncated := false
	evidence := make([]Evidence, 0, len(params.Extra)+len(deduped))

	push := func(ev Evidence) bool {
		cost := tokens.Count(ev.Text)
		if used+cost > budget {
			truncated = true
			return false
		}
		used += cost
		evidence = append(evidence, ev)
		return true
	}

	for _, ev := range params.Extra {
		push(ev)
	}

	coveredDocs := make(map[string]struct{})
	for _, h := range deduped {
		if !push(Evidence{
			Kind:          model.SourceChunk,
			ID:            h.Chunk.ID,
			DocumentID:    h.Chunk.DocumentID,
			DocumentTitle: titles[h.Chunk.DocumentID],
			Text:          h.Chunk.Text,
			Score:         h.Score,
			Page:          h.Chunk.Page,
		}) {
			break
		}
		coveredDocs[h.Chunk.DocumentID] = struct{}{}
	}

	if params.ForceComprehensive || IsComprehensive(params.Query) {
		if err := c.gapFill(ctx, params, titles, coveredDocs, seenHashes, push); err != nil {
			return nil, false, err
		}
	}

	return evidence, truncated, nil
}

// gapFill pushes the single best chunk of every document missing from the
// evidence. Documents are visited in stable indexed order; the pass exits
// early once the budget rejects a fill.
func (c *Controller) gapFill(
	ctx context.Context,
	params AssembleParams,
	titles map[string]string,
	coveredDocs map[string]struct{},
	seenHashes map[string]struct{},
	push func(Evidence) bool,
) error {
	docs, err := c.store.GetDocuments(ctx, params.GroupID)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		if _, ok := coveredDocs[doc.ID]; ok {
			continue
		}
		hit, err := c.store.BestChunkForDocument(ctx, params.GroupID, doc.ID, params.Embedding)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		hash := hit.Chunk.Hash
		if hash == "" {
			hash = model.ContentHash(hit.Chunk.Text)
		}
		if _, ok := seenHashes[hash]; ok {
			continue
		}

		ev := Evidence{
			Kind:          model.SourceChunk,
			ID:            hit.Chunk.ID,
			DocumentID:    doc.ID,
			DocumentTitle: titles[doc.ID],
			Text:          hit.Chunk.Text,
			Score:         hit.Score * noisePenalty(hit.Chunk.Text),
			Page:          hit.Chunk.Page,
			GapFilled:     true,
		}
		if !push(ev) {
			return nil
		}
		seenHashes[hash] = struct{}{}
		coveredDocs[doc.ID] = struct{}{}
	}
	return nil
}

func (c *Controller) documentTitles(ctx context.Context, groupID string) (map[string]string, error) {
	docs, err := c.store.GetDocuments(ctx, groupID)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(docs))
	for _, d := range docs {
		titles[d.ID] = d.Title
	}
	return titles, nil
}
