package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vellum-graph/vellum/pkg/logger"
	"github.com/vellum-graph/vellum/pkg/store"
)

const (
	sectionBoost     = 1.15
	coverageBoostMax = 0.10
)

// Searcher performs hybrid chunk retrieval: lexical and vector search run
// concurrently, their rankings are fused, and section-aware boosts are
// applied on top.
type Searcher struct {
	store store.GraphStore
}

func NewSearcher(s store.GraphStore) *Searcher {
	return &Searcher{store: s}
}

// SearchParams describe one hybrid chunk search.
type SearchParams struct {
	GroupID   string
	Query     string
	Embedding []float32
	Limit     int
}

// SearchChunks runs lexical and vector search concurrently over a widened
// candidate pool, fuses the two rankings, boosts chunks whose section title
// matches the query, and returns the top Limit hits. A failure of one search
// degrades to fusion over the other; the call fails only when both searches
// fail. Boost lookups never fail the search.
func (s *Searcher) SearchChunks(ctx context.Context, params SearchParams) ([]store.ChunkHit, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}
	pool := candidateLimit(limit)

	var vector, lexical []store.ChunkHit
	var vectorErr, lexicalErr error
	var eg errgroup.Group
	eg.Go(func() error {
		vector, vectorErr = s.store.SearchChunksByEmbedding(ctx, params.GroupID, params.Embedding, pool)
		return nil
	})
	eg.Go(func() error {
		lexical, lexicalErr = s.store.SearchChunksByKeywords(ctx, params.GroupID, params.Query, pool)
		return nil
	})
	_ = eg.Wait()

	if vectorErr != nil && lexicalErr != nil {
		return nil, fmt.Errorf("chunk search failed: vector: %v, lexical: %w", vectorErr, lexicalErr)
	}
	if vectorErr != nil {
		logger.Warn("[Retrieval] vector search failed, using lexical only", "group", params.GroupID, "err", vectorErr)
		vector = nil
	}
	if lexicalErr != nil {
		logger.Warn("[Retrieval] lexical search failed, using vector only", "group", params.GroupID, "err", lexicalErr)
		lexical = nil
	}

	fused := FuseChunkHits(vector, lexical, 0)
	if len(fused) == 0 {
		return nil, nil
	}

	boosted := s.applyBoosts(ctx, params.GroupID, params.Query, fused)

	if limit > len(boosted) {
		limit = len(boosted)
	}
	return boosted[:limit], nil
}

// applyBoosts multiplies fused scores by a section boost when the chunk's
// section title contains a query term, and by a small coverage boost
// proportional to how many query terms the chunk text contains. A failed
// section lookup skips the section boost instead of failing the search.
func (s *Searcher) applyBoosts(ctx context.Context, groupID, query string, hits []store.ChunkHit) []store.ChunkHit {
	terms := queryTerms(query)

	sectionIDs := make([]string, 0, len(hits))
	seen := make(map[string]struct{})
	for _, h := range hits {
		if h.Chunk.SectionID == "" {
			continue
		}
		if _, ok := seen[h.Chunk.SectionID]; ok {
			continue
		}
		seen[h.Chunk.SectionID] = struct{}{}
		sectionIDs = append(sectionIDs, h.Chunk.SectionID)
	}

	matchingSections := make(map[string]bool)
	if len(sectionIDs) > 0 && len(terms) > 0 {
		sections, err := s.store.GetSectionsByIDs(ctx, groupID, sectionIDs)
		if err != nil {
			logger.Warn("[Retrieval] section lookup failed, skipping section boost", "group", groupID, "err", err)
		}
		for _, sec := range sections {
			title := strings.ToLower(sec.Title + " " + sec.Path)
			for _, t := range terms {
				if strings.Contains(title, t) {
					matchingSections[sec.ID] = true
					break
				}
			}
		}
	}

	boosted := make([]store.ChunkHit, len(hits))
	copy(boosted, hits)
	for i := range boosted {
		if matchingSections[boosted[i].Chunk.SectionID] {
			boosted[i].Score *= sectionBoost
		}
		if len(terms) > 0 {
			text := strings.ToLower(boosted[i].Chunk.Text)
			matched := 0
			for _, t := range terms {
				if strings.Contains(text, t) {
					matched++
				}
			}
			coverage := float64(matched) / float64(len(terms))
			boosted[i].Score *= 1 + coverageBoostMax*coverage
		}
	}

	sort.SliceStable(boosted, func(i, j int) bool {
		if boosted[i].Score == boosted[j].Score {
			return boosted[i].Chunk.ID < boosted[j].Chunk.ID
		}
		return boosted[i].Score > boosted[j].Score
	})
	return boosted
}

// queryTerms lowercases and splits the query, dropping terms too short to be
// meaningful boost signals.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?"'()`)
		if len(f) < 3 {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}
