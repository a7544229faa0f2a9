package retrieval

import (
	"sort"

	"github.com/vellum-graph/vellum/pkg/store"
)

const rrfK = 60.0

type fusionCandidate struct {
	Index        int
	ID           string
	VectorScore  float64
	LexicalScore float64
	HasVector    bool
	HasLexical   bool
}

func buildRankPositions(
	candidates []fusionCandidate,
	less func(a, b fusionCandidate) bool,
) map[int]int {
	order := make([]int, len(candidates))
	for i := range candidates {
		order[i] = i
	}

	sort.SliceStable(order, func(i, j int) bool {
		return less(candidates[order[i]], candidates[order[j]])
	})

	positions := make(map[int]int, len(candidates))
	for rank, index := range order {
		positions[index] = rank + 1
	}

	return positions
}

func rrfComponent(rank int, weight float64) float64 {
	if rank <= 0 {
		return 0
	}
	return weight / (rrfK + float64(rank))
}

// FuseChunkHits merges a vector result list and a lexical result list into
// one ranking using reciprocal rank fusion. Raw scores from the two searches
// are never compared; only rank positions matter. A chunk absent from one
// list simply contributes no component for it. Ties break by vector score,
// then lexical score, then chunk ID, so the ordering is deterministic.
func FuseChunkHits(vector, lexical []store.ChunkHit, limit int) []store.ChunkHit {
	if len(vector) == 0 && len(lexical) == 0 {
		return nil
	}

	byID := make(map[string]int)
	candidates := make([]fusionCandidate, 0, len(vector)+len(lexical))
	hits := make([]store.ChunkHit, 0, len(vector)+len(lexical))

	add := func(hit store.ChunkHit, fromVector bool) {
		idx, ok := byID[hit.Chunk.ID]
		if !ok {
			idx = len(candidates)
			byID[hit.Chunk.ID] = idx
			candidates = append(candidates, fusionCandidate{Index: idx, ID: hit.Chunk.ID})
			hits = append(hits, hit)
		}
		if fromVector {
			candidates[idx].VectorScore = hit.Score
			candidates[idx].HasVector = true
		} else {
			candidates[idx].LexicalScore = hit.Score
			candidates[idx].HasLexical = true
		}
	}
	for _, h := range vector {
		add(h, true)
	}
	for _, h := range lexical {
		add(h, false)
	}

	vectorRanks := buildRankPositions(candidates, func(a, b fusionCandidate) bool {
		if a.HasVector != b.HasVector {
			return a.HasVector
		}
		if a.VectorScore == b.VectorScore {
			return a.ID < b.ID
		}
		return a.VectorScore > b.VectorScore
	})

	hasLexical := false
	for _, c := range candidates {
		if c.HasLexical {
			hasLexical = true
			break
		}
	}

	lexicalRanks := map[int]int{}
	if hasLexical {
		lexicalRanks = buildRankPositions(candidates, func(a, b fusionCandidate) bool {
			if a.HasLexical != b.HasLexical {
				return a.HasLexical
			}
			if a.LexicalScore == b.LexicalScore {
				if a.VectorScore == b.VectorScore {
					return a.ID < b.ID
				}
				return a.VectorScore > b.VectorScore
			}
			return a.LexicalScore > b.LexicalScore
		})
	}

	type scoredCandidate struct {
		Candidate fusionCandidate
		Score     float64
	}

	scored := make([]scoredCandidate, len(candidates))
	for i, candidate := range candidates {
		score := 0.0
		if candidate.HasVector {
			score += rrfComponent(vectorRanks[candidate.Index], 1.0)
		}
		if candidate.HasLexical {
			score += rrfComponent(lexicalRanks[candidate.Index], 1.0)
		}
		scored[i] = scoredCandidate{Candidate: candidate, Score: score}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score == scored[j].Score {
			if scored[i].Candidate.VectorScore == scored[j].Candidate.VectorScore {
				return scored[i].Candidate.ID < scored[j].Candidate.ID
			}
			return scored[i].Candidate.VectorScore > scored[j].Candidate.VectorScore
		}
		return scored[i].Score > scored[j].Score
	})

	if limit <= 0 || limit > len(scored) {
		limit = len(scored)
	}

	fused := make([]store.ChunkHit, 0, limit)
	for i := 0; i < limit; i++ {
		hit := hits[scored[i].Candidate.Index]
		hit.Score = scored[i].Score
		fused = append(fused, hit)
	}

	return fused
}

// candidateLimit widens the per-search fetch size so fusion has enough
// overlap to work with, bounded to keep latency predictable.
func candidateLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	}
	return min(max(limit*6, 40), 240)
}
