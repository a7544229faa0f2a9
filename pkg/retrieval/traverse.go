package retrieval

import (
	"math"
	"sort"

	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/store"
)

// TraverseConfig bounds the personalized PageRank computation. The zero
// value is usable; defaults are applied per field.
type TraverseConfig struct {
	// Damping is the probability of following an edge instead of
	// restarting at a seed. Defaults to 0.85.
	Damping float64
	// MaxIterations caps the power iteration regardless of convergence.
	// Defaults to 20.
	MaxIterations int
	// Epsilon is the L1 convergence threshold. Defaults to 1e-6.
	Epsilon float64
	// EdgeWeight maps a relationship to its traversal weight. Defaults to
	// the relationship's stored weight, floored at a small positive value
	// so zero-weight edges still connect.
	EdgeWeight func(model.Relationship) float64
}

func (cfg TraverseConfig) withDefaults() TraverseConfig {
	if cfg.Damping <= 0 || cfg.Damping >= 1 {
		cfg.Damping = 0.85
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 20
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-6
	}
	if cfg.EdgeWeight == nil {
		cfg.EdgeWeight = func(r model.Relationship) float64 {
			if r.Weight <= 0 {
				return 0.1
			}
			return r.Weight
		}
	}
	return cfg
}

type weightedEdge struct {
	target string
	weight float64
}

// PersonalizedPageRank scores every entity in the subgraph by its proximity
// to the seed entities, using bounded power iteration with restart. Edges
// are traversed in both directions. Seeds with non-positive mass are
// ignored; if no valid seed remains the result is empty.
//
// The returned scores sum to 1 and are deterministic for a given subgraph
// and seed set.
func PersonalizedPageRank(sub store.Subgraph, seeds map[string]float64, cfg TraverseConfig) map[string]float64 {
	cfg = cfg.withDefaults()
	if len(sub.Entities) == 0 {
		return nil
	}

	ids := make([]string, 0, len(sub.Entities))
	for id := range sub.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	restart := make([]float64, len(ids))
	total := 0.0
	for id, mass := range seeds {
		if mass <= 0 {
			continue
		}
		if i, ok := index[id]; ok {
			restart[i] += mass
			total += mass
		}
	}
	if total == 0 {
		return nil
	}
	for i := range restart {
		restart[i] /= total
	}

	adjacency := make([][]weightedEdge, len(ids))
	outWeight := make([]float64, len(ids))
	for _, r := range sub.Relationships {
		si, sok := index[r.SourceID]
		ti, tok := index[r.TargetID]
		if !sok || !tok || si == ti {
			continue
		}
		w := cfg.EdgeWeight(r)
		if w <= 0 {
			continue
		}
		adjacency[si] = append(adjacency[si], weightedEdge{target: r.TargetID, weight: w})
		adjacency[ti] = append(adjacency[ti], weightedEdge{target: r.SourceID, weight: w})
		outWeight[si] += w
		outWeight[ti] += w
	}

	scores := make([]float64, len(ids))
	copy(scores, restart)

	next := make([]float64, len(ids))
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		dangling := 0.0
		for i := range next {
			next[i] = 0
		}
		for i := range ids {
			if scores[i] == 0 {
				continue
			}
			if outWeight[i] == 0 {
				dangling += scores[i]
				continue
			}
			spread := cfg.Damping * scores[i] / outWeight[i]
			for _, e := range adjacency[i] {
				next[index[e.target]] += spread * e.weight
			}
		}
		// Dangling mass and the restart share both return to the seeds.
		for i := range next {
			next[i] += (1-cfg.Damping)*restart[i] + cfg.Damping*dangling*restart[i]
		}

		delta := 0.0
		for i := range next {
			delta += math.Abs(next[i] - scores[i])
		}
		scores, next = next, scores
		if delta < cfg.Epsilon {
			break
		}
	}

	result := make(map[string]float64, len(ids))
	for i, id := range ids {
		if scores[i] > 0 {
			result[id] = scores[i]
		}
	}
	return result
}

// WeightedDegreeCentrality scores each entity by the summed weight of its
// incident edges. It is the default centrality for hub extraction.
func WeightedDegreeCentrality(sub store.Subgraph, cfg TraverseConfig) map[string]float64 {
	cfg = cfg.withDefaults()
	scores := make(map[string]float64, len(sub.Entities))
	for id := range sub.Entities {
		scores[id] = 0
	}
	for _, r := range sub.Relationships {
		w := cfg.EdgeWeight(r)
		if w <= 0 {
			continue
		}
		if _, ok := scores[r.SourceID]; ok {
			scores[r.SourceID] += w
		}
		if _, ok := scores[r.TargetID]; ok {
			scores[r.TargetID] += w
		}
	}
	return scores
}

// CentralityFunc scores entities of a subgraph; higher means more central.
type CentralityFunc func(sub store.Subgraph, cfg TraverseConfig) map[string]float64

// TopEntities returns the n highest-scoring entity IDs, ties broken by ID
// for a stable ordering.
func TopEntities(scores map[string]float64, n int) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		if scores[ids[i]] == scores[ids[j]] {
			return ids[i] < ids[j]
		}
		return scores[ids[i]] > scores[ids[j]]
	})
	if n > 0 && len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// ExtractHubs returns the n most central entities of a community subgraph.
// A nil centrality uses WeightedDegreeCentrality.
func ExtractHubs(sub store.Subgraph, centrality CentralityFunc, cfg TraverseConfig, n int) []model.Entity {
	if centrality == nil {
		centrality = WeightedDegreeCentrality
	}
	scores := centrality(sub, cfg)
	hubs := make([]model.Entity, 0, n)
	for _, id := range TopEntities(scores, n) {
		if e, ok := sub.Entities[id]; ok {
			hubs = append(hubs, e)
		}
	}
	return hubs
}
