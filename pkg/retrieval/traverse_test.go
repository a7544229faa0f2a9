package retrieval

import (
	"math"
	"testing"

	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/store"
)

func buildSubgraph(entities []string, rels []model.Relationship) store.Subgraph {
	sub := store.Subgraph{Entities: make(map[string]model.Entity)}
	for _, id := range entities {
		sub.Entities[id] = model.Entity{ID: id, GroupID: "g1", Name: "entity " + id}
	}
	sub.Relationships = rels
	return sub
}

func rel(id, source, target string, weight float64) model.Relationship {
	return model.Relationship{ID: id, GroupID: "g1", SourceID: source, TargetID: target, Weight: weight}
}

func TestPersonalizedPageRank_SeedNeighborsOutrankDistant(t *testing.T) {
	// seed - near - far, plus an isolated node.
	sub := buildSubgraph(
		[]string{"seed", "near", "far", "isolated"},
		[]model.Relationship{
			rel("r1", "seed", "near", 1),
			rel("r2", "near", "far", 1),
		},
	)

	scores := PersonalizedPageRank(sub, map[string]float64{"seed": 1}, TraverseConfig{})
	if scores["seed"] <= scores["near"] {
		t.Fatalf("seed score %f should exceed near score %f", scores["seed"], scores["near"])
	}
	if scores["near"] <= scores["far"] {
		t.Fatalf("near score %f should exceed far score %f", scores["near"], scores["far"])
	}
	if scores["isolated"] != 0 {
		t.Fatalf("isolated score = %f, want 0", scores["isolated"])
	}
}

func TestPersonalizedPageRank_ScoresSumToOne(t *testing.T) {
	sub := buildSubgraph(
		[]string{"a", "b", "c"},
		[]model.Relationship{
			rel("r1", "a", "b", 2),
			rel("r2", "b", "c", 1),
			rel("r3", "c", "a", 1),
		},
	)

	scores := PersonalizedPageRank(sub, map[string]float64{"a": 1}, TraverseConfig{})
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Fatalf("scores sum = %f, want 1", sum)
	}
}

func TestPersonalizedPageRank_HeavierEdgesAttractMoreMass(t *testing.T) {
	sub := buildSubgraph(
		[]string{"seed", "heavy", "light"},
		[]model.Relationship{
			rel("r1", "seed", "heavy", 10),
			rel("r2", "seed", "light", 1),
		},
	)

	scores := PersonalizedPageRank(sub, map[string]float64{"seed": 1}, TraverseConfig{})
	if scores["heavy"] <= scores["light"] {
		t.Fatalf("heavy score %f should exceed light score %f", scores["heavy"], scores["light"])
	}
}

func TestPersonalizedPageRank_NoValidSeeds(t *testing.T) {
	sub := buildSubgraph([]string{"a"}, nil)
	if scores := PersonalizedPageRank(sub, map[string]float64{"missing": 1}, TraverseConfig{}); scores != nil {
		t.Fatalf("scores = %v, want nil for unknown seed", scores)
	}
}

func TestPersonalizedPageRank_Deterministic(t *testing.T) {
	sub := buildSubgraph(
		[]string{"a", "b", "c", "d"},
		[]model.Relationship{
			rel("r1", "a", "b", 1),
			rel("r2", "a", "c", 1),
			rel("r3", "b", "d", 1),
			rel("r4", "c", "d", 1),
		},
	)
	first := PersonalizedPageRank(sub, map[string]float64{"a": 1}, TraverseConfig{})
	for range 5 {
		again := PersonalizedPageRank(sub, map[string]float64{"a": 1}, TraverseConfig{})
		for id, s := range first {
			if again[id] != s {
				t.Fatalf("score for %q changed between runs: %f vs %f", id, s, again[id])
			}
		}
	}
}

func TestWeightedDegreeCentrality(t *testing.T) {
	sub := buildSubgraph(
		[]string{"hub", "a", "b", "leaf"},
		[]model.Relationship{
			rel("r1", "hub", "a", 2),
			rel("r2", "hub", "b", 2),
			rel("r3", "a", "leaf", 1),
		},
	)

	scores := WeightedDegreeCentrality(sub, TraverseConfig{})
	if scores["hub"] != 4 {
		t.Fatalf("hub centrality = %f, want 4", scores["hub"])
	}
	if scores["leaf"] != 1 {
		t.Fatalf("leaf centrality = %f, want 1", scores["leaf"])
	}
}

func TestExtractHubs_TopNStable(t *testing.T) {
	sub := buildSubgraph(
		[]string{"hub", "a", "b", "leaf"},
		[]model.Relationship{
			rel("r1", "hub", "a", 2),
			rel("r2", "hub", "b", 2),
			rel("r3", "a", "leaf", 1),
		},
	)

	hubs := ExtractHubs(sub, nil, TraverseConfig{}, 2)
	if len(hubs) != 2 {
		t.Fatalf("hubs length = %d, want 2", len(hubs))
	}
	if hubs[0].ID != "hub" {
		t.Fatalf("top hub = %q, want %q", hubs[0].ID, "hub")
	}
	if hubs[1].ID != "a" {
		t.Fatalf("second hub = %q, want %q", hubs[1].ID, "a")
	}
}
