package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/store"
	"github.com/vellum-graph/vellum/pkg/store/memory"
)

// brokenLexicalStore fails keyword search to exercise one-sided degradation.
type brokenLexicalStore struct {
	store.GraphStore
}

func (b brokenLexicalStore) SearchChunksByKeywords(ctx context.Context, groupID, query string, limit int) ([]store.ChunkHit, error) {
	return nil, errors.New("text index offline")
}

type brokenStore struct {
	brokenLexicalStore
}

func (b brokenStore) SearchChunksByEmbedding(ctx context.Context, groupID string, embedding []float32, limit int) ([]store.ChunkHit, error) {
	return nil, errors.New("vector index offline")
}

func TestSearchChunks_FusesVectorAndLexical(t *testing.T) {
	st := memory.NewGraphMemStore()
	st.AddDocument(model.Document{ID: "d1", GroupID: "g1", Title: "Invoice 42"})
	st.AddChunk(model.Chunk{
		ID: "c1", GroupID: "g1", DocumentID: "d1",
		Text:      "The invoice total is $29,900.00 payable within 30 days.",
		Embedding: []float32{1, 0, 0},
	})
	st.AddChunk(model.Chunk{
		ID: "c2", GroupID: "g1", DocumentID: "d1",
		Text:      "Shipping terms are FOB destination.",
		Embedding: []float32{0.9, 0.1, 0},
	})
	st.AddChunk(model.Chunk{
		ID: "c3", GroupID: "g1", DocumentID: "d1",
		Text:      "Appendix C lists unrelated boilerplate.",
		Embedding: []float32{0, 1, 0},
	})

	searcher := NewSearcher(st)
	hits, err := searcher.SearchChunks(context.Background(), SearchParams{
		GroupID:   "g1",
		Query:     "invoice total",
		Embedding: []float32{1, 0, 0},
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits length = %d, want 2", len(hits))
	}
	// c1 matches both the embedding and the query terms, it must win.
	if hits[0].Chunk.ID != "c1" {
		t.Fatalf("top hit = %q, want %q", hits[0].Chunk.ID, "c1")
	}
}

func TestSearchChunks_SectionBoost(t *testing.T) {
	st := memory.NewGraphMemStore()
	st.AddDocument(model.Document{ID: "d1", GroupID: "g1", Title: "Contract"})
	st.AddSection(model.Section{ID: "s1", GroupID: "g1", DocumentID: "d1", Title: "Payment Terms"})
	st.AddSection(model.Section{ID: "s2", GroupID: "g1", DocumentID: "d1", Title: "Definitions"})
	// Same embedding and near-identical text so only the section differs.
	st.AddChunk(model.Chunk{
		ID: "c1", GroupID: "g1", DocumentID: "d1", SectionID: "s2",
		Text:      "The payment is due upon receipt variant one.",
		Embedding: []float32{1, 0},
	})
	st.AddChunk(model.Chunk{
		ID: "c2", GroupID: "g1", DocumentID: "d1", SectionID: "s1",
		Text:      "The payment is due upon receipt variant two.",
		Embedding: []float32{1, 0},
	})

	searcher := NewSearcher(st)
	hits, err := searcher.SearchChunks(context.Background(), SearchParams{
		GroupID:   "g1",
		Query:     "payment due",
		Embedding: []float32{1, 0},
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits length = %d, want 2", len(hits))
	}
	if hits[0].Chunk.ID != "c2" {
		t.Fatalf("top hit = %q, want section-boosted %q", hits[0].Chunk.ID, "c2")
	}
}

func TestSearchChunks_EmptyGroup(t *testing.T) {
	st := memory.NewGraphMemStore()
	searcher := NewSearcher(st)

	hits, err := searcher.SearchChunks(context.Background(), SearchParams{
		GroupID:   "missing",
		Query:     "anything",
		Embedding: []float32{1, 0},
		Limit:     5,
	})
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("hits length = %d, want 0", len(hits))
	}
}

func TestSearchChunks_DegradesWhenOneSearchFails(t *testing.T) {
	st := memory.NewGraphMemStore()
	st.AddDocument(model.Document{ID: "d1", GroupID: "g1", Title: "Invoice"})
	st.AddChunk(model.Chunk{
		ID: "c1", GroupID: "g1", DocumentID: "d1",
		Text:      "The invoice total is $29,900.00.",
		Embedding: []float32{1, 0},
	})

	searcher := NewSearcher(brokenLexicalStore{GraphStore: st})
	hits, err := searcher.SearchChunks(context.Background(), SearchParams{
		GroupID:   "g1",
		Query:     "invoice total",
		Embedding: []float32{1, 0},
		Limit:     5,
	})
	if err != nil {
		t.Fatalf("SearchChunks() error = %v, want vector-only degradation", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != "c1" {
		t.Fatalf("hits = %v, want vector hit c1", hits)
	}
}

// brokenSectionStore fails the boost lookup while both searches work.
type brokenSectionStore struct {
	store.GraphStore
}

func (b brokenSectionStore) GetSectionsByIDs(ctx context.Context, groupID string, sectionIDs []string) ([]model.Section, error) {
	return nil, errors.New("sections table offline")
}

func TestSearchChunks_DegradesWhenSectionLookupFails(t *testing.T) {
	st := memory.NewGraphMemStore()
	st.AddDocument(model.Document{ID: "d1", GroupID: "g1", Title: "Contract"})
	st.AddSection(model.Section{ID: "s1", GroupID: "g1", DocumentID: "d1", Title: "Payment Terms"})
	st.AddChunk(model.Chunk{
		ID: "c1", GroupID: "g1", DocumentID: "d1", SectionID: "s1",
		Text:      "The payment is due upon receipt.",
		Embedding: []float32{1, 0},
	})

	searcher := NewSearcher(brokenSectionStore{GraphStore: st})
	hits, err := searcher.SearchChunks(context.Background(), SearchParams{
		GroupID:   "g1",
		Query:     "payment due",
		Embedding: []float32{1, 0},
		Limit:     5,
	})
	if err != nil {
		t.Fatalf("SearchChunks() error = %v, want unboosted result", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != "c1" {
		t.Fatalf("hits = %v, want fused hit c1 without boosts", hits)
	}
}

func TestSearchChunks_FailsWhenBothSearchesFail(t *testing.T) {
	st := memory.NewGraphMemStore()
	searcher := NewSearcher(brokenStore{brokenLexicalStore{GraphStore: st}})

	_, err := searcher.SearchChunks(context.Background(), SearchParams{
		GroupID:   "g1",
		Query:     "anything",
		Embedding: []float32{1, 0},
		Limit:     5,
	})
	if err == nil {
		t.Fatalf("SearchChunks() error = nil, want failure when both searches fail")
	}
}

func TestQueryTerms_DropsShortAndPunctuation(t *testing.T) {
	terms := queryTerms(`What is the "total" of invoice #42?`)
	want := map[string]bool{"what": true, "the": true, "total": true, "invoice": true, "#42": true}
	for _, term := range terms {
		if !want[term] {
			t.Fatalf("unexpected term %q in %v", term, terms)
		}
	}
	for _, term := range terms {
		if term == "is" || term == "of" {
			t.Fatalf("short term %q should have been dropped", term)
		}
	}
}
