package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Every persisted record carries a GroupID. The group is the tenant/session
// scope: no relationship may span two groups and every read filters by it.
// The retrieval engine is a pure reader of this model; all records are
// created by the ingestion pipeline and only removed by group-scoped
// cascade deletion.

// Document is an ingested source file.
type Document struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	PageCount int       `json:"page_count"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Section is a structural grouping within a document (e.g. a contract
// clause heading), used for section-aware score boosting.
type Section struct {
	ID         string `json:"id"`
	GroupID    string `json:"group_id"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Path       string `json:"path"`
	ParentID   string `json:"parent_id,omitempty"`
}

// Chunk is a contiguous text segment of a document. Chunks are the smallest
// retrievable unit and the provenance target for citations.
type Chunk struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	DocumentID string    `json:"document_id"`
	SectionID  string    `json:"section_id,omitempty"`
	Sequence   int       `json:"sequence"`
	Page       int       `json:"page"`
	Text       string    `json:"text"`
	Hash       string    `json:"hash"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// Entity is a node in the knowledge graph: an organization, person, amount,
// date, or any other concept extracted from chunk text. Entities are
// deduplicated per group by normalized name+type.
type Entity struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"group_id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	ChunkIDs    []string  `json:"chunk_ids,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// Relationship is a directed edge between two entities. Multiple
// relationships may connect the same pair with distinct descriptions.
type Relationship struct {
	ID          string  `json:"id"`
	GroupID     string  `json:"group_id"`
	SourceID    string  `json:"source_id"`
	TargetID    string  `json:"target_id"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

// KeyValue is an extracted key-value pair (e.g. "Invoice Total: $29,900.00")
// with its provenance and extraction confidence. Keys are deduplicated
// case-insensitively before embedding.
type KeyValue struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Page       int       `json:"page"`
	SectionID  string    `json:"section_id,omitempty"`
	ChunkID    string    `json:"chunk_id,omitempty"`
	DocumentID string    `json:"document_id"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// Table is serialized tabular content owned by a document.
type Table struct {
	ID         string `json:"id"`
	GroupID    string `json:"group_id"`
	DocumentID string `json:"document_id"`
	SectionID  string `json:"section_id,omitempty"`
	Content    string `json:"content"`
}

// Community is a cluster of densely connected entities produced by graph
// clustering over the entity-relationship graph, with an AI-generated
// summary. Used by global search for thematic retrieval.
type Community struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Level     int       `json:"level"`
	ParentID  string    `json:"parent_id,omitempty"`
	EntityIDs []string  `json:"entity_ids"`
	Summary   string    `json:"summary"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// SummaryNode is a node in the hierarchical summary tree built over chunks
// (leaf level) and over other summary nodes (upper levels). It serves as an
// alternate evidence source for cross-chunk synthesis.
type SummaryNode struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Level     int       `json:"level"`
	Summary   string    `json:"summary"`
	ChildIDs  []string  `json:"child_ids"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// SourceKind classifies what a citation points at.
type SourceKind string

const (
	SourceChunk     SourceKind = "chunk"
	SourceEntity    SourceKind = "entity"
	SourceCommunity SourceKind = "community"
	SourceSummary   SourceKind = "summary"
)

// Citation is an ephemeral provenance record produced per query. It is
// returned to the caller and never persisted.
type Citation struct {
	Kind       SourceKind `json:"kind"`
	SourceID   string     `json:"source_id"`
	DocumentID string     `json:"document_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Score      float64    `json:"score"`
	Preview    string     `json:"preview,omitempty"`
	Page       int        `json:"page,omitempty"`
}

// ContentHash returns the dedup key for a piece of chunk text. Hashing is
// over whitespace-normalized text so that identical boilerplate repeated
// across documents collapses to one entry regardless of surrounding layout.
func ContentHash(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(strings.ToLower(normalized)))
	return hex.EncodeToString(sum[:])
}
