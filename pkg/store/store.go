package store

import (
	"context"
	"errors"

	"github.com/vellum-graph/vellum/pkg/model"
)

var (
	// ErrNotFound indicates the requested record does not exist in the group.
	ErrNotFound = errors.New("store: not found")

	// ErrNoCommunities indicates no community data exists for the group,
	// e.g. mid-reindex. Callers fall back to chunk-level retrieval.
	ErrNoCommunities = errors.New("store: no communities indexed")
)

// ChunkHit is a chunk with its retrieval score. For vector search the score
// is cosine similarity in [0,1]; for lexical search it is the normalized
// text-search rank. Scores from different search kinds are never compared
// directly; rank fusion happens in pkg/retrieval.
type ChunkHit struct {
	Chunk model.Chunk
	Score float64
}

// EntityHit is an entity with its vector similarity score.
type EntityHit struct {
	Entity model.Entity
	Score  float64
}

// CommunityHit is a community with its summary-embedding similarity score.
type CommunityHit struct {
	Community model.Community
	Score     float64
}

// SummaryHit is a hierarchical summary node with its similarity score.
type SummaryHit struct {
	Node  model.SummaryNode
	Score float64
}

// Subgraph is a bounded neighborhood of the entity-relationship graph,
// loaded for in-memory traversal. Entities are keyed by ID; relationships
// reference entity IDs, never pointers.
type Subgraph struct {
	Entities      map[string]model.Entity
	Relationships []model.Relationship
}

// GraphStore is the read-only, group-scoped view of the persisted knowledge
// graph. Every method filters by group ID; results referencing another group
// are a correctness bug in the implementation, not a recoverable condition.
//
// All reads are point-in-time snapshots per call. The ingestion pipeline
// (external) guarantees atomic replace-on-reindex per group, so a query sees
// either the old graph or the new one, never a partial mix.
type GraphStore interface {
	// Documents.
	GetDocuments(ctx context.Context, groupID string) ([]model.Document, error)
	GetDocument(ctx context.Context, groupID, documentID string) (model.Document, error)

	// Chunk search. Either search may return zero hits without error.
	SearchChunksByEmbedding(ctx context.Context, groupID string, embedding []float32, limit int) ([]ChunkHit, error)
	SearchChunksByKeywords(ctx context.Context, groupID, query string, limit int) ([]ChunkHit, error)
	GetChunksByIDs(ctx context.Context, groupID string, chunkIDs []string) ([]model.Chunk, error)

	// BestChunkForDocument returns the single highest-scoring chunk of one
	// document for the given query embedding. Used by coverage gap fill.
	BestChunkForDocument(ctx context.Context, groupID, documentID string, embedding []float32) (ChunkHit, error)

	// Sections, for section-aware boosting.
	GetSectionsByIDs(ctx context.Context, groupID string, sectionIDs []string) ([]model.Section, error)

	// Entities and the relationship neighborhood around seeds.
	SearchEntitiesByEmbedding(ctx context.Context, groupID string, embedding []float32, limit int) ([]EntityHit, error)
	GetEntitiesByIDs(ctx context.Context, groupID string, entityIDs []string) ([]model.Entity, error)
	GetNeighborhood(ctx context.Context, groupID string, seedEntityIDs []string, maxDepth, maxEntities int) (Subgraph, error)

	// Communities. SearchCommunities returns ErrNoCommunities when the group
	// has no community index (e.g. mid-reindex).
	SearchCommunities(ctx context.Context, groupID string, embedding []float32, level, limit int) ([]CommunityHit, error)
	GetSiblingCommunities(ctx context.Context, groupID, communityID string) ([]model.Community, error)

	// Hierarchical summary tree.
	SearchSummaryNodes(ctx context.Context, groupID string, embedding []float32, limit int) ([]SummaryHit, error)

	// Deterministic existence checks for the field validator. Patterns are
	// matched case-insensitively as substrings against key/value and
	// name/description respectively, bypassing all ranking.
	CountKeyValueMatches(ctx context.Context, groupID, pattern string) (int, error)
	CountEntityMatches(ctx context.Context, groupID, pattern string) (int, error)

	// DeleteGroup removes every record of the group: documents, sections,
	// chunks, entities, relationships, key-values, tables, communities, and
	// summary nodes. Used by the admin cascade delete worker.
	DeleteGroup(ctx context.Context, groupID string) error
}
