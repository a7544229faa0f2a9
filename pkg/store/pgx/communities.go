package pgx

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/store"
)

// SearchCommunities returns the communities at the given hierarchy level
// whose summary embedding best matches the query embedding. Returns
// ErrNoCommunities when the group has no community index at all, so callers
// can fall back to chunk-level retrieval during reindexing.
func (s *GraphDBStore) SearchCommunities(
	ctx context.Context,
	groupID string,
	embedding []float32,
	level, limit int,
) ([]store.CommunityHit, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.conn.Query(ctx, `
		SELECT c.id, c.group_id, c.level, COALESCE(c.parent_id, ''), c.summary,
			1 - (c.embedding <=> $2) AS similarity,
			ARRAY(SELECT entity_id FROM community_members m WHERE m.community_id = c.id AND m.group_id = c.group_id)
		FROM communities c
		WHERE c.group_id = $1 AND c.level = $3 AND c.embedding IS NOT NULL
		ORDER BY c.embedding <=> $2
		LIMIT $4
	`, groupID, pgvector.NewVector(embedding), level, limit)
	if err != nil {
		return nil, fmt.Errorf("search communities: %w", err)
	}
	defer rows.Close()

	hits := make([]store.CommunityHit, 0, limit)
	for rows.Next() {
		var c model.Community
		var similarity float64
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Level, &c.ParentID, &c.Summary, &similarity, &c.EntityIDs); err != nil {
			return nil, err
		}
		hits = append(hits, store.CommunityHit{Community: c, Score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(hits) == 0 {
		var total int
		if err := s.conn.QueryRow(ctx, `SELECT COUNT(*) FROM communities WHERE group_id = $1`, groupID).Scan(&total); err != nil {
			return nil, fmt.Errorf("count communities: %w", err)
		}
		if total == 0 {
			return nil, store.ErrNoCommunities
		}
	}
	return hits, nil
}

// GetSiblingCommunities returns communities sharing the same parent cluster,
// excluding the community itself. Used by community-aware seeding.
func (s *GraphDBStore) GetSiblingCommunities(ctx context.Context, groupID, communityID string) ([]model.Community, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT c.id, c.group_id, c.level, COALESCE(c.parent_id, ''), c.summary,
			ARRAY(SELECT entity_id FROM community_members m WHERE m.community_id = c.id AND m.group_id = c.group_id)
		FROM communities c
		WHERE c.group_id = $1
			AND c.id <> $2
			AND c.parent_id IS NOT NULL
			AND c.parent_id = (SELECT parent_id FROM communities WHERE group_id = $1 AND id = $2)
	`, groupID, communityID)
	if err != nil {
		return nil, fmt.Errorf("get sibling communities: %w", err)
	}
	defer rows.Close()

	var siblings []model.Community
	for rows.Next() {
		var c model.Community
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Level, &c.ParentID, &c.Summary, &c.EntityIDs); err != nil {
			return nil, err
		}
		siblings = append(siblings, c)
	}
	return siblings, rows.Err()
}

func (s *GraphDBStore) SearchSummaryNodes(
	ctx context.Context,
	groupID string,
	embedding []float32,
	limit int,
) ([]store.SummaryHit, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, group_id, level, summary, child_ids, 1 - (embedding <=> $2) AS similarity
		FROM summary_nodes
		WHERE group_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3
	`, groupID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("search summary nodes: %w", err)
	}
	defer rows.Close()

	hits := make([]store.SummaryHit, 0, limit)
	for rows.Next() {
		var n model.SummaryNode
		var similarity float64
		if err := rows.Scan(&n.ID, &n.GroupID, &n.Level, &n.Summary, &n.ChildIDs, &similarity); err != nil {
			return nil, err
		}
		hits = append(hits, store.SummaryHit{Node: n, Score: similarity})
	}
	return hits, rows.Err()
}
