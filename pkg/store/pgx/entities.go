package pgx

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/store"
)

func (s *GraphDBStore) SearchEntitiesByEmbedding(
	ctx context.Context,
	groupID string,
	embedding []float32,
	limit int,
) ([]store.EntityHit, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, group_id, name, type, description, 1 - (embedding <=> $2) AS similarity
		FROM entities
		WHERE group_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3
	`, groupID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("search entities by embedding: %w", err)
	}
	defer rows.Close()

	hits := make([]store.EntityHit, 0, limit)
	var entityIDs []string
	for rows.Next() {
		var e model.Entity
		var similarity float64
		if err := rows.Scan(&e.ID, &e.GroupID, &e.Name, &e.Type, &e.Description, &similarity); err != nil {
			return nil, err
		}
		hits = append(hits, store.EntityHit{Entity: e, Score: similarity})
		entityIDs = append(entityIDs, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mentions, err := s.getMentions(ctx, groupID, entityIDs)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].Entity.ChunkIDs = mentions[hits[i].Entity.ID]
	}
	return hits, nil
}

func (s *GraphDBStore) GetEntitiesByIDs(ctx context.Context, groupID string, entityIDs []string) ([]model.Entity, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, group_id, name, type, description
		FROM entities
		WHERE group_id = $1 AND id = ANY($2)
	`, groupID, entityIDs)
	if err != nil {
		return nil, fmt.Errorf("get entities by ids: %w", err)
	}
	defer rows.Close()

	entities := make([]model.Entity, 0, len(entityIDs))
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.ID, &e.GroupID, &e.Name, &e.Type, &e.Description); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mentions, err := s.getMentions(ctx, groupID, entityIDs)
	if err != nil {
		return nil, err
	}
	for i := range entities {
		entities[i].ChunkIDs = mentions[entities[i].ID]
	}
	return entities, nil
}

// GetNeighborhood loads the bounded relationship neighborhood around the
// seed entities by expanding frontier hops in SQL, one round-trip per hop.
// The result is an in-memory subgraph the traversal engine iterates over;
// traversal never touches the database again.
func (s *GraphDBStore) GetNeighborhood(
	ctx context.Context,
	groupID string,
	seedEntityIDs []string,
	maxDepth, maxEntities int,
) (store.Subgraph, error) {
	sub := store.Subgraph{Entities: make(map[string]model.Entity)}
	if len(seedEntityIDs) == 0 {
		return sub, nil
	}
	if maxDepth <= 0 {
		maxDepth = 1
	}
	if maxEntities <= 0 {
		maxEntities = 200
	}

	seeds, err := s.GetEntitiesByIDs(ctx, groupID, seedEntityIDs)
	if err != nil {
		return sub, err
	}
	frontier := make([]string, 0, len(seeds))
	for _, e := range seeds {
		sub.Entities[e.ID] = e
		frontier = append(frontier, e.ID)
	}

	seenRels := make(map[string]struct{})
	for depth := 0; depth < maxDepth && len(frontier) > 0 && len(sub.Entities) < maxEntities; depth++ {
		rows, err := s.conn.Query(ctx, `
			SELECT id, group_id, source_id, target_id, description, weight
			FROM relationships
			WHERE group_id = $1 AND (source_id = ANY($2) OR target_id = ANY($2))
		`, groupID, frontier)
		if err != nil {
			return sub, fmt.Errorf("get neighborhood: %w", err)
		}

		var next []string
		for rows.Next() {
			var r model.Relationship
			if err := rows.Scan(&r.ID, &r.GroupID, &r.SourceID, &r.TargetID, &r.Description, &r.Weight); err != nil {
				rows.Close()
				return sub, err
			}
			if _, ok := seenRels[r.ID]; ok {
				continue
			}
			seenRels[r.ID] = struct{}{}
			sub.Relationships = append(sub.Relationships, r)

			for _, id := range []string{r.SourceID, r.TargetID} {
				if _, ok := sub.Entities[id]; !ok {
					next = append(next, id)
				}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return sub, err
		}
		rows.Close()

		if len(next) == 0 {
			break
		}
		if remaining := maxEntities - len(sub.Entities); len(next) > remaining {
			next = next[:remaining]
		}
		entities, err := s.GetEntitiesByIDs(ctx, groupID, next)
		if err != nil {
			return sub, err
		}
		frontier = frontier[:0]
		for _, e := range entities {
			sub.Entities[e.ID] = e
			frontier = append(frontier, e.ID)
		}
	}

	return sub, nil
}

func (s *GraphDBStore) getMentions(ctx context.Context, groupID string, entityIDs []string) (map[string][]string, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT entity_id, chunk_id
		FROM entity_mentions
		WHERE group_id = $1 AND entity_id = ANY($2)
	`, groupID, entityIDs)
	if err != nil {
		return nil, fmt.Errorf("get entity mentions: %w", err)
	}
	defer rows.Close()

	mentions := make(map[string][]string)
	for rows.Next() {
		var entityID, chunkID string
		if err := rows.Scan(&entityID, &chunkID); err != nil {
			return nil, err
		}
		mentions[entityID] = append(mentions[entityID], chunkID)
	}
	return mentions, rows.Err()
}
