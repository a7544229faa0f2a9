package pgx

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/store"
)

const chunkColumns = `id, group_id, document_id, COALESCE(section_id, ''), sequence, page, text, hash`

func scanChunk(row pgxv5.Rows) (model.Chunk, error) {
	var c model.Chunk
	err := row.Scan(&c.ID, &c.GroupID, &c.DocumentID, &c.SectionID, &c.Sequence, &c.Page, &c.Text, &c.Hash)
	return c, err
}

// SearchChunksByEmbedding returns the chunks of a group most similar to the
// query embedding, ordered by cosine similarity.
func (s *GraphDBStore) SearchChunksByEmbedding(
	ctx context.Context,
	groupID string,
	embedding []float32,
	limit int,
) ([]store.ChunkHit, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.conn.Query(ctx, fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $2) AS similarity
		FROM chunks
		WHERE group_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3
	`, chunkColumns), groupID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks by embedding: %w", err)
	}
	defer rows.Close()

	hits := make([]store.ChunkHit, 0, limit)
	for rows.Next() {
		var c model.Chunk
		var similarity float64
		if err := rows.Scan(&c.ID, &c.GroupID, &c.DocumentID, &c.SectionID, &c.Sequence, &c.Page, &c.Text, &c.Hash, &similarity); err != nil {
			return nil, err
		}
		hits = append(hits, store.ChunkHit{Chunk: c, Score: similarity})
	}
	return hits, rows.Err()
}

// SearchChunksByKeywords performs full-text lexical search over chunk text,
// ordered by ts_rank_cd. A query that parses to an empty tsquery returns no
// hits without error.
func (s *GraphDBStore) SearchChunksByKeywords(
	ctx context.Context,
	groupID, query string,
	limit int,
) ([]store.ChunkHit, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.conn.Query(ctx, fmt.Sprintf(`
		SELECT %s, ts_rank_cd(text_search, q) AS rank
		FROM chunks, websearch_to_tsquery('english', $2) q
		WHERE group_id = $1 AND text_search @@ q
		ORDER BY rank DESC
		LIMIT $3
	`, chunkColumns), groupID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks by keywords: %w", err)
	}
	defer rows.Close()

	hits := make([]store.ChunkHit, 0, limit)
	for rows.Next() {
		var c model.Chunk
		var rank float64
		if err := rows.Scan(&c.ID, &c.GroupID, &c.DocumentID, &c.SectionID, &c.Sequence, &c.Page, &c.Text, &c.Hash, &rank); err != nil {
			return nil, err
		}
		hits = append(hits, store.ChunkHit{Chunk: c, Score: rank})
	}
	return hits, rows.Err()
}

func (s *GraphDBStore) GetChunksByIDs(ctx context.Context, groupID string, chunkIDs []string) ([]model.Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM chunks
		WHERE group_id = $1 AND id = ANY($2)
	`, chunkColumns), groupID, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("get chunks by ids: %w", err)
	}
	defer rows.Close()

	chunks := make([]model.Chunk, 0, len(chunkIDs))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// BestChunkForDocument returns the single most relevant chunk of one
// document. Used by the coverage controller to gap-fill documents missing
// from the primary ranking.
func (s *GraphDBStore) BestChunkForDocument(
	ctx context.Context,
	groupID, documentID string,
	embedding []float32,
) (store.ChunkHit, error) {
	row := s.conn.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $3) AS similarity
		FROM chunks
		WHERE group_id = $1 AND document_id = $2 AND embedding IS NOT NULL
		ORDER BY embedding <=> $3
		LIMIT 1
	`, chunkColumns), groupID, documentID, pgvector.NewVector(embedding))

	var c model.Chunk
	var similarity float64
	err := row.Scan(&c.ID, &c.GroupID, &c.DocumentID, &c.SectionID, &c.Sequence, &c.Page, &c.Text, &c.Hash, &similarity)
	if err == pgxv5.ErrNoRows {
		return store.ChunkHit{}, store.ErrNotFound
	}
	if err != nil {
		return store.ChunkHit{}, fmt.Errorf("best chunk for document: %w", err)
	}
	return store.ChunkHit{Chunk: c, Score: similarity}, nil
}

func (s *GraphDBStore) GetSectionsByIDs(ctx context.Context, groupID string, sectionIDs []string) ([]model.Section, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, group_id, document_id, title, path, COALESCE(parent_id, '')
		FROM sections
		WHERE group_id = $1 AND id = ANY($2)
	`, groupID, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("get sections by ids: %w", err)
	}
	defer rows.Close()

	sections := make([]model.Section, 0, len(sectionIDs))
	for rows.Next() {
		var sec model.Section
		if err := rows.Scan(&sec.ID, &sec.GroupID, &sec.DocumentID, &sec.Title, &sec.Path, &sec.ParentID); err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}
