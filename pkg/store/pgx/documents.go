package pgx

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/vellum-graph/vellum/pkg/model"
	"github.com/vellum-graph/vellum/pkg/store"
)

func (s *GraphDBStore) GetDocuments(ctx context.Context, groupID string) ([]model.Document, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, group_id, title, source, page_count, indexed_at
		FROM documents
		WHERE group_id = $1
		ORDER BY indexed_at, id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.GroupID, &d.Title, &d.Source, &d.PageCount, &d.IndexedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *GraphDBStore) GetDocument(ctx context.Context, groupID, documentID string) (model.Document, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT id, group_id, title, source, page_count, indexed_at
		FROM documents
		WHERE group_id = $1 AND id = $2
	`, groupID, documentID)

	var d model.Document
	err := row.Scan(&d.ID, &d.GroupID, &d.Title, &d.Source, &d.PageCount, &d.IndexedAt)
	if err == pgxv5.ErrNoRows {
		return model.Document{}, store.ErrNotFound
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}
