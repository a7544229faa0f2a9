package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStore implements store.GraphStore on PostgreSQL with pgvector for
// vector similarity and full-text search for lexical retrieval. Every query
// is scoped by group_id at the SQL level; the store never returns rows from
// another group.
type GraphDBStore struct {
	conn pgxIConn
}

// NewGraphDBStore creates a GraphDBStore using an existing connection or
// pool. The connection must have pgvector types registered.
func NewGraphDBStore(conn pgxIConn) *GraphDBStore {
	return &GraphDBStore{conn: conn}
}
