package pgx

import (
	"context"
	"fmt"
)

// CountKeyValueMatches counts structured key-value facts whose key or value
// contains the needle, case-insensitive. Used for field existence checks.
func (s *GraphDBStore) CountKeyValueMatches(ctx context.Context, groupID, needle string) (int, error) {
	var count int
	err := s.conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM key_values
		WHERE group_id = $1 AND (key ILIKE '%' || $2 || '%' OR value ILIKE '%' || $2 || '%')
	`, groupID, needle).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count key value matches: %w", err)
	}
	return count, nil
}

// CountEntityMatches counts entities whose name or description contains the
// needle, case-insensitive.
func (s *GraphDBStore) CountEntityMatches(ctx context.Context, groupID, needle string) (int, error) {
	var count int
	err := s.conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM entities
		WHERE group_id = $1 AND (name ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')
	`, groupID, needle).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count entity matches: %w", err)
	}
	return count, nil
}
