package pgx

import (
	"context"
	"fmt"
)

// deleteOrder lists group-scoped tables in dependency order, children first.
var deleteOrder = []string{
	"community_members",
	"communities",
	"summary_nodes",
	"entity_mentions",
	"relationships",
	"entities",
	"key_values",
	"tables_data",
	"chunks",
	"sections",
	"documents",
}

// DeleteGroup removes every row belonging to a group in a single
// transaction. Either the whole group disappears or nothing does.
func (s *GraphDBStore) DeleteGroup(ctx context.Context, groupID string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete group: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range deleteOrder {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE group_id = $1`, table), groupID); err != nil {
			return fmt.Errorf("delete group from %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete group: %w", err)
	}
	return nil
}
