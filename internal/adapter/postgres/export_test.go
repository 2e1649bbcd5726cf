package postgres

import "context"

// Truncate empties every ledger table.
func Truncate(ctx context.Context, s *Store) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE ledger_entries, balances, product_lots, origin_lots,
		role_grants, ledger_settings`)
	return err
}
