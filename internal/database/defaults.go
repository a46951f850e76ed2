package database

import (
	"context"
	"database/sql"
)

// SeedDefaults ensures baseline wallets and categories exist for new
// databases. The whole seed runs as one transaction and is idempotent, so
// it is safe on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB) error {
	return WithTx(db, func(tx *sql.Tx) error {
		var wallets int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallets`).Scan(&wallets); err != nil {
			return err
		}
		if wallets == 0 {
			for _, name := range []string{"PayPay", "現金"} {
				if _, err := tx.ExecContext(ctx, `
				INSERT INTO wallets(name, created_at, updated_at)
				VALUES (?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
				ON CONFLICT(name) DO NOTHING;
				`, name); err != nil {
					return err
				}
			}
		}

		var categories int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&categories); err != nil {
			return err
		}
		if categories > 0 {
			return nil
		}
		defaults := []string{
			"Income",
			"Groceries",
			"Restaurants",
			"Transport",
			"Shopping",
			"Utilities",
			"Subscriptions",
			"Health",
			"Entertainment",
		}
		for idx, name := range defaults {
			if _, err := tx.ExecContext(ctx, `
			INSERT INTO categories(name, sort_order)
			VALUES (?, ?)
			ON CONFLICT(name) DO NOTHING;
			`, name, idx); err != nil {
				return err
			}
		}
		return nil
	})
}
