package repository

import (
	"context"
	"database/sql"
)

// WalletRepo handles wallets.
type WalletRepo struct {
	db *sql.DB
}

func NewWalletRepo(db *sql.DB) *WalletRepo {
	return &WalletRepo{db: db}
}

func (r *WalletRepo) Upsert(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO wallets(name, created_at, updated_at)
	VALUES (?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(name) DO UPDATE SET
	 updated_at=CURRENT_TIMESTAMP;
	`, name)
	return err
}

func (r *WalletRepo) List(ctx context.Context) ([]Wallet, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at, updated_at FROM wallets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Wallet
	for rows.Next() {
		var w Wallet
		if err := rows.Scan(&w.ID, &w.Name, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
