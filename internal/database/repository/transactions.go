package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TransactionRepo handles persisted ledger entries. It is the storage half
// of the import pipeline: the session reads the committed external-id set
// through it before normalizing and hands the accepted batch back through
// InsertBatch.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// ExistingExternalIDs returns every external id already committed, as the
// dedup snapshot for a new import session.
func (r *TransactionRepo) ExistingExternalIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT external_id FROM transactions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// InsertBatch inserts every transaction inside one database transaction.
// Any failure rolls the whole batch back; nothing is partially committed.
func (r *TransactionRepo) InsertBatch(ctx context.Context, batch []Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // rollback is a no-op after commit

	for _, t := range batch {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions(
		 id, external_id, wallet_id, category_id, date, time_of_day, amount,
		 description, counterparty, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
		`,
			t.ID, t.ExternalID, t.WalletID, t.CategoryID,
			t.Date.Format(time.DateOnly), t.TimeOfDay, t.Amount,
			t.Description, t.Counterparty)
		if err != nil {
			return fmt.Errorf("insert %s: %w", t.ExternalID, err)
		}
	}
	return tx.Commit()
}

func (r *TransactionRepo) List(ctx context.Context) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, external_id, wallet_id, category_id, date, time_of_day, amount,
	 description, counterparty, created_at
	FROM transactions ORDER BY date, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(rows *sql.Rows) (Transaction, error) {
	var t Transaction
	var date string
	var tod, counterparty sql.NullString
	if err := rows.Scan(&t.ID, &t.ExternalID, &t.WalletID, &t.CategoryID, &date,
		&tod, &t.Amount, &t.Description, &counterparty, &t.CreatedAt); err != nil {
		return Transaction{}, err
	}
	parsed, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	t.Date = parsed
	if tod.Valid {
		t.TimeOfDay = &tod.String
	}
	if counterparty.Valid {
		t.Counterparty = &counterparty.String
	}
	return t, nil
}
