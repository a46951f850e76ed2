package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/walletimport/internal/database"
)

// MaintenanceService houses destructive ops actions surfaced through the CLI.
type MaintenanceService struct {
	DB *sql.DB
}

// Reset wipes every imported transaction. The schema, wallets and
// categories stay intact so the next import starts from an empty ledger
// with its directories still seeded.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM transactions"); err != nil {
			return fmt.Errorf("reset table transactions: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
