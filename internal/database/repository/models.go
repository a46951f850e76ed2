package repository

import "time"

// Wallet represents a wallet row.
type Wallet struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Category represents a category row.
type Category struct {
	ID        int64
	Name      string
	SortOrder int
}

// Transaction represents a persisted ledger entry.
type Transaction struct {
	ID           string
	ExternalID   string
	WalletID     int64
	CategoryID   int64
	Date         time.Time
	TimeOfDay    *string // "HH:MM", nil when the source had no intraday stamp
	Amount       int64   // signed yen, positive = inflow
	Description  string
	Counterparty *string
	CreatedAt    time.Time
}
