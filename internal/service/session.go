package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jask/walletimport/internal/database/repository"
	"github.com/jask/walletimport/internal/resolve"
	"github.com/jask/walletimport/internal/rules"
	"github.com/jask/walletimport/internal/tabular"
)

var (
	// ErrInvalidRuleSet rejects a session over a rule set that still has
	// fatal compile diagnostics.
	ErrInvalidRuleSet = errors.New("rule set has compile errors")

	// ErrAlreadyCommitted guards against double submission from one session.
	ErrAlreadyCommitted = errors.New("session already committed")
)

// Store is the persistence collaborator. Both calls are atomic: the id
// snapshot is fetched once at session start, and InsertBatch either commits
// every row or none.
type Store interface {
	ExistingExternalIDs(ctx context.Context) (map[string]struct{}, error)
	InsertBatch(ctx context.Context, batch []repository.Transaction) error
}

// TransformedRow is one normalized, categorized, id-resolved row for human
// preview. Nil ids mean the name did not resolve; an empty CategoryName
// means no rule matched (uncategorized).
type TransformedRow struct {
	Line         int
	Transaction  Transaction
	WalletID     *int64
	CategoryID   *int64
	CategoryName string
}

// Result is the session output contract: the preview rows, the
// submission-ready batch, and every per-row diagnostic list. Fatal compile
// diagnostics never appear here: NewSession refuses a set that has any, so
// callers report rules.Set.Diagnostics before a session exists.
type Result struct {
	Rows              []TransformedRow
	Requests          []repository.Transaction
	Duplicates        []string // external ids excluded as already imported
	UnresolvedWallets []string // wallet names with no directory match
	InvalidCategories []string // rule targets naming no known category
	CompileWarnings   []rules.Diagnostic
	RowErrors         []error
}

// Session is one end-to-end import run. Sessions share no state; parallel
// imports each take their own external-id snapshot.
type Session struct {
	store      Store
	set        *rules.Set
	wallets    resolve.Directory
	categories resolve.Directory
	existing   map[string]struct{}
	committed  bool
}

// NewSession eagerly snapshots the committed external ids and rejects rule
// sets that are not safe to evaluate.
func NewSession(ctx context.Context, store Store, set *rules.Set, wallets, categories resolve.Directory) (*Session, error) {
	if set == nil {
		set = &rules.Set{}
	}
	if !set.Valid() {
		return nil, fmt.Errorf("%w: %d diagnostics", ErrInvalidRuleSet, len(set.Diagnostics))
	}
	existing, err := store.ExistingExternalIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch existing external ids: %w", err)
	}
	return &Session{
		store:      store,
		set:        set,
		wallets:    wallets,
		categories: categories,
		existing:   existing,
	}, nil
}

// Run normalizes every record in file order and builds the preview rows and
// the accepted submission batch. Rows already imported (in the snapshot or
// earlier in this same file) are reported under Duplicates and excluded
// from the batch, as are rows whose wallet or category did not resolve.
func (s *Session) Run(records []tabular.Record) *Result {
	res := &Result{CompileWarnings: s.set.Warnings}
	seen := make(map[string]struct{}, len(records))
	unresolvedWallets := make(map[string]bool)
	invalidCategories := make(map[string]bool)

	for _, rec := range records {
		tx, err := normalizeRecord(rec)
		if err != nil {
			res.RowErrors = append(res.RowErrors, err)
			continue
		}

		row := TransformedRow{Line: rec.Line(), Transaction: tx}
		if name, ok := rules.Categorize(rules.Subject{
			Clock:        tx.Clock,
			Amount:       tx.Amount,
			Description:  tx.Description,
			Counterparty: tx.Counterparty,
		}, s.set); ok {
			row.CategoryName = name
		}
		if id, ok := s.wallets.ResolveWallet(tx.WalletName); ok {
			row.WalletID = &id
		}
		if row.CategoryName != "" {
			if id, ok := s.categories.ResolveCategory(row.CategoryName); ok {
				row.CategoryID = &id
			}
		}
		res.Rows = append(res.Rows, row)

		_, dupPrior := s.existing[tx.ExternalID]
		_, dupBatch := seen[tx.ExternalID]
		if dupPrior || dupBatch {
			res.Duplicates = append(res.Duplicates, tx.ExternalID)
			continue
		}
		seen[tx.ExternalID] = struct{}{}

		if row.WalletID == nil && !unresolvedWallets[tx.WalletName] {
			unresolvedWallets[tx.WalletName] = true
			res.UnresolvedWallets = append(res.UnresolvedWallets, tx.WalletName)
		}
		if row.CategoryName != "" && row.CategoryID == nil && !invalidCategories[row.CategoryName] {
			invalidCategories[row.CategoryName] = true
			res.InvalidCategories = append(res.InvalidCategories, row.CategoryName)
		}
		if row.WalletID == nil || row.CategoryID == nil {
			continue
		}

		req := repository.Transaction{
			ID:          uuid.NewString(),
			ExternalID:  tx.ExternalID,
			WalletID:    *row.WalletID,
			CategoryID:  *row.CategoryID,
			Date:        tx.Date,
			Amount:      tx.Amount,
			Description: tx.Description,
		}
		if tx.Clock != nil {
			tod := tx.Clock.String()
			req.TimeOfDay = &tod
		}
		if tx.Counterparty != "" {
			cp := tx.Counterparty
			req.Counterparty = &cp
		}
		res.Requests = append(res.Requests, req)
	}
	return res
}

// Commit hands the accepted batch to the persistence collaborator in one
// atomic call. On success the batch ids join the session snapshot and the
// session refuses further commits.
func (s *Session) Commit(ctx context.Context, res *Result) error {
	if s.committed {
		return ErrAlreadyCommitted
	}
	if len(res.Requests) > 0 {
		if err := s.store.InsertBatch(ctx, res.Requests); err != nil {
			return fmt.Errorf("submit batch: %w", err)
		}
	}
	for _, req := range res.Requests {
		s.existing[req.ExternalID] = struct{}{}
	}
	s.committed = true
	return nil
}
