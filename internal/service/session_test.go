package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/walletimport/internal/database"
	"github.com/jask/walletimport/internal/database/repository"
	"github.com/jask/walletimport/internal/resolve"
	"github.com/jask/walletimport/internal/rules"
	"github.com/jask/walletimport/internal/tabular"
)

const exportHeader = "取引日,出金金額（円）,入金金額（円）,取引内容,取引先,取引方法,取引番号"

func setupSessionTest(t *testing.T) (*repository.TransactionRepo, resolve.Directory, resolve.Directory, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	walletRepo := repository.NewWalletRepo(db)
	require.NoError(t, walletRepo.Upsert(ctx, "PayPay"))
	catRepo := repository.NewCategoryRepo(db)
	require.NoError(t, catRepo.Upsert(ctx, "Morning transport", 0))
	require.NoError(t, catRepo.Upsert(ctx, "Groceries", 1))

	wallets, err := walletRepo.List(ctx)
	require.NoError(t, err)
	var walletEntries []resolve.Entry
	for _, w := range wallets {
		walletEntries = append(walletEntries, resolve.Entry{ID: w.ID, Name: w.Name})
	}
	cats, err := catRepo.List(ctx)
	require.NoError(t, err)
	var catEntries []resolve.Entry
	for _, c := range cats {
		catEntries = append(catEntries, resolve.Entry{ID: c.ID, Name: c.Name})
	}

	return repository.NewTransactionRepo(db),
		resolve.NewDirectory(walletEntries),
		resolve.NewDirectory(catEntries),
		ctx
}

func parseExport(t *testing.T, rows ...string) []tabular.Record {
	t.Helper()
	recs, err := tabular.Parse(exportHeader + "\n" + strings.Join(rows, "\n") + "\n")
	require.NoError(t, err)
	return recs
}

func compileRules(t *testing.T, src string) *rules.Set {
	t.Helper()
	set := rules.Compile(src, nil)
	require.True(t, set.Valid(), "diagnostics: %v", set.Diagnostics)
	return set
}

func TestSessionImportHappyPath(t *testing.T) {
	t.Parallel()
	txRepo, wallets, categories, ctx := setupSessionTest(t)

	set := compileRules(t, `time < 9:00, amount > 100, description *= "Uber" -> Morning transport`)
	sess, err := NewSession(ctx, txRepo, set, wallets, categories)
	require.NoError(t, err)

	records := parseExport(t,
		"2024/01/01 08:30:00,250,,Uber ride,Uber,PayPay残高,2024010112345",
		"2024/01/02 12:00:00,,1000,チャージ,,PayPay残高,2024010254321",
	)
	res := sess.Run(records)
	require.Empty(t, res.RowErrors)
	require.Empty(t, res.Duplicates)
	require.Empty(t, res.UnresolvedWallets)
	require.Len(t, res.Rows, 2)

	first := res.Rows[0]
	require.Equal(t, "Morning transport", first.CategoryName)
	require.NotNil(t, first.WalletID)
	require.NotNil(t, first.CategoryID)
	require.Equal(t, int64(-250), first.Transaction.Amount)
	require.NotNil(t, first.Transaction.Clock)
	require.Equal(t, "08:30", first.Transaction.Clock.String())

	// Second row is uncategorized: previewed but not submitted.
	second := res.Rows[1]
	require.Equal(t, "", second.CategoryName)
	require.Equal(t, int64(1000), second.Transaction.Amount)
	require.Len(t, res.Requests, 1)
	require.Equal(t, "2024010112345", res.Requests[0].ExternalID)

	require.NoError(t, sess.Commit(ctx, res))

	stored, err := txRepo.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "2024010112345", stored[0].ExternalID)
	require.Equal(t, int64(-250), stored[0].Amount)
	require.NotNil(t, stored[0].TimeOfDay)
	require.Equal(t, "08:30", *stored[0].TimeOfDay)
	require.Equal(t, "2024-01-01", stored[0].Date.Format(time.DateOnly))
}

func TestSessionReimportIsIdempotent(t *testing.T) {
	t.Parallel()
	txRepo, wallets, categories, ctx := setupSessionTest(t)

	set := compileRules(t, `description *= "Uber" -> Morning transport`)
	records := parseExport(t, "2024/01/01 08:30:00,250,,Uber ride,Uber,PayPay残高,2024010112345")

	sess, err := NewSession(ctx, txRepo, set, wallets, categories)
	require.NoError(t, err)
	res := sess.Run(records)
	require.Len(t, res.Requests, 1)
	require.NoError(t, sess.Commit(ctx, res))

	// Second run over the identical file: zero new requests, the row is
	// reported as a duplicate.
	sess2, err := NewSession(ctx, txRepo, set, wallets, categories)
	require.NoError(t, err)
	res2 := sess2.Run(records)
	require.Empty(t, res2.Requests)
	require.Equal(t, []string{"2024010112345"}, res2.Duplicates)
	require.Len(t, res2.Rows, 1) // still previewed
	require.NoError(t, sess2.Commit(ctx, res2))

	stored, err := txRepo.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestSessionDuplicateWithinFile(t *testing.T) {
	t.Parallel()
	txRepo, wallets, categories, ctx := setupSessionTest(t)

	sess, err := NewSession(ctx, txRepo, compileRules(t, `amount >= 0 -> Groceries`), wallets, categories)
	require.NoError(t, err)
	res := sess.Run(parseExport(t,
		"2024/01/01 08:30:00,250,,A,,PayPay残高,dup-1",
		"2024/01/01 09:00:00,300,,B,,PayPay残高,dup-1",
	))
	require.Len(t, res.Requests, 1)
	require.Equal(t, []string{"dup-1"}, res.Duplicates)
}

func TestSessionAmbiguousAmounts(t *testing.T) {
	t.Parallel()
	txRepo, wallets, categories, ctx := setupSessionTest(t)

	sess, err := NewSession(ctx, txRepo, &rules.Set{}, wallets, categories)
	require.NoError(t, err)
	res := sess.Run(parseExport(t,
		"2024/01/01 08:30:00,250,1000,both set,,PayPay残高,amb-1",
		"2024/01/02 08:30:00,,,both zero,,PayPay残高,amb-2",
		"2024/01/03 08:30:00,120,,fine,,PayPay残高,ok-1",
	))
	require.Len(t, res.RowErrors, 2)
	var ambiguous *AmbiguousAmountError
	require.ErrorAs(t, res.RowErrors[0], &ambiguous)
	require.Equal(t, 2, ambiguous.Line)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "ok-1", res.Rows[0].Transaction.ExternalID)
}

func TestSessionUnresolvedWalletExcludedButPreviewed(t *testing.T) {
	t.Parallel()
	txRepo, wallets, categories, ctx := setupSessionTest(t)

	sess, err := NewSession(ctx, txRepo, compileRules(t, `amount >= 0 -> Groceries`), wallets, categories)
	require.NoError(t, err)
	res := sess.Run(parseExport(t, "2024/01/01,250,,A,,楽天キャッシュ,w-1"))
	require.Len(t, res.Rows, 1)
	require.Nil(t, res.Rows[0].WalletID)
	require.Equal(t, []string{"楽天キャッシュ"}, res.UnresolvedWallets)
	require.Empty(t, res.Requests)
	// Bare date: no clock on the canonical transaction.
	require.Nil(t, res.Rows[0].Transaction.Clock)
}

func TestSessionInvalidCategoryReported(t *testing.T) {
	t.Parallel()
	txRepo, wallets, categories, ctx := setupSessionTest(t)

	set := rules.Compile(`amount >= 0 -> No Such Category`, []string{"Groceries", "Morning transport"})
	require.True(t, set.Valid())
	require.Len(t, set.Warnings, 1)

	sess, err := NewSession(ctx, txRepo, set, wallets, categories)
	require.NoError(t, err)
	res := sess.Run(parseExport(t, "2024/01/01 10:00:00,250,,A,,PayPay残高,c-1"))
	require.Equal(t, []string{"No Such Category"}, res.InvalidCategories)
	require.Len(t, res.CompileWarnings, 1)
	require.Empty(t, res.Requests)
	require.Len(t, res.Rows, 1) // previewed with the unresolved name
	require.Equal(t, "No Such Category", res.Rows[0].CategoryName)
	require.Nil(t, res.Rows[0].CategoryID)
}

func TestNewSessionRejectsInvalidRuleSet(t *testing.T) {
	t.Parallel()
	txRepo, wallets, categories, ctx := setupSessionTest(t)

	set := rules.Compile("not a rule\n", nil)
	_, err := NewSession(ctx, txRepo, set, wallets, categories)
	require.ErrorIs(t, err, ErrInvalidRuleSet)
}

func TestSessionCommitOnlyOnce(t *testing.T) {
	t.Parallel()
	txRepo, wallets, categories, ctx := setupSessionTest(t)

	sess, err := NewSession(ctx, txRepo, compileRules(t, `amount >= 0 -> Groceries`), wallets, categories)
	require.NoError(t, err)
	res := sess.Run(parseExport(t, "2024/01/01 08:30:00,250,,A,,PayPay残高,once-1"))
	require.NoError(t, sess.Commit(ctx, res))
	require.ErrorIs(t, sess.Commit(ctx, res), ErrAlreadyCommitted)
}

type failingStore struct{}

func (failingStore) ExistingExternalIDs(context.Context) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (failingStore) InsertBatch(context.Context, []repository.Transaction) error {
	return errors.New("storage down")
}

func TestSessionCommitFailureLeavesSessionOpen(t *testing.T) {
	t.Parallel()
	_, wallets, categories, ctx := setupSessionTest(t)

	sess, err := NewSession(ctx, failingStore{}, compileRules(t, `amount >= 0 -> Groceries`), wallets, categories)
	require.NoError(t, err)
	res := sess.Run(parseExport(t, "2024/01/01 08:30:00,250,,A,,PayPay残高,f-1"))
	require.Len(t, res.Requests, 1)
	err = sess.Commit(ctx, res)
	require.Error(t, err)
	// The failed commit must not close the session: a retry reaches the
	// store again instead of reporting a double commit.
	require.NotErrorIs(t, sess.Commit(ctx, res), ErrAlreadyCommitted)
}
