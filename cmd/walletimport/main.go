package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jask/walletimport/internal/config"
	"github.com/jask/walletimport/internal/database"
	"github.com/jask/walletimport/internal/database/repository"
	"github.com/jask/walletimport/internal/resolve"
	"github.com/jask/walletimport/internal/rules"
	"github.com/jask/walletimport/internal/service"
	"github.com/jask/walletimport/internal/tabular"
)

func main() {
	rulesPath := flag.String("rules", "", "rule file (overrides config)")
	commit := flag.Bool("commit", false, "submit the accepted batch instead of previewing")
	reset := flag.Bool("reset", false, "wipe every imported transaction and exit")
	flag.Parse()
	if !*reset && flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-rules file] [-commit] export.csv\n       %s -reset\n",
			filepath.Base(os.Args[0]), filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *rulesPath == "" {
		*rulesPath = cfg.Rules.Path
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("mkdir db dir: %v", err)
	}
	if err := database.RunMigrations(cfg.Database.Path, "internal/database/migrations"); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := database.SeedDefaults(ctx, db); err != nil {
		log.Fatalf("seed defaults: %v", err)
	}

	if *reset {
		if err := (&service.MaintenanceService{DB: db}).Reset(ctx); err != nil {
			log.Fatalf("reset: %v", err)
		}
		fmt.Println("ledger cleared")
		return
	}
	exportPath := flag.Arg(0)

	wallets, categories, err := loadDirectories(ctx, db)
	if err != nil {
		log.Fatalf("load directories: %v", err)
	}

	ruleSrc, err := os.ReadFile(*rulesPath)
	if err != nil {
		log.Fatalf("read rules: %v", err)
	}
	set := rules.Compile(string(ruleSrc), categories.Names())
	for _, d := range set.Diagnostics {
		fmt.Printf("rules: %s\n", d)
	}
	for _, w := range set.Warnings {
		fmt.Printf("rules: warning: %s\n", w)
	}
	if !set.Valid() {
		log.Fatalf("rules: %d errors, fix the rule file before importing", len(set.Diagnostics))
	}

	exportText, err := os.ReadFile(exportPath)
	if err != nil {
		log.Fatalf("read export: %v", err)
	}
	headers, err := tabular.Headers(string(exportText))
	if err != nil {
		log.Fatalf("export: %v", err)
	}
	if err := tabular.ValidateHeaders(headers, service.RequiredHeaders()); err != nil {
		log.Fatalf("export: %v", err)
	}
	records, err := tabular.Parse(string(exportText))
	if err != nil {
		log.Fatalf("export: %v", err)
	}

	txRepo := repository.NewTransactionRepo(db)
	sess, err := service.NewSession(ctx, txRepo, set, wallets, categories)
	if err != nil {
		log.Fatalf("session: %v", err)
	}
	res := sess.Run(records)
	printResult(res, wallets, categories)

	if !*commit {
		fmt.Println("preview only; re-run with -commit to submit")
		return
	}
	if err := sess.Commit(ctx, res); err != nil {
		log.Fatalf("commit: %v", err)
	}
	fmt.Printf("committed %d transactions\n", len(res.Requests))
}

func loadDirectories(ctx context.Context, db *sql.DB) (wallets, categories resolve.Directory, err error) {
	walletRows, err := repository.NewWalletRepo(db).List(ctx)
	if err != nil {
		return resolve.Directory{}, resolve.Directory{}, fmt.Errorf("list wallets: %w", err)
	}
	walletEntries := make([]resolve.Entry, 0, len(walletRows))
	for _, w := range walletRows {
		walletEntries = append(walletEntries, resolve.Entry{ID: w.ID, Name: w.Name})
	}

	catRows, err := repository.NewCategoryRepo(db).List(ctx)
	if err != nil {
		return resolve.Directory{}, resolve.Directory{}, fmt.Errorf("list categories: %w", err)
	}
	catEntries := make([]resolve.Entry, 0, len(catRows))
	for _, c := range catRows {
		catEntries = append(catEntries, resolve.Entry{ID: c.ID, Name: c.Name})
	}
	return resolve.NewDirectory(walletEntries), resolve.NewDirectory(catEntries), nil
}

func printResult(res *service.Result, wallets, categories resolve.Directory) {
	for _, row := range res.Rows {
		cat := row.CategoryName
		if cat == "" {
			cat = "(uncategorized)"
		}
		clock := "--:--"
		if row.Transaction.Clock != nil {
			clock = row.Transaction.Clock.String()
		}
		fmt.Printf("%s %s %8d  %-24s %s\n",
			row.Transaction.Date.Format("2006-01-02"), clock,
			row.Transaction.Amount, cat, row.Transaction.Description)
	}
	for _, err := range res.RowErrors {
		fmt.Printf("skipped: %v\n", err)
	}
	for _, id := range res.Duplicates {
		fmt.Printf("duplicate: %s already imported\n", id)
	}
	for _, name := range res.UnresolvedWallets {
		msg := fmt.Sprintf("unresolved wallet: %q", name)
		if near := wallets.Nearest(name); near != "" {
			msg += fmt.Sprintf(" (closest known: %q)", near)
		}
		fmt.Println(msg)
	}
	for _, name := range res.InvalidCategories {
		msg := fmt.Sprintf("unknown category: %q", name)
		if near := categories.Nearest(name); near != "" {
			msg += fmt.Sprintf(" (closest known: %q)", near)
		}
		fmt.Println(msg)
	}
	fmt.Printf("%d rows, %d accepted for submission\n", len(res.Rows), len(res.Requests))
}
