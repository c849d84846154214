package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jask/payledger/internal/config"
	"github.com/jask/payledger/internal/database"
	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/service"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "payledger",
		Short:         "Payment transactions and a reconciled cost/income ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(totalsCmd())
	rootCmd.AddCommand(browseCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(secretCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is the opened database plus everything built on it.
type env struct {
	cfg     config.Config
	log     *slog.Logger
	db      *sql.DB
	txs     *repository.TransactionRepo
	items   *repository.LineItemRepo
	entries *repository.EntryRepo
	budgets *repository.BudgetRepo
	ledger  *service.LedgerService
	imports *service.ImportService
}

// openEnv loads config, migrates and opens the database.
func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path, cfg.Database.Migrations); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.SeedDefaults(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}

	e := &env{
		cfg:     cfg,
		log:     logger,
		db:      db,
		txs:     repository.NewTransactionRepo(db),
		items:   repository.NewLineItemRepo(db),
		entries: repository.NewEntryRepo(db),
		budgets: repository.NewBudgetRepo(db),
	}
	e.ledger = &service.LedgerService{Entries: e.entries, Budgets: e.budgets, Transactions: e.txs, Logger: logger}
	e.imports = &service.ImportService{Entries: e.entries, Budgets: e.budgets}
	return e, nil
}

func (e *env) Close() error { return e.db.Close() }

func newLogger(c config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and print the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			v, dirty, err := database.Version(e.cfg.Database.Path, e.cfg.Database.Migrations)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t) at %s\n", v, dirty, e.cfg.Database.Path)
			return nil
		},
	}
}
