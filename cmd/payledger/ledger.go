package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/prefs"
	"github.com/jask/payledger/internal/service"
	"github.com/jask/payledger/internal/testdata"
	"github.com/jask/payledger/internal/tui"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import financial entries from a CSV or XLSX file",
		Long: `Import financial entries. Columns: date, type, amount, description,
budget, reference. Rows whose reference is already in the ledger are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var res service.IngestResult
			if strings.EqualFold(filepath.Ext(args[0]), ".xlsx") {
				res, err = e.imports.ImportXLSX(cmd.Context(), f, e.cfg.Location())
			} else {
				res, err = e.imports.ImportCSV(cmd.Context(), f, e.cfg.Location())
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d, skipped %d, errors %d\n", res.Imported, res.Skipped, len(res.Errors))
			for _, rowErr := range res.Errors {
				fmt.Fprintf(out, "  %v\n", rowErr)
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "export [file.xlsx]",
		Short: "Export financial entries to an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			filters, err := ff.filters(cmd.Context(), e)
			if err != nil {
				return err
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			n, err := e.imports.ExportXLSX(cmd.Context(), f, filters)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s\n", n, args[0])
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

func totalsCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Print cost, income and balance for the filtered entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			filters, err := ff.filters(cmd.Context(), e)
			if err != nil {
				return err
			}
			t, err := e.ledger.Totals(cmd.Context(), filters)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cost     %12s\n", t.TotalCost.StringFixed(2))
			fmt.Fprintf(out, "income   %12s\n", t.TotalIncome.StringFixed(2))
			fmt.Fprintf(out, "balance  %12s\n", t.Balance.StringFixed(2))
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

// filterFlags are the entry filters shared by totals and export.
type filterFlags struct {
	from, to  string
	budget    string
	unmatched bool
}

func (ff *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ff.from, "from", "", "first entry date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&ff.to, "to", "", "last entry date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&ff.budget, "budget", "", "budget name")
	cmd.Flags().BoolVar(&ff.unmatched, "unmatched", false, "only entries without a matched transaction")
}

func (ff *filterFlags) filters(ctx context.Context, e *env) (repository.EntryFilters, error) {
	f := repository.EntryFilters{UnmatchedOnly: ff.unmatched}
	loc := e.cfg.Location()
	for _, d := range []struct {
		raw string
		dst **time.Time
	}{{ff.from, &f.DateFrom}, {ff.to, &f.DateTo}} {
		if d.raw == "" {
			continue
		}
		t, err := time.ParseInLocation("2006-01-02", d.raw, loc)
		if err != nil {
			return f, fmt.Errorf("date %q: %w", d.raw, err)
		}
		*d.dst = &t
	}
	if ff.budget != "" {
		b, err := e.ledger.BudgetByName(ctx, ff.budget)
		if err != nil {
			return f, fmt.Errorf("budget %q: %w", ff.budget, err)
		}
		f.BudgetID = b.ID
	}
	return f, nil
}

func browseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse and reconcile the ledger in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			filter, err := prefs.LoadLedgerFilter()
			if err != nil {
				e.log.Warn("ignoring saved ledger filter", "err", err)
				filter = prefs.LedgerFilter{}
			}
			app := tui.New(ctx, e.cfg, tui.Services{
				Ledger:      e.ledger,
				Imports:     e.imports,
				Maintenance: &service.MaintenanceService{DB: e.db},
			}, filter, e.cfg.Location())
			_, err = tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
}

func seedCmd() *cobra.Command {
	var seed int64
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with sample budgets, entries and paid transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			res, err := testdata.Seed(cmd.Context(), testdata.Repos{
				Budgets:      e.budgets,
				Entries:      e.entries,
				Transactions: e.txs,
			}, rand.New(rand.NewSource(seed)))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d entries and %d transactions\n", res.Entries, res.Transactions)
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (default: time based)")
	return cmd
}

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every transaction, entry and budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset deletes all data; pass --yes to confirm")
			}
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			if err := (&service.MaintenanceService{DB: e.db}).Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "database reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
