package tui

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/payledger/internal/config"
	"github.com/jask/payledger/internal/database"
	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/prefs"
	"github.com/jask/payledger/internal/service"
)

type env struct {
	ctx     context.Context
	app     *App
	ledger  *service.LedgerService
	txs     *repository.TransactionRepo
	saved   []prefs.LedgerFilter
	budgets repository.Budget
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	dbPath := filepath.Join(t.TempDir(), "tui.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	entries := repository.NewEntryRepo(db)
	budgets := repository.NewBudgetRepo(db)
	txs := repository.NewTransactionRepo(db)
	ledger := &service.LedgerService{
		Entries:      entries,
		Budgets:      budgets,
		Transactions: txs,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	services := Services{
		Ledger:      ledger,
		Imports:     &service.ImportService{Entries: entries, Budgets: budgets},
		Maintenance: &service.MaintenanceService{DB: db},
	}
	e := &env{ctx: ctx, ledger: ledger, txs: txs}
	e.app = New(ctx, config.Config{UI: config.UIConfig{CurrencySymbol: "€"}}, services, prefs.LedgerFilter{}, time.UTC)
	e.app.saveFilter = func(f prefs.LedgerFilter) error {
		e.saved = append(e.saved, f)
		return nil
	}

	b, err := ledger.CreateBudget(ctx, "Events", "")
	require.NoError(t, err)
	e.budgets = b
	return e
}

func (e *env) entry(t *testing.T, typ repository.EntryType, amount string, desc string, budgetID *string) repository.FinancialEntry {
	t.Helper()
	created, err := e.ledger.CreateEntry(e.ctx, repository.FinancialEntry{
		ID:          uuid.NewString(),
		Amount:      decimal.RequireFromString(amount),
		EntryType:   typ,
		EntryDate:   time.Now().UTC(),
		Description: desc,
		BudgetID:    budgetID,
	})
	require.NoError(t, err)
	return created
}

func (e *env) paidTransaction(t *testing.T, amount, desc string) string {
	t.Helper()
	d := decimal.RequireFromString(amount)
	tx := repository.Transaction{ID: uuid.NewString(), Amount: d, Currency: "EUR", Testmode: true, Description: desc}
	items := []repository.LineItem{{Name: desc, Quantity: 1, UnitAmount: d, TotalAmount: d}}
	require.NoError(t, e.txs.Create(e.ctx, tx, items))
	gw := "tr_" + tx.ID[:8]
	require.NoError(t, e.txs.MarkPaymentInitiated(e.ctx, tx.ID, repository.PaymentStart{GatewayPaymentID: gw}))
	_, _, err := e.txs.UpdateStatus(e.ctx, gw, repository.StatusPaid)
	require.NoError(t, err)
	return tx.ID
}

// run executes cmd and feeds every resulting message back into the app
// until no command is left.
func (e *env) run(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case nil:
	case tea.BatchMsg:
		for _, c := range msg {
			e.run(c)
		}
	default:
		_, next := e.app.Update(msg)
		e.run(next)
	}
}

func (e *env) press(keys string) {
	for _, r := range keys {
		_, cmd := e.app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		e.run(cmd)
	}
}

func TestApp_InitLoadsLedger(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.entry(t, repository.EntryCost, "40.00", "Venue deposit", &e.budgets.ID)
	e.entry(t, repository.EntryIncome, "100.00", "Sponsor", nil)

	e.run(e.app.Init())

	require.Len(t, e.app.entries.Entries, 2)
	require.Equal(t, "60.00", e.app.totals.Balance.StringFixed(2))
	require.Equal(t, "Events", e.app.budgetName[e.budgets.ID])

	view := e.app.View()
	require.Contains(t, view, "Venue deposit")
	require.Contains(t, view, "Events")
	require.Contains(t, view, "Balance: €60.00")
}

func TestApp_FiltersPersistAndReload(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.entry(t, repository.EntryCost, "40.00", "Venue deposit", &e.budgets.ID)
	e.entry(t, repository.EntryIncome, "100.00", "Sponsor", nil)
	e.run(e.app.Init())

	e.press("f")
	require.Equal(t, "cost", e.app.filter.EntryType)
	require.Len(t, e.app.entries.Entries, 1)
	require.Equal(t, "Venue deposit", e.app.entries.Entries[0].Description)
	// totals ignore the type filter
	require.Equal(t, "100.00", e.app.totals.TotalIncome.StringFixed(2))

	e.press("f")
	require.Equal(t, "income", e.app.filter.EntryType)
	e.press("f")
	require.Empty(t, e.app.filter.EntryType)
	require.Len(t, e.app.entries.Entries, 2)

	e.press("b")
	require.Equal(t, e.budgets.ID, e.app.filter.BudgetID)
	require.Len(t, e.app.entries.Entries, 1)
	require.Equal(t, "40.00", e.app.totals.TotalCost.StringFixed(2))
	require.True(t, e.app.totals.TotalIncome.IsZero())
	e.press("b")
	require.Empty(t, e.app.filter.BudgetID)

	require.Len(t, e.saved, 5)
	require.Equal(t, e.budgets.ID, e.saved[3].BudgetID)
}

func TestApp_SuggestAndMatch(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	entry := e.entry(t, repository.EntryIncome, "25.00", "Gala tickets", nil)
	txID := e.paidTransaction(t, "25.00", "Gala tickets")
	e.run(e.app.Init())

	e.press("s")
	require.Equal(t, viewSuggest, e.app.state)
	require.Len(t, e.app.suggestions, 1)
	require.Contains(t, e.app.View(), "Match suggestions")

	_, cmd := e.app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	e.run(cmd)
	require.Equal(t, viewLedger, e.app.state)
	require.Equal(t, "matched", e.app.status)

	got, err := e.ledger.GetEntry(e.ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TransactionID)
	require.Equal(t, txID, *got.TransactionID)

	e.press("u")
	require.True(t, e.app.filter.UnmatchedOnly)
	require.Empty(t, e.app.entries.Entries)

	e.press("u")
	require.Len(t, e.app.entries.Entries, 1)
	e.press("x")
	require.Equal(t, "unmatched", e.app.status)
	got, err = e.ledger.GetEntry(e.ctx, entry.ID)
	require.NoError(t, err)
	require.Nil(t, got.TransactionID)
}

func TestApp_ResetRequiresConfirmation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.entry(t, repository.EntryCost, "12.50", "Flowers", nil)
	e.run(e.app.Init())

	e.press("R")
	require.Equal(t, modalConfirmReset, e.app.modal)
	e.press("n")
	require.Equal(t, modalNone, e.app.modal)
	require.Len(t, e.app.entries.Entries, 1)

	e.press("Ry")
	require.Equal(t, "database reset (empty)", e.app.status)
	require.Empty(t, e.app.entries.Entries)
	require.Empty(t, e.app.budgets)
	require.Contains(t, e.app.View(), "(no entries)")
}

func TestApp_ImportView(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.run(e.app.Init())

	e.press("i")
	require.Equal(t, viewImport, e.app.state)
	e.press("missing.csv")
	require.Equal(t, "missing.csv", e.app.importInput.Value())

	_, cmd := e.app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	e.run(cmd)
	require.Contains(t, e.app.status, "error: open")
	require.Equal(t, viewImport, e.app.state)

	_, cmd = e.app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.Nil(t, cmd)
	require.Equal(t, viewLedger, e.app.state)
}
