package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/payledger/internal/database"
	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/events"
	"github.com/jask/payledger/internal/gateway"
)

type fixture struct {
	ctx      context.Context
	db       *sql.DB
	txs      *repository.TransactionRepo
	items    *repository.LineItemRepo
	entries  *repository.EntryRepo
	budgets  *repository.BudgetRepo
	sandbox  *gateway.Sandbox
	bus      *events.Bus
	payments *PaymentService
	webhooks *WebhookReconciler
	ledger   *LedgerService
	imports  *ImportService
}

func setup(t *testing.T) *fixture {
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

	logger := quietLogger()
	f := &fixture{
		ctx:     ctx,
		db:      db,
		txs:     repository.NewTransactionRepo(db),
		items:   repository.NewLineItemRepo(db),
		entries: repository.NewEntryRepo(db),
		budgets: repository.NewBudgetRepo(db),
		sandbox: gateway.NewSandbox("https://sandbox.test"),
		bus:     events.NewBus(logger),
	}
	f.payments = &PaymentService{
		Transactions: f.txs,
		LineItems:    f.items,
		Gateway:      f.sandbox,
		Logger:       logger,
		Testmode:     true,
		Currency:     "EUR",
		FeePercent:   decimal.NewFromInt(2),
		WebhookURL:   "https://ledger.test/webhook",
	}
	f.webhooks = &WebhookReconciler{Transactions: f.txs, Gateway: f.sandbox, Events: f.bus, Logger: logger}
	f.ledger = &LedgerService{Entries: f.entries, Budgets: f.budgets, Transactions: f.txs, Logger: logger}
	f.imports = &ImportService{Entries: f.entries, Budgets: f.budgets}
	return f
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects every published event.
type recorder struct {
	got []events.Event
}

func (r *recorder) HandleEvent(_ context.Context, ev events.Event) error {
	r.got = append(r.got, ev)
	return nil
}

func (r *recorder) kinds() []events.Kind {
	out := make([]events.Kind, 0, len(r.got))
	for _, ev := range r.got {
		out = append(out, ev.Kind)
	}
	return out
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func strPtr(s string) *string { return &s }

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

// gatewayFunc is a gateway.Client whose calls are supplied by the test.
type gatewayFunc struct {
	CreateFunc func(ctx context.Context, req gateway.CreatePaymentRequest) (gateway.Payment, error)
	GetFunc    func(ctx context.Context, id string, opts gateway.GetOptions) (gateway.Payment, error)
}

func (g *gatewayFunc) CreatePayment(ctx context.Context, req gateway.CreatePaymentRequest) (gateway.Payment, error) {
	return g.CreateFunc(ctx, req)
}

func (g *gatewayFunc) GetPayment(ctx context.Context, id string, opts gateway.GetOptions) (gateway.Payment, error) {
	return g.GetFunc(ctx, id, opts)
}
