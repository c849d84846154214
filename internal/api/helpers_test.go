package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/payledger/internal/database"
	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/events"
	"github.com/jask/payledger/internal/gateway"
	"github.com/jask/payledger/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	server  *Server
	sandbox *gateway.Sandbox
	bus     *events.Bus
}

// newTestEnv wires real services over a temporary database and the sandbox
// gateway.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "api.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	txs := repository.NewTransactionRepo(db)
	entries := repository.NewEntryRepo(db)
	budgets := repository.NewBudgetRepo(db)
	sb := gateway.NewSandbox("https://sandbox.test")
	bus := events.NewBus(logger)

	srv := NewServer(Deps{
		Payments: &service.PaymentService{
			Transactions: txs,
			LineItems:    repository.NewLineItemRepo(db),
			Gateway:      sb,
			Logger:       logger,
			Testmode:     true,
			Currency:     "EUR",
			FeePercent:   decimal.NewFromInt(2),
		},
		Webhooks: &service.WebhookReconciler{Transactions: txs, Gateway: sb, Events: bus, Logger: logger},
		Ledger:   &service.LedgerService{Entries: entries, Budgets: budgets, Transactions: txs, Logger: logger},
		Imports:  &service.ImportService{Entries: entries, Budgets: budgets},
		Logger:   logger,
	})
	return &testEnv{server: srv, sandbox: sb, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := httptest.NewRequest(method, path, r).WithContext(ctx)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
}
