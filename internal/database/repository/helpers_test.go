package repository_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/payledger/internal/database"
	"github.com/jask/payledger/internal/database/repository"
)

func setupDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, ctx
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func strPtr(s string) *string { return &s }

func draft(amount string) repository.Transaction {
	return repository.Transaction{
		ID:       uuid.NewString(),
		Amount:   dec(amount),
		Currency: "EUR",
		Metadata: map[string]string{"source": "test"},
	}
}

func item(name, unit string, qty int) repository.LineItem {
	u := dec(unit)
	return repository.LineItem{Name: name, Quantity: qty, UnitAmount: u, TotalAmount: u.Mul(decimal.NewFromInt(int64(qty)))}
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}
