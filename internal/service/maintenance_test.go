package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMaintenanceReset(t *testing.T) {
	t.Parallel()
	f := setup(t)
	createTicket(t, f)
	_, err := f.imports.ImportCSV(f.ctx, strings.NewReader("2026-01-05,income,10,Donation,General\n"), time.UTC)
	require.NoError(t, err)

	m := &MaintenanceService{DB: f.db}
	require.NoError(t, m.Reset(f.ctx))

	for _, table := range []string{"transactions", "line_items", "financial_entries", "budgets"} {
		var n int
		require.NoError(t, f.db.QueryRowContext(f.ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
		require.Zero(t, n, table)
	}

	require.Error(t, (&MaintenanceService{}).Reset(f.ctx))
}
