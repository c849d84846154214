package testdata

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/payledger/internal/database"
	"github.com/jask/payledger/internal/database/repository"
)

func TestSeed(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dbPath := filepath.Join(t.TempDir(), "seed.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repos := Repos{
		Budgets:      repository.NewBudgetRepo(db),
		Entries:      repository.NewEntryRepo(db),
		Transactions: repository.NewTransactionRepo(db),
	}
	res, err := Seed(ctx, repos, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Equal(t, 20, res.Entries)
	require.Equal(t, 3, res.Transactions)

	settled, err := repos.Transactions.UnmatchedSettled(ctx)
	require.NoError(t, err)
	require.Len(t, settled, 3)

	again, err := Seed(ctx, repos, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	require.Zero(t, again.Entries)

	page, err := repos.Entries.List(ctx, repository.EntryFilters{})
	require.NoError(t, err)
	require.Equal(t, 20, page.Total)
}
