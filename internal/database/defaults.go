package database

import (
	"context"
	"database/sql"

	"github.com/jask/payledger/internal/database/repository"
)

// DefaultBudgets are created on a fresh database.
var DefaultBudgets = []repository.Budget{
	{Name: "General", Description: "Uncategorised costs and income"},
	{Name: "Membership fees", Description: "Fees collected from members"},
	{Name: "Events", Description: "Event tickets and event costs"},
	{Name: "Bank charges", Description: "Gateway and bank fees"},
}

// SeedDefaults ensures baseline budgets exist for new databases.
// It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB) error {
	budgets := repository.NewBudgetRepo(db)
	existing, err := budgets.List(ctx)
	if err == nil && len(existing) > 0 {
		return nil
	}
	for _, b := range DefaultBudgets {
		b.ID = repository.BudgetIDForName(b.Name)
		if err := budgets.Upsert(ctx, b); err != nil {
			return err
		}
	}
	return nil
}
