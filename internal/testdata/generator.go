package testdata

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jask/payledger/internal/database/repository"
)

// Repos bundles repos used by Seed.
type Repos struct {
	Budgets      *repository.BudgetRepo
	Entries      *repository.EntryRepo
	Transactions *repository.TransactionRepo
}

// SeedResult counts what Seed wrote.
type SeedResult struct {
	Entries      int
	Transactions int
}

var sampleEntries = []struct {
	desc   string
	kind   repository.EntryType
	budget string
}{
	{"Membership dues", repository.EntryIncome, "Membership fees"},
	{"Gala tickets", repository.EntryIncome, "Events"},
	{"Venue hire", repository.EntryCost, "Events"},
	{"Catering deposit", repository.EntryCost, "Events"},
	{"Bank service fee", repository.EntryCost, "Bank charges"},
	{"Donation", repository.EntryIncome, "General"},
	{"Office supplies", repository.EntryCost, "General"},
}

// Seed creates sample budgets, entries and settled transactions. Entries carry
// seed references so seeding twice adds nothing.
func Seed(ctx context.Context, repos Repos, rnd *rand.Rand) (SeedResult, error) {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	var res SeedResult
	budgetIDs := map[string]string{}
	for _, s := range sampleEntries {
		if _, ok := budgetIDs[s.budget]; ok {
			continue
		}
		existing, err := repos.Budgets.ByName(ctx, s.budget)
		if err != nil {
			return res, err
		}
		if existing != nil {
			budgetIDs[s.budget] = existing.ID
			continue
		}
		id := repository.BudgetIDForName(s.budget)
		if err := repos.Budgets.Upsert(ctx, repository.Budget{ID: id, Name: s.budget}); err != nil {
			return res, err
		}
		budgetIDs[s.budget] = id
	}

	today := repository.NormalizeDate(time.Now().UTC())
	for i := 0; i < 20; i++ {
		s := sampleEntries[rnd.Intn(len(sampleEntries))]
		budgetID := budgetIDs[s.budget]
		ref := fmt.Sprintf("seed:%d", i)
		e := repository.FinancialEntry{
			ID:                uuid.NewString(),
			Amount:            decimal.New(int64(rnd.Intn(20000)+500), -2),
			EntryType:         s.kind,
			EntryDate:         today.AddDate(0, 0, -rnd.Intn(30)),
			Description:       s.desc,
			BudgetID:          &budgetID,
			ExternalReference: &ref,
		}
		if err := repos.Entries.CreateWithExternalReference(ctx, e); err != nil {
			if errors.Is(err, repository.ErrDuplicateReference) {
				continue
			}
			return res, err
		}
		res.Entries++
	}

	for i := 0; i < 3; i++ {
		amount := decimal.New(int64(rnd.Intn(10)+1)*1000, -2)
		tx := repository.Transaction{
			ID:          uuid.NewString(),
			Amount:      amount,
			Currency:    "EUR",
			Testmode:    true,
			Description: "Gala tickets",
		}
		items := []repository.LineItem{{Name: "Ticket", Quantity: 1, UnitAmount: amount, TotalAmount: amount}}
		if err := repos.Transactions.Create(ctx, tx, items); err != nil {
			return res, err
		}
		gwID := "tr_seed_" + tx.ID[:8]
		if err := repos.Transactions.MarkPaymentInitiated(ctx, tx.ID, repository.PaymentStart{GatewayPaymentID: gwID}); err != nil {
			return res, err
		}
		if _, _, err := repos.Transactions.UpdateStatus(ctx, gwID, repository.StatusPaid); err != nil {
			return res, err
		}
		res.Transactions++
	}
	return res, nil
}
