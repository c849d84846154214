package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/jask/payledger/internal/database/repository"
)

// maxSuggestionDays bounds how far apart an entry and a transaction may be
// to be suggested as a match.
const maxSuggestionDays = 7

// LedgerService validates and records financial entries and budgets.
type LedgerService struct {
	Entries      *repository.EntryRepo
	Budgets      *repository.BudgetRepo
	Transactions *repository.TransactionRepo
	Logger       *slog.Logger
}

// CreateEntry validates e, assigns an id and stores it.
func (s *LedgerService) CreateEntry(ctx context.Context, e repository.FinancialEntry) (repository.FinancialEntry, error) {
	if err := s.validateEntry(ctx, &e); err != nil {
		return repository.FinancialEntry{}, err
	}
	e.ID = uuid.NewString()
	if err := s.Entries.Create(ctx, e); err != nil {
		return repository.FinancialEntry{}, err
	}
	return s.mustGetEntry(ctx, e.ID)
}

// CreateWithExternalReference stores e unless an entry with the same
// external reference exists, in which case repository.ErrDuplicateReference
// is returned and nothing is written.
func (s *LedgerService) CreateWithExternalReference(ctx context.Context, e repository.FinancialEntry) (repository.FinancialEntry, error) {
	if e.ExternalReference == nil || strings.TrimSpace(*e.ExternalReference) == "" {
		return repository.FinancialEntry{}, fmt.Errorf("%w: external reference is required", ErrInvalidEntry)
	}
	if err := s.validateEntry(ctx, &e); err != nil {
		return repository.FinancialEntry{}, err
	}
	e.ID = uuid.NewString()
	if err := s.Entries.CreateWithExternalReference(ctx, e); err != nil {
		return repository.FinancialEntry{}, err
	}
	return s.mustGetEntry(ctx, e.ID)
}

func (s *LedgerService) GetEntry(ctx context.Context, id string) (repository.FinancialEntry, error) {
	return s.mustGetEntry(ctx, id)
}

// UpdateEntry replaces the editable fields of an existing entry.
func (s *LedgerService) UpdateEntry(ctx context.Context, e repository.FinancialEntry) (repository.FinancialEntry, error) {
	if _, err := s.mustGetEntry(ctx, e.ID); err != nil {
		return repository.FinancialEntry{}, err
	}
	if err := s.validateEntry(ctx, &e); err != nil {
		return repository.FinancialEntry{}, err
	}
	if err := s.Entries.Update(ctx, e); err != nil {
		return repository.FinancialEntry{}, err
	}
	return s.mustGetEntry(ctx, e.ID)
}

func (s *LedgerService) DeleteEntry(ctx context.Context, id string) error {
	if err := s.Entries.Delete(ctx, id); err != nil {
		return fmt.Errorf("entry %s: %w", id, err)
	}
	return nil
}

func (s *LedgerService) ListEntries(ctx context.Context, f repository.EntryFilters) (repository.EntryPage, error) {
	if err := validateFilters(f); err != nil {
		return repository.EntryPage{}, err
	}
	return s.Entries.List(ctx, f)
}

// Totals sums the entries selected by f. The entry type filter is ignored.
func (s *LedgerService) Totals(ctx context.Context, f repository.EntryFilters) (repository.Totals, error) {
	if err := validateFilters(f); err != nil {
		return repository.Totals{}, err
	}
	return s.Entries.Totals(ctx, f)
}

// MatchTransaction links an entry to an existing transaction. Amounts are not
// compared.
func (s *LedgerService) MatchTransaction(ctx context.Context, entryID, transactionID string) (repository.FinancialEntry, error) {
	tx, err := s.Transactions.Get(ctx, transactionID)
	if err != nil {
		return repository.FinancialEntry{}, err
	}
	if tx == nil {
		return repository.FinancialEntry{}, fmt.Errorf("transaction %s: %w", transactionID, repository.ErrNotFound)
	}
	if err := s.Entries.MatchTransaction(ctx, entryID, transactionID); err != nil {
		return repository.FinancialEntry{}, fmt.Errorf("entry %s: %w", entryID, err)
	}
	s.logger().Info("entry matched", "entry_id", entryID, "transaction_id", transactionID)
	return s.mustGetEntry(ctx, entryID)
}

func (s *LedgerService) UnmatchTransaction(ctx context.Context, entryID string) (repository.FinancialEntry, error) {
	if err := s.Entries.UnmatchTransaction(ctx, entryID); err != nil {
		return repository.FinancialEntry{}, fmt.Errorf("entry %s: %w", entryID, err)
	}
	return s.mustGetEntry(ctx, entryID)
}

// MatchSuggestion is a settled transaction that plausibly backs an entry.
type MatchSuggestion struct {
	Transaction repository.Transaction
	DaysApart   int
	Similarity  float64
	Score       float64
}

// SuggestMatches ranks unmatched paid or authorized transactions for an
// entry. Candidates must have the same amount and lie within a week of the
// entry date; closer dates and similar descriptions rank higher.
func (s *LedgerService) SuggestMatches(ctx context.Context, entryID string, limit int) ([]MatchSuggestion, error) {
	entry, err := s.mustGetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.Transactions.UnmatchedSettled(ctx)
	if err != nil {
		return nil, err
	}
	var out []MatchSuggestion
	for _, tx := range candidates {
		if !tx.Amount.Equal(entry.Amount) {
			continue
		}
		days := daysApart(repository.NormalizeDate(tx.CreatedAt), entry.EntryDate)
		if days > maxSuggestionDays {
			continue
		}
		sim := similarity(entry.Description, transactionLabel(tx))
		out = append(out, MatchSuggestion{
			Transaction: tx,
			DaysApart:   days,
			Similarity:  sim,
			Score:       0.6*sim + 0.4*(1-float64(days)/maxSuggestionDays),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *LedgerService) CreateBudget(ctx context.Context, name, description string) (repository.Budget, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return repository.Budget{}, fmt.Errorf("%w: name is required", ErrInvalidBudget)
	}
	b := repository.Budget{ID: uuid.NewString(), Name: name, Description: strings.TrimSpace(description)}
	if err := s.Budgets.Create(ctx, b); err != nil {
		return repository.Budget{}, err
	}
	return s.GetBudget(ctx, b.ID)
}

func (s *LedgerService) GetBudget(ctx context.Context, id string) (repository.Budget, error) {
	b, err := s.Budgets.Get(ctx, id)
	if err != nil {
		return repository.Budget{}, err
	}
	if b == nil {
		return repository.Budget{}, fmt.Errorf("budget %s: %w", id, repository.ErrNotFound)
	}
	return *b, nil
}

// BudgetByName looks a budget up case-insensitively.
func (s *LedgerService) BudgetByName(ctx context.Context, name string) (repository.Budget, error) {
	b, err := s.Budgets.ByName(ctx, name)
	if err != nil {
		return repository.Budget{}, err
	}
	if b == nil {
		return repository.Budget{}, fmt.Errorf("budget %q: %w", name, repository.ErrNotFound)
	}
	return *b, nil
}

func (s *LedgerService) ListBudgets(ctx context.Context) ([]repository.Budget, error) {
	return s.Budgets.List(ctx)
}

func (s *LedgerService) UpdateBudget(ctx context.Context, b repository.Budget) (repository.Budget, error) {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return repository.Budget{}, fmt.Errorf("%w: name is required", ErrInvalidBudget)
	}
	if err := s.Budgets.Update(ctx, b); err != nil {
		return repository.Budget{}, fmt.Errorf("budget %s: %w", b.ID, err)
	}
	return s.GetBudget(ctx, b.ID)
}

// DeleteBudget removes a budget after detaching its entries. It returns the
// number of entries detached.
func (s *LedgerService) DeleteBudget(ctx context.Context, id string) (int64, error) {
	n, err := s.Budgets.Delete(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("budget %s: %w", id, err)
	}
	s.logger().Info("budget deleted", "budget_id", id, "entries_detached", n)
	return n, nil
}

func (s *LedgerService) validateEntry(ctx context.Context, e *repository.FinancialEntry) error {
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidEntry)
	}
	if !e.EntryType.Valid() {
		return fmt.Errorf("%w: entry type must be cost or income", ErrInvalidEntry)
	}
	if e.EntryDate.IsZero() {
		return fmt.Errorf("%w: entry date is required", ErrInvalidEntry)
	}
	e.Description = strings.TrimSpace(e.Description)
	if e.BudgetID != nil && strings.TrimSpace(*e.BudgetID) == "" {
		e.BudgetID = nil
	}
	if e.ExternalReference != nil && strings.TrimSpace(*e.ExternalReference) == "" {
		e.ExternalReference = nil
	}
	if e.BudgetID != nil {
		b, err := s.Budgets.Get(ctx, *e.BudgetID)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("%w: budget %s does not exist", ErrInvalidEntry, *e.BudgetID)
		}
	}
	return nil
}

func validateFilters(f repository.EntryFilters) error {
	if f.EntryType != "" && !f.EntryType.Valid() {
		return fmt.Errorf("%w: entry type must be cost or income", ErrInvalidEntry)
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return fmt.Errorf("%w: date_to is before date_from", ErrInvalidEntry)
	}
	return nil
}

func (s *LedgerService) mustGetEntry(ctx context.Context, id string) (repository.FinancialEntry, error) {
	e, err := s.Entries.Get(ctx, id)
	if err != nil {
		return repository.FinancialEntry{}, err
	}
	if e == nil {
		return repository.FinancialEntry{}, fmt.Errorf("entry %s: %w", id, repository.ErrNotFound)
	}
	return *e, nil
}

func (s *LedgerService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func transactionLabel(tx repository.Transaction) string {
	if strings.TrimSpace(tx.Description) != "" {
		return tx.Description
	}
	return "Transaction " + tx.ID
}

// similarity is 1 minus the normalised edit distance of the upper-cased strings.
func similarity(a, b string) float64 {
	a, b = strings.ToUpper(strings.TrimSpace(a)), strings.ToUpper(strings.TrimSpace(b))
	longest := max(len(a), len(b))
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func daysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
