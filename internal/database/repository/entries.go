package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

const entryColumns = `id, amount_cents, entry_type, entry_date, description, budget_id, transaction_id,
 external_reference, created_at, updated_at`

// EntryFilters are AND-combined. Zero values disable a filter.
type EntryFilters struct {
	DateFrom      *time.Time
	DateTo        *time.Time // inclusive
	BudgetID      string
	EntryType     EntryType
	UnmatchedOnly bool
	Page          int
	PerPage       int
}

// EntryPage is one page of a filtered listing.
type EntryPage struct {
	Entries []FinancialEntry
	Total   int
	Pages   int
	Page    int
	PerPage int
}

// Totals sums cost and income independently; Balance = TotalIncome - TotalCost.
type Totals struct {
	TotalCost   decimal.Decimal
	TotalIncome decimal.Decimal
	Balance     decimal.Decimal
}

// EntryRepo handles financial entries.
type EntryRepo struct {
	db *sql.DB
}

func NewEntryRepo(db *sql.DB) *EntryRepo { return &EntryRepo{db: db} }

// NormalizeDate truncates t to midnight UTC of its calendar day.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (r *EntryRepo) Create(ctx context.Context, e FinancialEntry) error {
	ts := now()
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO financial_entries(`+entryColumns+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, toCents(e.Amount), e.EntryType, NormalizeDate(e.EntryDate), e.Description,
		nullableString(e.BudgetID), nullableString(e.TransactionID), nullableString(e.ExternalReference), ts, ts)
	return mapUnique(err, ErrDuplicateReference)
}

// CreateWithExternalReference inserts e unless its external reference is
// already present. The check and the insert are one statement, so concurrent
// imports of the same row produce exactly one entry.
func (r *EntryRepo) CreateWithExternalReference(ctx context.Context, e FinancialEntry) error {
	if e.ExternalReference == nil || strings.TrimSpace(*e.ExternalReference) == "" {
		return fmt.Errorf("external reference required")
	}
	ts := now()
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO financial_entries(`+entryColumns+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(external_reference) DO NOTHING
	`, e.ID, toCents(e.Amount), e.EntryType, NormalizeDate(e.EntryDate), e.Description,
		nullableString(e.BudgetID), nullableString(e.TransactionID), *e.ExternalReference, ts, ts)
	if err != nil {
		return mapUnique(err, ErrDuplicateReference)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", *e.ExternalReference, ErrDuplicateReference)
	}
	return nil
}

// Update rewrites the editable fields of an entry. The transaction link is
// only changed through MatchTransaction and UnmatchTransaction.
func (r *EntryRepo) Update(ctx context.Context, e FinancialEntry) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE financial_entries
	SET amount_cents = ?, entry_type = ?, entry_date = ?, description = ?, budget_id = ?,
	 external_reference = ?, updated_at = ?
	WHERE id = ?
	`, toCents(e.Amount), e.EntryType, NormalizeDate(e.EntryDate), e.Description,
		nullableString(e.BudgetID), nullableString(e.ExternalReference), now(), e.ID)
	if err != nil {
		return mapUnique(err, ErrDuplicateReference)
	}
	return requireOneRow(res)
}

func (r *EntryRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM financial_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *EntryRepo) Get(ctx context.Context, id string) (*FinancialEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM financial_entries WHERE id = ?`, id)
	return scanOptionalEntry(row)
}

// ByTransaction returns the entry matched to transactionID, if any.
func (r *EntryRepo) ByTransaction(ctx context.Context, transactionID string) (*FinancialEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM financial_entries WHERE transaction_id = ? LIMIT 1`, transactionID)
	return scanOptionalEntry(row)
}

// MatchTransaction links an entry to a transaction unless a different entry
// already holds that link. Re-matching the same pair is a no-op.
func (r *EntryRepo) MatchTransaction(ctx context.Context, entryID, transactionID string) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE financial_entries SET transaction_id = ?, updated_at = ?
	WHERE id = ?
	AND NOT EXISTS (SELECT 1 FROM financial_entries WHERE transaction_id = ? AND id <> ?)
	`, transactionID, now(), entryID, transactionID, entryID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	e, err := r.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if e == nil {
		return ErrNotFound
	}
	return ErrAlreadyMatched
}

func (r *EntryRepo) UnmatchTransaction(ctx context.Context, entryID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE financial_entries SET transaction_id = NULL, updated_at = ? WHERE id = ?`, now(), entryID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// List returns one page of entries, newest entry date first.
func (r *EntryRepo) List(ctx context.Context, f EntryFilters) (EntryPage, error) {
	page, perPage := normalizePaging(f.Page, f.PerPage)
	where, args := entryWhere(f, true)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM financial_entries`+where, args...).Scan(&total); err != nil {
		return EntryPage{}, fmt.Errorf("count entries: %w", err)
	}

	query := `SELECT ` + entryColumns + ` FROM financial_entries` + where +
		` ORDER BY entry_date DESC, created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return EntryPage{}, err
	}
	defer rows.Close()
	out := EntryPage{Total: total, Page: page, PerPage: perPage}
	if total > 0 {
		out.Pages = (total + perPage - 1) / perPage
	}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return EntryPage{}, err
		}
		out.Entries = append(out.Entries, e)
	}
	return out, rows.Err()
}

// Totals aggregates cost and income under f. EntryType, Page and PerPage are
// ignored.
func (r *EntryRepo) Totals(ctx context.Context, f EntryFilters) (Totals, error) {
	where, args := entryWhere(f, false)
	var cost, income int64
	if err := r.db.QueryRowContext(ctx, `
	SELECT
	 COALESCE(SUM(CASE WHEN entry_type = 'cost' THEN amount_cents ELSE 0 END), 0),
	 COALESCE(SUM(CASE WHEN entry_type = 'income' THEN amount_cents ELSE 0 END), 0)
	FROM financial_entries`+where, args...).Scan(&cost, &income); err != nil {
		return Totals{}, fmt.Errorf("sum entries: %w", err)
	}
	t := Totals{TotalCost: fromCents(cost), TotalIncome: fromCents(income)}
	t.Balance = t.TotalIncome.Sub(t.TotalCost)
	return t, nil
}

func entryWhere(f EntryFilters, withType bool) (string, []any) {
	var where []string
	var args []any
	if f.DateFrom != nil {
		where = append(where, "entry_date >= ?")
		args = append(args, NormalizeDate(*f.DateFrom))
	}
	if f.DateTo != nil {
		where = append(where, "entry_date < ?")
		args = append(args, NormalizeDate(*f.DateTo).AddDate(0, 0, 1))
	}
	if f.BudgetID != "" {
		where = append(where, "budget_id = ?")
		args = append(args, f.BudgetID)
	}
	if withType && f.EntryType != "" {
		where = append(where, "entry_type = ?")
		args = append(args, f.EntryType)
	}
	if f.UnmatchedOnly {
		where = append(where, "transaction_id IS NULL")
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func normalizePaging(page, perPage int) (int, int) {
	if page <= 0 {
		page = 1
	}
	switch {
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	case perPage <= 0:
		perPage = DefaultPerPage
	}
	return page, perPage
}

func scanOptionalEntry(row scanner) (*FinancialEntry, error) {
	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func scanEntry(row scanner) (FinancialEntry, error) {
	var e FinancialEntry
	var amount int64
	var budget, txID, ref sql.NullString
	if err := row.Scan(&e.ID, &amount, &e.EntryType, &e.EntryDate, &e.Description,
		&budget, &txID, &ref, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return FinancialEntry{}, err
	}
	e.Amount = fromCents(amount)
	e.EntryDate = e.EntryDate.UTC()
	e.BudgetID = stringPtr(budget)
	e.TransactionID = stringPtr(txID)
	e.ExternalReference = stringPtr(ref)
	return e, nil
}

// mapUnique turns a unique constraint violation into target.
func mapUnique(err, target error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %v", target, err)
	}
	return err
}
