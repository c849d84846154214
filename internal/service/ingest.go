package service

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/jask/payledger/internal/database/repository"
)

// ImportService loads financial entries from CSV and XLSX exports.
type ImportService struct {
	Entries *repository.EntryRepo
	Budgets *repository.BudgetRepo
}

type IngestResult struct {
	Imported int
	Skipped  int
	Errors   []error
}

// Import columns: date, type, amount, description, budget, external_reference.
// budget and external_reference may be empty or absent.
// entryRefPrefix marks an exported reference that names the entry itself,
// for entries recorded by hand without an external reference.
const entryRefPrefix = "entry:"

var importColumns = []string{"date", "type", "amount", "description", "budget", "external_reference"}

// ImportCSV reads entries from r. An optional header row is skipped.
func (s *ImportService) ImportCSV(ctx context.Context, r io.Reader, tz *time.Location) (IngestResult, error) {
	res := IngestResult{}
	budgets := map[string]string{}
	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1
	line := 0
	for {
		line++
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s.importRow(ctx, &res, budgets, line, rec, tz)
	}
	return res, nil
}

// ImportXLSX reads entries from the first sheet of a workbook.
func (s *ImportService) ImportXLSX(ctx context.Context, r io.Reader, tz *time.Location) (IngestResult, error) {
	res := IngestResult{}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return res, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return res, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return res, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	budgets := map[string]string{}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if isBlank(row) {
			continue
		}
		s.importRow(ctx, &res, budgets, i+1, row, tz)
	}
	return res, nil
}

// ExportXLSX writes the entries selected by f, all pages, as a workbook in
// the import layout so the file can be re-imported without duplicates.
func (s *ImportService) ExportXLSX(ctx context.Context, w io.Writer, f repository.EntryFilters) (int, error) {
	budgets, err := s.Budgets.List(ctx)
	if err != nil {
		return 0, err
	}
	names := make(map[string]string, len(budgets))
	for _, b := range budgets {
		names[b.ID] = b.Name
	}

	x := excelize.NewFile()
	defer x.Close()
	sheet := x.GetSheetName(0)
	for i, h := range importColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := x.SetCellValue(sheet, cell, h); err != nil {
			return 0, err
		}
	}

	row := 2
	f.PerPage = repository.MaxPerPage
	for f.Page = 1; ; f.Page++ {
		page, err := s.Entries.List(ctx, f)
		if err != nil {
			return 0, err
		}
		for _, e := range page.Entries {
			ref := entryRefPrefix + e.ID
			if e.ExternalReference != nil {
				ref = *e.ExternalReference
			}
			budget := ""
			if e.BudgetID != nil {
				budget = names[*e.BudgetID]
			}
			values := []any{e.EntryDate.Format(time.DateOnly), string(e.EntryType), e.Amount.StringFixed(2), e.Description, budget, ref}
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := x.SetSheetRow(sheet, cell, &values); err != nil {
				return 0, err
			}
			row++
		}
		if page.Page >= page.Pages {
			break
		}
	}
	if err := x.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return row - 2, nil
}

// importRow stores one record. budgets caches budget ids by lower-cased name
// for the duration of one import.
func (s *ImportService) importRow(ctx context.Context, res *IngestResult, budgets map[string]string, line int, rec []string, tz *time.Location) {
	if line == 1 && isHeader(rec) {
		return
	}
	if len(rec) < 4 { // date, type, amount, description
		res.Errors = append(res.Errors, fmt.Errorf("line %d: expected at least 4 columns", line))
		return
	}
	date, err := parseLocalDate(rec[0], tz)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("line %d date: %w", line, err))
		return
	}
	kind := repository.EntryType(strings.ToLower(strings.TrimSpace(rec[1])))
	if !kind.Valid() {
		res.Errors = append(res.Errors, fmt.Errorf("line %d type: %q is not cost or income", line, rec[1]))
		return
	}
	amount, err := parseAmount(rec[2])
	if err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("line %d amount: %w", line, err))
		return
	}
	desc := strings.TrimSpace(rec[3])

	var budgetID *string
	if name := column(rec, 4); name != "" {
		id, err := s.budgetForName(ctx, budgets, name)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d budget: %w", line, err))
			return
		}
		budgetID = &id
	}
	ref := column(rec, 5)
	if ref == "" {
		ref = hashSource(date.Format(time.DateOnly), string(kind), amount.StringFixed(2), desc)
	}
	if id, ok := strings.CutPrefix(ref, entryRefPrefix); ok {
		existing, err := s.Entries.Get(ctx, id)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d lookup: %w", line, err))
			return
		}
		if existing != nil {
			res.Skipped++
			return
		}
	}

	e := repository.FinancialEntry{
		ID:                uuid.NewString(),
		Amount:            amount,
		EntryType:         kind,
		EntryDate:         date,
		Description:       desc,
		BudgetID:          budgetID,
		ExternalReference: &ref,
	}
	if err := s.Entries.CreateWithExternalReference(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicateReference) {
			res.Skipped++
			return
		}
		res.Errors = append(res.Errors, fmt.Errorf("line %d insert: %w", line, err))
		return
	}
	res.Imported++
}

func (s *ImportService) budgetForName(ctx context.Context, cache map[string]string, name string) (string, error) {
	key := strings.ToLower(name)
	if id, ok := cache[key]; ok {
		return id, nil
	}
	b, err := s.Budgets.ByName(ctx, name)
	if err != nil {
		return "", err
	}
	if b == nil {
		b = &repository.Budget{ID: uuid.NewString(), Name: name}
		if err := s.Budgets.Create(ctx, *b); err != nil {
			return "", err
		}
	}
	cache[key] = b.ID
	return b.ID, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.New("must be greater than zero")
	}
	return d.Round(2), nil
}

func column(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(rec[0], "\ufeff")), "date")
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// hashSource is the reference given to imported rows that carry none, so
// that importing the same file twice is a no-op.
func hashSource(parts ...string) string {
	joined := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("sha256:%x", sum[:])
}

// parseLocalDate reads YYYY-MM-DD as a calendar day in loc.
func parseLocalDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
