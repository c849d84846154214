package api

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/service"
)

const defaultSuggestionLimit = 5

func (s *Server) handleListEntries(c *gin.Context) {
	f, err := s.entryFilters(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	f.Page, f.PerPage = pageParams(c)
	page, err := s.deps.Ledger.ListEntries(c.Request.Context(), f)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entryPageResponse(page, s.budgetNames(c.Request.Context())))
}

func (s *Server) handleTotals(c *gin.Context) {
	f, err := s.entryFilters(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	f.EntryType = ""
	t, err := s.deps.Ledger.Totals(c.Request.Context(), f)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, totalsJSON{
		TotalCost:   money(t.TotalCost),
		TotalIncome: money(t.TotalIncome),
		Balance:     money(t.Balance),
	})
}

func (s *Server) handleCreateEntry(c *gin.Context) {
	e, err := s.bindEntry(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	var created repository.FinancialEntry
	if e.ExternalReference != nil && strings.TrimSpace(*e.ExternalReference) != "" {
		created, err = s.deps.Ledger.CreateWithExternalReference(c.Request.Context(), e)
	} else {
		created, err = s.deps.Ledger.CreateEntry(c.Request.Context(), e)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toEntryJSON(created, s.budgetNames(c.Request.Context())))
}

func (s *Server) handleGetEntry(c *gin.Context) {
	e, err := s.deps.Ledger.GetEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEntryJSON(e, s.budgetNames(c.Request.Context())))
}

func (s *Server) handleUpdateEntry(c *gin.Context) {
	e, err := s.bindEntry(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	e.ID = c.Param("id")
	updated, err := s.deps.Ledger.UpdateEntry(c.Request.Context(), e)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEntryJSON(updated, s.budgetNames(c.Request.Context())))
}

func (s *Server) handleDeleteEntry(c *gin.Context) {
	if err := s.deps.Ledger.DeleteEntry(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMatchEntry(c *gin.Context) {
	var req struct {
		TransactionID string `json:"transactionId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.TransactionID) == "" {
		s.writeError(c, fmt.Errorf("%w: transactionId is required", errBadRequest))
		return
	}
	e, err := s.deps.Ledger.MatchTransaction(c.Request.Context(), c.Param("id"), req.TransactionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEntryJSON(e, s.budgetNames(c.Request.Context())))
}

func (s *Server) handleUnmatchEntry(c *gin.Context) {
	e, err := s.deps.Ledger.UnmatchTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEntryJSON(e, s.budgetNames(c.Request.Context())))
}

func (s *Server) handleSuggestMatches(c *gin.Context) {
	limit := defaultSuggestionLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(c, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = n
	}
	ms, err := s.deps.Ledger.SuggestMatches(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]suggestionJSON, 0, len(ms))
	for _, m := range ms {
		out = append(out, toSuggestionJSON(m))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) handleImportEntries(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		s.writeError(c, fmt.Errorf("%w: multipart field \"file\" is required", errBadRequest))
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer f.Close()

	var res service.IngestResult
	if strings.EqualFold(filepath.Ext(fh.Filename), ".xlsx") {
		res, err = s.deps.Imports.ImportXLSX(c.Request.Context(), f, s.deps.Location)
	} else {
		res, err = s.deps.Imports.ImportCSV(c.Request.Context(), f, s.deps.Location)
	}
	if err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	errs := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, e.Error())
	}
	s.log.Info("entries imported", "file", fh.Filename, "imported", res.Imported, "skipped", res.Skipped, "errors", len(errs))
	c.JSON(http.StatusOK, gin.H{"imported": res.Imported, "skipped": res.Skipped, "errors": errs})
}

func (s *Server) handleExportEntries(c *gin.Context) {
	f, err := s.entryFilters(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	name := fmt.Sprintf("entries_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename="+name)
	if _, err := s.deps.Imports.ExportXLSX(c.Request.Context(), c.Writer, f); err != nil {
		s.log.Error("export failed", "err", err)
		if !c.Writer.Written() {
			s.writeError(c, err)
		}
	}
}

// entryFilters reads dateFrom, dateTo, budgetId, entryType and unmatched.
func (s *Server) entryFilters(c *gin.Context) (repository.EntryFilters, error) {
	var f repository.EntryFilters
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"dateFrom", &f.DateFrom}, {"dateTo", &f.DateTo}} {
		v := c.Query(p.key)
		if v == "" {
			continue
		}
		t, err := time.ParseInLocation(time.DateOnly, v, s.deps.Location)
		if err != nil {
			return f, fmt.Errorf("%w: %s must be YYYY-MM-DD", errBadRequest, p.key)
		}
		*p.dst = &t
	}
	f.BudgetID = strings.TrimSpace(c.Query("budgetId"))
	f.EntryType = repository.EntryType(strings.ToLower(strings.TrimSpace(c.Query("entryType"))))
	if v := c.Query("unmatched"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("%w: unmatched must be true or false", errBadRequest)
		}
		f.UnmatchedOnly = b
	}
	return f, nil
}

func (s *Server) bindEntry(c *gin.Context) (repository.FinancialEntry, error) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return repository.FinancialEntry{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	e := repository.FinancialEntry{
		Amount:            req.Amount,
		EntryType:         repository.EntryType(strings.ToLower(strings.TrimSpace(req.EntryType))),
		Description:       req.Description,
		BudgetID:          req.BudgetID,
		ExternalReference: req.ExternalReference,
	}
	if req.EntryDate != "" {
		d, err := time.ParseInLocation(time.DateOnly, req.EntryDate, s.deps.Location)
		if err != nil {
			return repository.FinancialEntry{}, fmt.Errorf("%w: entryDate must be YYYY-MM-DD", service.ErrInvalidEntry)
		}
		e.EntryDate = d
	}
	return e, nil
}

// budgetNames maps budget ids to names for display. Lookup failures only
// cost the names.
func (s *Server) budgetNames(ctx context.Context) map[string]string {
	bs, err := s.deps.Ledger.ListBudgets(ctx)
	if err != nil {
		s.log.Warn("list budgets for names", "err", err)
		return nil
	}
	out := make(map[string]string, len(bs))
	for _, b := range bs {
		out[b.ID] = b.Name
	}
	return out
}
