package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jask/payledger/internal/database/repository"
)

type budgetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleListBudgets(c *gin.Context) {
	bs, err := s.deps.Ledger.ListBudgets(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]budgetJSON, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBudgetJSON(b))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) handleCreateBudget(c *gin.Context) {
	var req budgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	b, err := s.deps.Ledger.CreateBudget(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBudgetJSON(b))
}

func (s *Server) handleGetBudget(c *gin.Context) {
	b, err := s.deps.Ledger.GetBudget(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBudgetJSON(b))
}

func (s *Server) handleUpdateBudget(c *gin.Context) {
	var req budgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	b, err := s.deps.Ledger.UpdateBudget(c.Request.Context(), repository.Budget{
		ID:          c.Param("id"),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBudgetJSON(b))
}

// handleDeleteBudget detaches the budget's entries before removing it.
func (s *Server) handleDeleteBudget(c *gin.Context) {
	n, err := s.deps.Ledger.DeleteBudget(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detachedEntries": n})
}
