package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/lineitems"
	"github.com/jask/payledger/internal/service"
)

type createTransactionRequest struct {
	LineItems   json.RawMessage   `json:"lineItems"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
	RedirectURL string            `json:"redirectUrl"`
	WebhookURL  string            `json:"webhookUrl"`
}

type initiatePaymentRequest struct {
	RedirectURL string `json:"redirectUrl"`
	WebhookURL  string `json:"webhookUrl"`
}

// handleWebhook accepts gateway notifications. The body only names a payment;
// the reply is 200 for everything except an unknown payment id.
func (s *Server) handleWebhook(c *gin.Context) {
	id := c.PostForm("id")
	if id == "" {
		id = c.Query("id")
	}
	ack := s.deps.Webhooks.HandleNotification(c.Request.Context(), id)
	if !ack.Found {
		c.JSON(http.StatusNotFound, gin.H{"error": ack.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": ack.Status, "message": ack.Message})
}

func (s *Server) handleCreateTransaction(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	items, err := lineitems.Parse(req.LineItems)
	if err != nil {
		s.writeError(c, err)
		return
	}
	id, err := s.deps.Payments.CreateTransaction(c.Request.Context(), items, service.CreateArgs{
		Currency:    req.Currency,
		Description: req.Description,
		Metadata:    req.Metadata,
		RedirectURL: req.RedirectURL,
		WebhookURL:  req.WebhookURL,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	tx, lis, err := s.deps.Payments.GetTransaction(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTransactionJSON(*tx, lis))
}

func (s *Server) handleListTransactions(c *gin.Context) {
	f := repository.TransactionFilters{Status: repository.Status(strings.TrimSpace(c.Query("status")))}
	if f.Status != "" && !f.Status.Valid() {
		s.writeError(c, fmt.Errorf("%w: unknown status %q", errBadRequest, f.Status))
		return
	}
	if v := c.Query("testmode"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(c, fmt.Errorf("%w: testmode must be true or false", errBadRequest))
			return
		}
		f.Testmode = &b
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(c, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
		f.Limit = n
	}
	txs, err := s.deps.Payments.ListTransactions(c.Request.Context(), f)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionJSON(t, nil))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) handleGetTransaction(c *gin.Context) {
	tx, items, err := s.deps.Payments.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTransactionJSON(*tx, items))
}

func (s *Server) handleInitiatePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}
	res, err := s.deps.Payments.InitiatePayment(c.Request.Context(), c.Param("id"), service.InitiateArgs{
		RedirectURL: req.RedirectURL,
		WebhookURL:  req.WebhookURL,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"transactionId":    res.TransactionID,
		"gatewayPaymentId": res.GatewayPaymentID,
		"checkoutUrl":      res.CheckoutURL,
		"status":           res.Status,
	})
}
