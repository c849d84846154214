// Package api exposes transactions, the ledger and the gateway webhook over
// HTTP.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/lineitems"
	"github.com/jask/payledger/internal/service"
)

// Payments is the part of service.PaymentService the API uses.
type Payments interface {
	CreateTransaction(ctx context.Context, items []lineitems.Item, args service.CreateArgs) (string, error)
	InitiatePayment(ctx context.Context, id string, args service.InitiateArgs) (service.InitiateResult, error)
	GetTransaction(ctx context.Context, id string) (*repository.Transaction, []repository.LineItem, error)
	ListTransactions(ctx context.Context, f repository.TransactionFilters) ([]repository.Transaction, error)
}

// Webhooks is the part of service.WebhookReconciler the API uses.
type Webhooks interface {
	HandleNotification(ctx context.Context, gatewayPaymentID string) service.Ack
}

// Ledger is the part of service.LedgerService the API uses.
type Ledger interface {
	CreateEntry(ctx context.Context, e repository.FinancialEntry) (repository.FinancialEntry, error)
	CreateWithExternalReference(ctx context.Context, e repository.FinancialEntry) (repository.FinancialEntry, error)
	GetEntry(ctx context.Context, id string) (repository.FinancialEntry, error)
	UpdateEntry(ctx context.Context, e repository.FinancialEntry) (repository.FinancialEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	ListEntries(ctx context.Context, f repository.EntryFilters) (repository.EntryPage, error)
	Totals(ctx context.Context, f repository.EntryFilters) (repository.Totals, error)
	MatchTransaction(ctx context.Context, entryID, transactionID string) (repository.FinancialEntry, error)
	UnmatchTransaction(ctx context.Context, entryID string) (repository.FinancialEntry, error)
	SuggestMatches(ctx context.Context, entryID string, limit int) ([]service.MatchSuggestion, error)

	CreateBudget(ctx context.Context, name, description string) (repository.Budget, error)
	GetBudget(ctx context.Context, id string) (repository.Budget, error)
	ListBudgets(ctx context.Context) ([]repository.Budget, error)
	UpdateBudget(ctx context.Context, b repository.Budget) (repository.Budget, error)
	DeleteBudget(ctx context.Context, id string) (int64, error)
}

// Importer is the part of service.ImportService the API uses.
type Importer interface {
	ImportCSV(ctx context.Context, r io.Reader, tz *time.Location) (service.IngestResult, error)
	ImportXLSX(ctx context.Context, r io.Reader, tz *time.Location) (service.IngestResult, error)
	ExportXLSX(ctx context.Context, w io.Writer, f repository.EntryFilters) (int, error)
}

// Deps are the services behind the routes. Any may be nil in tests that do
// not exercise its routes.
type Deps struct {
	Payments Payments
	Webhooks Webhooks
	Ledger   Ledger
	Imports  Importer
	Logger   *slog.Logger
	// Location interprets dates in imports and query filters. Defaults to UTC.
	Location *time.Location
}

// Server is the payledger HTTP server.
type Server struct {
	deps   Deps
	log    *slog.Logger
	router *gin.Engine
}

// NewServer creates the router and registers every route.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	router := gin.New()
	s := &Server{deps: deps, log: deps.Logger, router: router}
	router.Use(gin.Recovery(), s.requestLogger())

	router.POST("/webhook", s.handleWebhook)
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := router.Group("/api")
	{
		api.POST("/transactions", s.handleCreateTransaction)
		api.GET("/transactions", s.handleListTransactions)
		api.GET("/transactions/:id", s.handleGetTransaction)
		api.POST("/transactions/:id/payment", s.handleInitiatePayment)

		api.GET("/entries", s.handleListEntries)
		api.GET("/entries/totals", s.handleTotals)
		api.GET("/entries/export", s.handleExportEntries)
		api.POST("/entries/import", s.handleImportEntries)
		api.POST("/entries", s.handleCreateEntry)
		api.GET("/entries/:id", s.handleGetEntry)
		api.PUT("/entries/:id", s.handleUpdateEntry)
		api.DELETE("/entries/:id", s.handleDeleteEntry)
		api.PUT("/entries/:id/match", s.handleMatchEntry)
		api.DELETE("/entries/:id/match", s.handleUnmatchEntry)
		api.GET("/entries/:id/suggestions", s.handleSuggestMatches)

		api.GET("/budgets", s.handleListBudgets)
		api.POST("/budgets", s.handleCreateBudget)
		api.GET("/budgets/:id", s.handleGetBudget)
		api.PUT("/budgets/:id", s.handleUpdateBudget)
		api.DELETE("/budgets/:id", s.handleDeleteBudget)
	}
	return s
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("http server listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
