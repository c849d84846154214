package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jask/payledger/internal/database/repository"
	"github.com/jask/payledger/internal/lineitems"
	"github.com/jask/payledger/internal/service"
)

// errBadRequest marks malformed request input.
var errBadRequest = errors.New("bad request")

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, lineitems.ErrInvalidLineItems),
		errors.Is(err, service.ErrInvalidEntry),
		errors.Is(err, service.ErrInvalidBudget),
		errors.Is(err, service.ErrRedirectURLRequired):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrAlreadyInitiated),
		errors.Is(err, repository.ErrInvalidTransition),
		errors.Is(err, repository.ErrAlreadyMatched),
		errors.Is(err, repository.ErrDuplicateReference),
		errors.Is(err, repository.ErrDuplicateName),
		errors.Is(err, service.ErrInvalidStatus):
		return http.StatusConflict
	case errors.Is(err, service.ErrGatewayUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		if !errors.Is(err, service.ErrLocalUpdateFailed) {
			msg = "internal error"
		}
	}
	c.JSON(status, gin.H{"error": msg})
}
