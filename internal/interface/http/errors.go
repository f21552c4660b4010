package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/bloodlink/donor-hub/internal/domain/shared"
	"github.com/bloodlink/donor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERROR MAPPING
// Порядок важен: NotEligibleError проверяется до общих категорий.
// ══════════════════════════════════════════════════════════════════════════════

type errorMapping struct {
	kind   error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{shared.ErrDonorNotEligible, http.StatusConflict, "donor_not_eligible"},
	{shared.ErrDuplicatePending, http.StatusConflict, "duplicate_pending"},
	{shared.ErrSelfRequest, http.StatusBadRequest, "self_request"},
	{shared.ErrInvalidRating, http.StatusBadRequest, "invalid_rating"},
	{shared.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{shared.ErrNotFound, http.StatusNotFound, "not_found"},
	{shared.ErrUnauthorized, http.StatusForbidden, "forbidden"},
	{shared.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{shared.ErrConflict, http.StatusConflict, "invalid_transition"},
}

// classify returns the HTTP status and error code for err.
// Unknown errors map to 500.
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			return m.status, m.code
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "cancelled"
	}
	return http.StatusInternalServerError, "internal_server_error"
}

// handleDomainError writes err using the domain-to-HTTP mapping. Domain
// messages are safe to expose; anything unclassified is logged and hidden.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	apiErr := &APIError{Code: code, Message: publicMessage(err)}
	if days, ok := shared.DaysUntilEligible(err); ok {
		apiErr.DaysUntilEligible = &days
	}

	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", logger.Err(err))
		apiErr.Message = "An unexpected error occurred"
	}
	s.writeError(w, r, status, apiErr)
}

func publicMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}
