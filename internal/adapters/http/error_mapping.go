package httpadapter

import (
	"net/http"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
	"github.com/mkarpenko/grounded-chat/internal/infrastructure/resilience"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnknownModel):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrBudgetExhausted):
		return http.StatusBadRequest
	case resilience.IsCircuitOpen(err):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrCollaborator):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
