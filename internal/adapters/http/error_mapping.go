package httpadapter

import (
	"net/http"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrRunInProgress):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrConnection), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
