package httpadapter

import (
	"net/http"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrInvalidRule):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDocumentNotFound),
		domain.IsKind(err, domain.ErrTemplateNotFound),
		domain.IsKind(err, domain.ErrFieldNotFound),
		domain.IsKind(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict), domain.IsKind(err, domain.ErrStaleRun):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrDocumentFileMissing):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrQueueUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrProcessingTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
