package api

import (
	"errors"
	"net/http"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

// httpStatusForDomainError maps a DomainError to a status. A generation error
// carrying the backend's own status keeps it.
func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	if code := core.StatusCode(err); code >= 400 && code < 600 {
		return code, true
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatState:
		return http.StatusConflict, true
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout, true
	case core.ErrCatNetwork:
		return http.StatusBadGateway, true
	default:
		return http.StatusInternalServerError, true
	}
}
