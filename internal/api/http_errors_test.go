package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

func TestHttpStatusForDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantOK     bool
	}{
		{"validation", core.ErrValidation(core.CodeEmptyQuery, "bad"), http.StatusUnprocessableEntity, true},
		{"not found", core.ErrNotFound("session", "x"), http.StatusNotFound, true},
		{"state", core.ErrState(core.CodeInvalidTransition, "no"), http.StatusConflict, true},
		{"timeout", core.ErrTimeout("timed out"), http.StatusGatewayTimeout, true},
		{"network", core.ErrNetwork("refused"), http.StatusBadGateway, true},
		{"execution (default)", core.ErrExecution(core.CodeStageFailed, "boom"), http.StatusInternalServerError, true},
		{"backend status kept", core.NewGenerationError(core.ErrCatExecution, "model not found", 404, nil), http.StatusNotFound, true},
		{"wrapped", fmt.Errorf("ctx: %w", core.ErrNotFound("session", "y")), http.StatusNotFound, true},
		{"non-domain error", errors.New("plain"), 0, false},
		{"nil error", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok := httpStatusForDomainError(tt.err)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
		})
	}
}
