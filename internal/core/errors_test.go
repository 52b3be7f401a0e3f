package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := (&DomainError{
		Category: ErrCatValidation,
		Code:     "CODE",
		Message:  "message",
	}).WithCause(cause)

	if err.Unwrap() != cause {
		t.Fatalf("expected cause to be unwrapped")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match cause")
	}

	match := &DomainError{Category: ErrCatValidation, Code: "CODE"}
	if !errors.Is(err, match) {
		t.Fatalf("expected errors.Is to match category and code")
	}
	if errors.Is(err, &DomainError{Category: ErrCatValidation, Code: "OTHER"}) {
		t.Fatalf("different code must not match")
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := &DomainError{Category: ErrCatExecution, Code: "X", Message: "msg"}
	err.WithDetail("k", "v")
	if err.Details == nil || err.Details["k"] != "v" {
		t.Fatalf("expected details to be set")
	}
}

func TestErrorFactories(t *testing.T) {
	tests := []struct {
		err  *DomainError
		cat  ErrorCategory
		code string
	}{
		{ErrValidation(CodeEmptyQuery, "m"), ErrCatValidation, CodeEmptyQuery},
		{ErrExecution(CodeStageFailed, "m"), ErrCatExecution, CodeStageFailed},
		{ErrTimeout("m"), ErrCatTimeout, "TIMEOUT"},
		{ErrNetwork("m"), ErrCatNetwork, CodeBackendUnreachable},
		{ErrState(CodeInvalidTransition, "m"), ErrCatState, CodeInvalidTransition},
		{ErrNotFound("session", "abc"), ErrCatNotFound, "NOT_FOUND"},
		{ErrSessionNotFound("abc"), ErrCatNotFound, CodeSessionNotFound},
	}
	for _, tt := range tests {
		if tt.err.Category != tt.cat || tt.err.Code != tt.code {
			t.Errorf("got %s/%s, want %s/%s", tt.err.Category, tt.err.Code, tt.cat, tt.code)
		}
	}
	if got := ErrNotFound("session", "abc").Message; got != "session not found: abc" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestNewGenerationError(t *testing.T) {
	err := NewGenerationError(ErrCatExecution, "ollama error: model missing", 404, nil)
	if err.Code != CodeGenerationFailed {
		t.Fatalf("expected %s, got %s", CodeGenerationFailed, err.Code)
	}
	if StatusCode(err) != 404 {
		t.Fatalf("expected status 404, got %d", StatusCode(err))
	}

	wrapped := fmt.Errorf("agent_1: %w", err)
	if StatusCode(wrapped) != 404 {
		t.Fatalf("status should survive wrapping")
	}
	if !IsCategory(wrapped, ErrCatExecution) {
		t.Fatalf("category should survive wrapping")
	}

	netErr := NewGenerationError(ErrCatNetwork, "connection refused", 0, errors.New("dial"))
	if netErr.Code != CodeBackendUnreachable {
		t.Fatalf("expected %s, got %s", CodeBackendUnreachable, netErr.Code)
	}
	if StatusCode(netErr) != 0 {
		t.Fatalf("expected no status for network error")
	}

	var genErr *GenerationError
	if !errors.As(netErr, &genErr) || genErr.Cause == nil {
		t.Fatalf("expected GenerationError with cause")
	}
}

func TestGetCategory_PlainError(t *testing.T) {
	if GetCategory(errors.New("x")) != ErrCatInternal {
		t.Fatalf("plain errors are internal")
	}
	if StatusCode(errors.New("x")) != 0 {
		t.Fatalf("plain errors carry no status")
	}
}
