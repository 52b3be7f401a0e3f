package state

import (
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

// BackendMemory is the only supported session backend.
const BackendMemory = "memory"

// NewSessionStore creates a SessionStore for the given backend name.
// An empty name selects the in-memory backend.
func NewSessionStore(backend string, opts ...MemoryStoreOption) (core.SessionStore, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendMemory:
		return NewMemoryStore(opts...), nil
	default:
		return nil, core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("unsupported session backend %q", backend))
	}
}
