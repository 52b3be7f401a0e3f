package state

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
)

// MemoryStore keeps deliberation sessions in process memory for the
// lifetime of the process. Sessions are never evicted.
//
// All mutation goes through Update, which holds the write lock for the whole
// callback, so a concurrent Get sees either the state before or after a
// mutation and never a half-applied one.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*core.Session
	order    []core.SessionID
	now      func() time.Time
	newID    func() string
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// WithIDGenerator overrides the session id generator.
func WithIDGenerator(gen func() string) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.newID = gen
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[core.SessionID]*core.Session),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create allocates a pending session and stores it.
func (s *MemoryStore) Create(_ context.Context, query string, agents []core.Agent, opts core.CreateSessionOptions) (*core.Session, error) {
	protocol := opts.Protocol
	if protocol == "" {
		protocol = core.ProtocolPairwise
	}

	now := s.now()
	sess := &core.Session{
		Query:            query,
		Stage:            core.StagePending,
		Protocol:         protocol,
		SynthesizerModel: opts.SynthesizerModel,
		CreatedAt:        now,
		UpdatedAt:        now,
		Agents:           append([]core.Agent(nil), agents...),
		Opinions:         []core.Opinion{},
		Reviews:          []core.Review{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := core.SessionID(s.newID())
	for _, exists := s.sessions[id]; exists; _, exists = s.sessions[id] {
		id = core.SessionID(s.newID())
	}
	sess.ID = id

	s.sessions[id] = sess
	s.order = append(s.order, id)
	return sess.Clone(), nil
}

// Get returns a snapshot of the session.
func (s *MemoryStore) Get(_ context.Context, id core.SessionID) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound(string(id))
	}
	return sess.Clone(), nil
}

// Update applies fn to the stored session under the write lock and returns
// a snapshot of the result. fn works on a copy; if it returns an error the
// stored session is left unchanged.
func (s *MemoryStore) Update(_ context.Context, id core.SessionID, fn func(*core.Session) error) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound(string(id))
	}

	working := sess.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = id
	s.sessions[id] = working
	return working.Clone(), nil
}

// List returns snapshots of every session in creation order.
func (s *MemoryStore) List(_ context.Context) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].Clone())
	}
	return out, nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var _ core.SessionStore = (*MemoryStore)(nil)
