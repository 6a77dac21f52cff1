// Package inmem provides an in-memory session.Store for tests and local
// development.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/session"
)

// Store is an in-memory implementation of session.Store. It is safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]session.Session
	turns    map[string][]session.Turn
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]session.Session),
		turns:    make(map[string][]session.Turn),
	}
}

func (s *Store) CreateSession(_ context.Context, sessionID string, createdAt time.Time) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, faults.New(faults.KindBadInput, "session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[sessionID]; ok {
		switch existing.Status {
		case session.StatusEnded:
			return session.Session{}, session.ErrSessionEnded
		case session.StatusDeleted:
			return session.Session{}, session.ErrSessionDeleted
		}
		return clone(existing), nil
	}
	out := session.Session{ID: sessionID, Status: session.StatusActive, CreatedAt: createdAt.UTC()}
	s.sessions[sessionID] = out
	return clone(out), nil
}

func (s *Store) LoadSession(_ context.Context, sessionID string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	return clone(existing), nil
}

func (s *Store) EndSession(_ context.Context, sessionID string, endedAt time.Time) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	if existing.Status == session.StatusEnded {
		return clone(existing), nil
	}
	at := endedAt.UTC()
	existing.Status = session.StatusEnded
	existing.EndedAt = &at
	s.sessions[sessionID] = existing
	return clone(existing), nil
}

func (s *Store) AppendTurn(_ context.Context, sessionID string, turn session.Turn) error {
	if sessionID == "" {
		return faults.New(faults.KindBadInput, "session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.turns[sessionID]; len(existing) > 0 {
		last := existing[len(existing)-1]
		if turn.Timestamp.Before(last.Timestamp) {
			return faults.New(faults.KindBadInput, "session: turn timestamp is not monotonic")
		}
	}
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return nil
}

func (s *Store) LoadTurns(_ context.Context, sessionID string) ([]session.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing := s.turns[sessionID]
	out := make([]session.Turn, len(existing))
	copy(out, existing)
	return out, nil
}

func (s *Store) MarkDeleted(_ context.Context, sessionID string, deletedAt time.Time) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	if existing.Status == session.StatusDeleted {
		return clone(existing), nil
	}
	at := deletedAt.UTC()
	existing.Status = session.StatusDeleted
	existing.DeletedAt = &at
	s.sessions[sessionID] = existing
	return clone(existing), nil
}

func (s *Store) Purge(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.turns, sessionID)
	return nil
}

func clone(in session.Session) session.Session {
	out := in
	if in.EndedAt != nil {
		at := *in.EndedAt
		out.EndedAt = &at
	}
	if in.DeletedAt != nil {
		at := *in.DeletedAt
		out.DeletedAt = &at
	}
	return out
}
