package eventbus

import (
	"context"
	"fmt"
	"sync"
)

// MemSink is an in-memory append-only event log, one per session, used for
// tests and single-process deployments. It enforces the monotonic-timestamp
// invariant from spec §3: "events belonging to a session have strictly
// non-decreasing timestamps".
type MemSink struct {
	mu   sync.Mutex
	logs map[string][]Event
}

// NewMemSink constructs an empty MemSink.
func NewMemSink() *MemSink {
	return &MemSink{logs: make(map[string][]Event)}
}

// Persist appends event to its session's log.
func (m *MemSink) Persist(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.logs[event.SessionID]
	if n := len(log); n > 0 && event.Timestamp.Before(log[n-1].Timestamp) {
		return fmt.Errorf("eventbus: event %s timestamp precedes prior event in session %s", event.EventID, event.SessionID)
	}
	m.logs[event.SessionID] = append(log, event)
	return nil
}

// Events returns a copy of the persisted event log for sessionID.
func (m *MemSink) Events(sessionID string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.logs[sessionID]
	out := make([]Event, len(log))
	copy(out, log)
	return out
}

// Delete removes the persisted log for sessionID.
func (m *MemSink) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.logs, sessionID)
}
