// Package session implements durable session and conversation-turn
// persistence (spec §3, §4 Session Store) plus the cascading deletion policy
// resolved in SPEC_FULL.md §9: deletion marks a session deleted, interrupts
// every descendant task via the agent.Scheduler, and only removes persisted
// state once all descendants have reached a terminal state.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cortexmesh/orchestrator/agent"
	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/faults"
)

type (
	// Status is the lifecycle state of a Session.
	Status string

	// Turn is one entry in a session's append-only conversation log (spec
	// §3 Conversation Turn).
	Turn struct {
		Role      string            `json:"role"`
		Text      string            `json:"text"`
		Timestamp time.Time         `json:"timestamp"`
		Sources   []eventbus.Source `json:"sources,omitempty"`
	}

	// Session is the durable conversational container tasks and turns
	// belong to.
	Session struct {
		ID        string     `json:"id"`
		Status    Status     `json:"status"`
		CreatedAt time.Time  `json:"created_at"`
		EndedAt   *time.Time `json:"ended_at,omitempty"`
		DeletedAt *time.Time `json:"deleted_at,omitempty"`
	}

	// Store persists sessions and their conversation turns. Implementations
	// must be safe for concurrent use.
	Store interface {
		// CreateSession creates (or returns) an active session. Idempotent
		// for active sessions; returns ErrSessionEnded or ErrSessionDeleted
		// when the session exists but is terminal.
		CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (Session, error)
		// LoadSession loads an existing session. Returns ErrSessionNotFound
		// when the session does not exist.
		LoadSession(ctx context.Context, sessionID string) (Session, error)
		// EndSession ends a session and returns its terminal state.
		// Idempotent.
		EndSession(ctx context.Context, sessionID string, endedAt time.Time) (Session, error)

		// AppendTurn appends a conversation turn to the session's log.
		// Recorder adapts it to manager.SessionRecorder. Timestamps must
		// be monotonic within a session; callers that violate this receive
		// a bad_input Fault.
		AppendTurn(ctx context.Context, sessionID string, turn Turn) error
		// LoadTurns returns the session's conversation log in append order.
		LoadTurns(ctx context.Context, sessionID string) ([]Turn, error)

		// MarkDeleted transitions a session into the deleted state without
		// erasing it, the first step of the cascade.
		MarkDeleted(ctx context.Context, sessionID string, deletedAt time.Time) (Session, error)
		// Purge erases a session and its turns. Callers must only invoke
		// Purge once every descendant task has reached a terminal state.
		Purge(ctx context.Context, sessionID string) error
	}
)

const (
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
	StatusDeleted Status = "deleted"
)

var (
	// ErrSessionNotFound indicates a session does not exist in the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded indicates a session exists but is ended.
	ErrSessionEnded = errors.New("session ended")
	// ErrSessionDeleted indicates a session exists but is deleted.
	ErrSessionDeleted = errors.New("session deleted")
)

// NewID mints a caller-facing session identifier.
func NewID() string {
	return uuid.NewString()
}

// Canceler interrupts in-flight tasks belonging to a session. agent.Scheduler
// satisfies this structurally.
type Canceler interface {
	Snapshot() []agent.Task
	Interrupt(taskID string) error
}

// Delete runs the full cascading-deletion policy against store for
// sessionID: mark the session deleted, interrupt every non-terminal
// descendant task, wait for all descendants to reach a terminal state (or
// ctx to expire), then purge the session's persisted state. It is safe to
// call concurrently with in-flight tasks for the session.
func Delete(ctx context.Context, store Store, scheduler Canceler, sessionID string) error {
	if sessionID == "" {
		return faults.New(faults.KindBadInput, "session: id is required")
	}
	if _, err := store.MarkDeleted(ctx, sessionID, time.Now().UTC()); err != nil {
		return err
	}

	for _, task := range scheduler.Snapshot() {
		if task.SessionID != sessionID || task.Terminal() {
			continue
		}
		if err := scheduler.Interrupt(task.ID); err != nil {
			if f, ok := faults.As(err); ok && f.Kind() == faults.KindNotFound {
				continue
			}
			return faults.Wrap(faults.KindInternal, "session: interrupt descendant task", err)
		}
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if allTerminal(scheduler, sessionID) {
			break
		}
		select {
		case <-ctx.Done():
			return faults.Wrap(faults.KindTimeout, "session: timed out waiting for descendant tasks to stop", ctx.Err())
		case <-ticker.C:
		}
	}

	return store.Purge(ctx, sessionID)
}

func allTerminal(scheduler Canceler, sessionID string) bool {
	for _, task := range scheduler.Snapshot() {
		if task.SessionID == sessionID && !task.Terminal() {
			return false
		}
	}
	return true
}
