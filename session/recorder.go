package session

import (
	"context"

	"github.com/cortexmesh/orchestrator/manager"
)

// Recorder adapts a Store to manager.SessionRecorder, translating between
// manager.ConversationTurn and the store's own Turn type.
type Recorder struct {
	store Store
}

// NewRecorder wraps store as a manager.SessionRecorder.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// AppendTurn implements manager.SessionRecorder.
func (r *Recorder) AppendTurn(ctx context.Context, sessionID string, turn manager.ConversationTurn) error {
	return r.store.AppendTurn(ctx, sessionID, Turn{
		Role:      turn.Role,
		Text:      turn.Text,
		Timestamp: turn.Timestamp,
		Sources:   turn.Sources,
	})
}
