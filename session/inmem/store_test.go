package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmesh/orchestrator/session"
	"github.com/cortexmesh/orchestrator/session/inmem"
)

func TestCreateSessionIsIdempotentForActiveSessions(t *testing.T) {
	store := inmem.New()
	now := time.Now().UTC()

	first, err := store.CreateSession(context.Background(), "sess-1", now)
	require.NoError(t, err)
	second, err := store.CreateSession(context.Background(), "sess-1", now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCreateSessionRejectsEndedSession(t *testing.T) {
	store := inmem.New()
	now := time.Now().UTC()
	_, err := store.CreateSession(context.Background(), "sess-1", now)
	require.NoError(t, err)
	_, err = store.EndSession(context.Background(), "sess-1", now.Add(time.Minute))
	require.NoError(t, err)

	_, err = store.CreateSession(context.Background(), "sess-1", now)
	require.ErrorIs(t, err, session.ErrSessionEnded)
}

func TestAppendTurnRejectsNonMonotonicTimestamp(t *testing.T) {
	store := inmem.New()
	now := time.Now().UTC()
	require.NoError(t, store.AppendTurn(context.Background(), "sess-1", session.Turn{Role: "user", Text: "hi", Timestamp: now}))

	err := store.AppendTurn(context.Background(), "sess-1", session.Turn{Role: "assistant", Text: "hello", Timestamp: now.Add(-time.Second)})
	require.Error(t, err)
}

func TestLoadTurnsReturnsAppendOrder(t *testing.T) {
	store := inmem.New()
	now := time.Now().UTC()
	require.NoError(t, store.AppendTurn(context.Background(), "sess-1", session.Turn{Role: "user", Text: "first", Timestamp: now}))
	require.NoError(t, store.AppendTurn(context.Background(), "sess-1", session.Turn{Role: "assistant", Text: "second", Timestamp: now.Add(time.Second)}))

	turns, err := store.LoadTurns(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "first", turns[0].Text)
	require.Equal(t, "second", turns[1].Text)
}

func TestMarkDeletedThenPurgeRemovesSessionAndTurns(t *testing.T) {
	store := inmem.New()
	now := time.Now().UTC()
	_, err := store.CreateSession(context.Background(), "sess-1", now)
	require.NoError(t, err)
	require.NoError(t, store.AppendTurn(context.Background(), "sess-1", session.Turn{Role: "user", Text: "hi", Timestamp: now}))

	deleted, err := store.MarkDeleted(context.Background(), "sess-1", now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, session.StatusDeleted, deleted.Status)

	require.NoError(t, store.Purge(context.Background(), "sess-1"))
	_, err = store.LoadSession(context.Background(), "sess-1")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
	turns, err := store.LoadTurns(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Empty(t, turns)
}
