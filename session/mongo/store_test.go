package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmesh/orchestrator/session"
)

type stubClient struct {
	createSession func(ctx context.Context, id string, createdAt time.Time) (session.Session, error)
	loadSession   func(ctx context.Context, id string) (session.Session, error)
	endSession    func(ctx context.Context, id string, endedAt time.Time) (session.Session, error)
	markDeleted   func(ctx context.Context, id string, deletedAt time.Time) (session.Session, error)
	purgeSession  func(ctx context.Context, id string) error
	appendTurn    func(ctx context.Context, id string, turn session.Turn) error
	loadTurns     func(ctx context.Context, id string) ([]session.Turn, error)
}

func (c stubClient) Ping(ctx context.Context) error { return nil }
func (c stubClient) CreateSession(ctx context.Context, id string, createdAt time.Time) (session.Session, error) {
	return c.createSession(ctx, id, createdAt)
}
func (c stubClient) LoadSession(ctx context.Context, id string) (session.Session, error) {
	return c.loadSession(ctx, id)
}
func (c stubClient) EndSession(ctx context.Context, id string, endedAt time.Time) (session.Session, error) {
	return c.endSession(ctx, id, endedAt)
}
func (c stubClient) MarkDeleted(ctx context.Context, id string, deletedAt time.Time) (session.Session, error) {
	return c.markDeleted(ctx, id, deletedAt)
}
func (c stubClient) PurgeSession(ctx context.Context, id string) error { return c.purgeSession(ctx, id) }
func (c stubClient) AppendTurn(ctx context.Context, id string, turn session.Turn) error {
	return c.appendTurn(ctx, id, turn)
}
func (c stubClient) LoadTurns(ctx context.Context, id string) ([]session.Turn, error) {
	return c.loadTurns(ctx, id)
}

func TestNewStoreRequiresClient(t *testing.T) {
	_, err := NewStore(nil)
	require.EqualError(t, err, "client is required")
}

func TestStoreDelegatesCreateSessionToClient(t *testing.T) {
	now := time.Now().UTC()
	expected := session.Session{ID: "sess-1", Status: session.StatusActive, CreatedAt: now}
	client := stubClient{createSession: func(ctx context.Context, id string, createdAt time.Time) (session.Session, error) {
		require.Equal(t, "sess-1", id)
		require.Equal(t, now, createdAt)
		return expected, nil
	}}
	store, err := NewStore(client)
	require.NoError(t, err)

	got, err := store.CreateSession(context.Background(), "sess-1", now)
	require.NoError(t, err)
	require.Equal(t, expected, got)
}

func TestStoreDelegatesAppendTurnToClient(t *testing.T) {
	turn := session.Turn{Role: "user", Text: "hi", Timestamp: time.Now().UTC()}
	called := false
	client := stubClient{appendTurn: func(ctx context.Context, id string, got session.Turn) error {
		called = true
		require.Equal(t, "sess-1", id)
		require.Equal(t, turn, got)
		return nil
	}}
	store, err := NewStore(client)
	require.NoError(t, err)

	require.NoError(t, store.AppendTurn(context.Background(), "sess-1", turn))
	require.True(t, called)
}

func TestStoreDelegatesMarkDeletedAndPurgeToClient(t *testing.T) {
	at := time.Now().UTC()
	purged := false
	client := stubClient{
		markDeleted: func(ctx context.Context, id string, deletedAt time.Time) (session.Session, error) {
			require.Equal(t, at, deletedAt)
			return session.Session{ID: id, Status: session.StatusDeleted, DeletedAt: &at}, nil
		},
		purgeSession: func(ctx context.Context, id string) error {
			purged = true
			return nil
		},
	}
	store, err := NewStore(client)
	require.NoError(t, err)

	sess, err := store.MarkDeleted(context.Background(), "sess-1", at)
	require.NoError(t, err)
	require.Equal(t, session.StatusDeleted, sess.Status)

	require.NoError(t, store.Purge(context.Background(), "sess-1"))
	require.True(t, purged)
}
