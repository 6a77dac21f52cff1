package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/cortexmesh/orchestrator/session"
)

// Store implements session.Store by delegating to a Mongo Client.
type Store struct {
	client Client
}

// NewStore builds a Store using the provided client.
func NewStore(client Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

func (s *Store) CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (session.Session, error) {
	return s.client.CreateSession(ctx, sessionID, createdAt)
}

func (s *Store) LoadSession(ctx context.Context, sessionID string) (session.Session, error) {
	return s.client.LoadSession(ctx, sessionID)
}

func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (session.Session, error) {
	return s.client.EndSession(ctx, sessionID, endedAt)
}

func (s *Store) AppendTurn(ctx context.Context, sessionID string, turn session.Turn) error {
	return s.client.AppendTurn(ctx, sessionID, turn)
}

func (s *Store) LoadTurns(ctx context.Context, sessionID string) ([]session.Turn, error) {
	return s.client.LoadTurns(ctx, sessionID)
}

func (s *Store) MarkDeleted(ctx context.Context, sessionID string, deletedAt time.Time) (session.Session, error) {
	return s.client.MarkDeleted(ctx, sessionID, deletedAt)
}

func (s *Store) Purge(ctx context.Context, sessionID string) error {
	return s.client.PurgeSession(ctx, sessionID)
}
