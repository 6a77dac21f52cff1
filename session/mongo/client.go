// Package mongo hosts the MongoDB-backed session.Store used in production
// deployments, grounded on the teacher's session/mongo feature package and
// its collection-wrapper seam.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/session"
)

const (
	defaultSessionsCollection = "chat_sessions"
	defaultTurnsCollection    = "chat_turns"
	defaultOpTimeout          = 5 * time.Second
)

// Client exposes Mongo-backed operations for sessions and conversation
// turns. Store delegates to it so the collection/document plumbing stays
// out of the session.Store surface.
type Client interface {
	Ping(ctx context.Context) error

	CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (session.Session, error)
	LoadSession(ctx context.Context, sessionID string) (session.Session, error)
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) (session.Session, error)
	MarkDeleted(ctx context.Context, sessionID string, deletedAt time.Time) (session.Session, error)
	PurgeSession(ctx context.Context, sessionID string) error

	AppendTurn(ctx context.Context, sessionID string, turn session.Turn) error
	LoadTurns(ctx context.Context, sessionID string) ([]session.Turn, error)
}

// Options configures the Mongo session client.
type Options struct {
	Client             *mongodriver.Client
	Database           string
	SessionsCollection string
	TurnsCollection    string
	Timeout            time.Duration
}

type client struct {
	mongo    *mongodriver.Client
	sessions *mongodriver.Collection
	turns    *mongodriver.Collection
	timeout  time.Duration
}

// New returns a Client backed by MongoDB, ensuring the required indexes
// exist before returning.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	sessionsName := opts.SessionsCollection
	if sessionsName == "" {
		sessionsName = defaultSessionsCollection
	}
	turnsName := opts.TurnsCollection
	if turnsName == "" {
		turnsName = defaultTurnsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	sessColl := opts.Client.Database(opts.Database).Collection(sessionsName)
	turnColl := opts.Client.Database(opts.Database).Collection(turnsName)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, sessColl, turnColl); err != nil {
		return nil, err
	}

	return &client{mongo: opts.Client, sessions: sessColl, turns: turnColl, timeout: timeout}, nil
}

func (c *client) Ping(ctx context.Context) error {
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (session.Session, error) {
	existing, err := c.LoadSession(ctx, sessionID)
	if err == nil {
		switch existing.Status {
		case session.StatusEnded:
			return session.Session{}, session.ErrSessionEnded
		case session.StatusDeleted:
			return session.Session{}, session.ErrSessionDeleted
		}
		return existing, nil
	}
	if !errors.Is(err, session.ErrSessionNotFound) {
		return session.Session{}, err
	}

	now := time.Now().UTC()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"session_id": sessionID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"session_id": sessionID,
			"status":     session.StatusActive,
			"created_at": createdAt.UTC(),
			"updated_at": now,
		},
	}
	if _, err := c.sessions.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return session.Session{}, faults.Wrap(faults.KindStoreError, "session: create session", err)
	}
	return c.LoadSession(ctx, sessionID)
}

func (c *client) LoadSession(ctx context.Context, sessionID string) (session.Session, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc sessionDocument
	if err := c.sessions.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return session.Session{}, session.ErrSessionNotFound
		}
		return session.Session{}, faults.Wrap(faults.KindStoreError, "session: load session", err)
	}
	return doc.toSession(), nil
}

func (c *client) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (session.Session, error) {
	return c.transition(ctx, sessionID, session.StatusEnded, endedAt, session.ErrSessionEnded)
}

func (c *client) MarkDeleted(ctx context.Context, sessionID string, deletedAt time.Time) (session.Session, error) {
	return c.transition(ctx, sessionID, session.StatusDeleted, deletedAt, session.ErrSessionDeleted)
}

func (c *client) transition(ctx context.Context, sessionID string, to session.Status, at time.Time, alreadyErr error) (session.Session, error) {
	existing, err := c.LoadSession(ctx, sessionID)
	if err != nil {
		return session.Session{}, err
	}
	if existing.Status == to {
		return existing, nil
	}

	now := time.Now().UTC()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	field := "ended_at"
	if to == session.StatusDeleted {
		field = "deleted_at"
	}
	update := bson.M{"$set": bson.M{
		"status":     to,
		field:        at.UTC(),
		"updated_at": now,
	}}
	if _, err := c.sessions.UpdateOne(ctx, bson.M{"session_id": sessionID}, update); err != nil {
		return session.Session{}, faults.Wrap(faults.KindStoreError, "session: transition session", err)
	}
	_ = alreadyErr
	return c.LoadSession(ctx, sessionID)
}

func (c *client) PurgeSession(ctx context.Context, sessionID string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if _, err := c.sessions.DeleteOne(ctx, bson.M{"session_id": sessionID}); err != nil {
		return faults.Wrap(faults.KindStoreError, "session: purge session", err)
	}
	if _, err := c.turns.DeleteMany(ctx, bson.M{"session_id": sessionID}); err != nil {
		return faults.Wrap(faults.KindStoreError, "session: purge turns", err)
	}
	return nil
}

func (c *client) AppendTurn(ctx context.Context, sessionID string, turn session.Turn) error {
	last, err := c.lastTurn(ctx, sessionID)
	if err != nil {
		return err
	}
	if last != nil && turn.Timestamp.Before(last.Timestamp) {
		return faults.New(faults.KindBadInput, "session: turn timestamp is not monotonic")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	doc := fromTurn(sessionID, turn)
	if _, err := c.turns.InsertOne(ctx, doc); err != nil {
		return faults.Wrap(faults.KindStoreError, "session: append turn", err)
	}
	return nil
}

func (c *client) lastTurn(ctx context.Context, sessionID string) (*session.Turn, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	var doc turnDocument
	if err := c.turns.FindOne(ctx, bson.M{"session_id": sessionID}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, nil
		}
		return nil, faults.Wrap(faults.KindStoreError, "session: load last turn", err)
	}
	turn := doc.toTurn()
	return &turn, nil
}

func (c *client) LoadTurns(ctx context.Context, sessionID string) ([]session.Turn, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cur, err := c.turns.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, faults.Wrap(faults.KindStoreError, "session: load turns", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []session.Turn
	for cur.Next(ctx) {
		var doc turnDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, faults.Wrap(faults.KindStoreError, "session: decode turn", err)
		}
		out = append(out, doc.toTurn())
	}
	if err := cur.Err(); err != nil {
		return nil, faults.Wrap(faults.KindStoreError, "session: iterate turns", err)
	}
	return out, nil
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func ensureIndexes(ctx context.Context, sessions, turns *mongodriver.Collection) error {
	if _, err := sessions.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := turns.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	return err
}

type sessionDocument struct {
	SessionID string         `bson:"session_id"`
	Status    session.Status `bson:"status"`
	CreatedAt time.Time      `bson:"created_at"`
	EndedAt   *time.Time     `bson:"ended_at,omitempty"`
	DeletedAt *time.Time     `bson:"deleted_at,omitempty"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

func (doc sessionDocument) toSession() session.Session {
	out := session.Session{ID: doc.SessionID, Status: doc.Status, CreatedAt: doc.CreatedAt.UTC()}
	if doc.EndedAt != nil {
		at := doc.EndedAt.UTC()
		out.EndedAt = &at
	}
	if doc.DeletedAt != nil {
		at := doc.DeletedAt.UTC()
		out.DeletedAt = &at
	}
	return out
}

type turnDocument struct {
	SessionID string            `bson:"session_id"`
	Role      string            `bson:"role"`
	Text      string            `bson:"text"`
	Timestamp time.Time         `bson:"timestamp"`
	Sources   []eventbus.Source `bson:"sources,omitempty"`
}

func fromTurn(sessionID string, turn session.Turn) turnDocument {
	return turnDocument{
		SessionID: sessionID,
		Role:      turn.Role,
		Text:      turn.Text,
		Timestamp: turn.Timestamp.UTC(),
		Sources:   turn.Sources,
	}
}

func (doc turnDocument) toTurn() session.Turn {
	return session.Turn{Role: doc.Role, Text: doc.Text, Timestamp: doc.Timestamp.UTC(), Sources: doc.Sources}
}
