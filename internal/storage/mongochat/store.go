// Package mongochat keeps assistant conversation history in MongoDB.
package mongochat

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/assistant"
)

const collection = "chat_messages"

type message struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
	// Seq orders messages written within the same millisecond.
	Seq int64 `bson:"seq"`
}

// Store implements the assistant's ChatStore on a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	seq    atomic.Int64
}

// Open connects to uri and ensures the (user_id, seq) index exists.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI))
	if err != nil {
		return nil, fmt.Errorf("mongochat: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongochat: ping: %w", err)
	}
	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "seq", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongochat: create index: %w", err)
	}
	s := &Store{client: client, coll: coll}
	s.seq.Store(time.Now().UnixNano())
	return s, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// Ready pings the primary.
func (s *Store) Ready(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func (s *Store) nextSeq() int64 {
	now := time.Now().UnixNano()
	for {
		cur := s.seq.Load()
		next := max(cur+1, now)
		if s.seq.CompareAndSwap(cur, next) {
			return next
		}
	}
}

func (s *Store) AppendMessage(ctx context.Context, m ledger.ChatMessage) error {
	_, err := s.coll.InsertOne(ctx, message{
		ID:        m.ID.String(),
		UserID:    m.UserID.String(),
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Seq:       s.nextSeq(),
	})
	if err != nil {
		return fmt.Errorf("mongochat: insert message: %w", err)
	}
	return nil
}

// RecentMessages returns the newest limit messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, userID uuid.UUID, limit int) ([]ledger.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongochat: find messages: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]ledger.ChatMessage, 0)
	for cursor.Next(ctx) {
		var doc message
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongochat: decode message: %w", err)
		}
		m, err := doc.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongochat: cursor: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Store) ClearMessages(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.coll.DeleteMany(ctx, bson.M{"user_id": userID.String()}); err != nil {
		return fmt.Errorf("mongochat: delete messages: %w", err)
	}
	return nil
}

func (d message) toEntity() (ledger.ChatMessage, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return ledger.ChatMessage{}, fmt.Errorf("mongochat: bad message id %q", d.ID)
	}
	uid, err := uuid.Parse(d.UserID)
	if err != nil {
		return ledger.ChatMessage{}, fmt.Errorf("mongochat: bad user id %q", d.UserID)
	}
	return ledger.ChatMessage{
		ID:        id,
		UserID:    uid,
		Role:      ledger.ChatRole(d.Role),
		Content:   d.Content,
		CreatedAt: d.CreatedAt.UTC(),
	}, nil
}

var _ assistant.ChatStore = (*Store)(nil)
