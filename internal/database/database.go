// internal/database/database.go
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"glooo/internal/utils"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	Client        *mongo.Client
	Users         *mongo.Collection
	Requests      *mongo.Collection
	Friendships   *mongo.Collection
	Chats         *mongo.Collection
	Messages      *mongo.Collection
	Groups        *mongo.Collection
	GroupMessages *mongo.Collection

	logger *slog.Logger
}

var _ Store = (*MongoDB)(nil)

func NewMongoDB(ctx context.Context, uri, dbName string, timeout time.Duration, logger *slog.Logger) (*MongoDB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI).SetTimeout(timeout)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("connected to MongoDB", "database", dbName)

	db := client.Database(dbName)
	m := &MongoDB{
		Client:        client,
		Users:         db.Collection("users"),
		Requests:      db.Collection("requests"),
		Friendships:   db.Collection("friendships"),
		Chats:         db.Collection("chats"),
		Messages:      db.Collection("messages"),
		Groups:        db.Collection("groups"),
		GroupMessages: db.Collection("group_messages"),
		logger:        logger.With("component", "mongodb"),
	}

	if err := m.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// EnsureIndexes creates the unique indexes the gateway relies on for
// duplicate suppression, plus the lookup indexes for history queries.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{m.Users, mongo.IndexModel{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique}},
		{m.Users, mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique}},
		{m.Requests, mongo.IndexModel{Keys: bson.D{{Key: "fromId", Value: 1}, {Key: "toId", Value: 1}}, Options: unique}},
		{m.Requests, mongo.IndexModel{Keys: bson.D{{Key: "toId", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "seq", Value: 1}}}},
		{m.Friendships, mongo.IndexModel{Keys: bson.D{{Key: "pairKey", Value: 1}}, Options: unique}},
		{m.Friendships, mongo.IndexModel{Keys: bson.D{{Key: "users", Value: 1}}}},
		{m.Chats, mongo.IndexModel{Keys: bson.D{{Key: "pairKey", Value: 1}}, Options: unique}},
		{m.Chats, mongo.IndexModel{Keys: bson.D{{Key: "users", Value: 1}, {Key: "lastActivityAt", Value: -1}}}},
		{m.Messages, mongo.IndexModel{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: -1}}}},
		{m.Groups, mongo.IndexModel{Keys: bson.D{{Key: "members", Value: 1}}}},
		{m.GroupMessages, mongo.IndexModel{Keys: bson.D{{Key: "groupId", Value: 1}, {Key: "createdAt", Value: -1}}}},
	}

	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

// storeError classifies a driver error. Not-found and duplicate-key errors
// become their AppError codes; everything else is STORE_UNAVAILABLE.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrap(err, "database."+op)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return utils.NewAppError(utils.ErrNotFound, "record not found", wrapped)
	case mongo.IsDuplicateKeyError(err):
		return utils.NewConflictError("record already exists", wrapped)
	default:
		return utils.NewStoreUnavailableError(op, wrapped)
	}
}
