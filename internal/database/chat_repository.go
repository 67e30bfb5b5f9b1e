package database

import (
	"context"
	"fmt"
	"time"

	"glooo/internal/models"
	"glooo/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChatDocument is the stored form of a two-party chat. pairKey carries the
// unique index that keeps one chat per unordered pair.
type ChatDocument struct {
	ID             string                 `bson:"_id"`
	Users          []string               `bson:"users"`
	PairKey        string                 `bson:"pairKey"`
	CreatedAt      time.Time              `bson:"createdAt"`
	LastActivityAt time.Time              `bson:"lastActivityAt"`
	LastMessage    *DirectMessageDocument `bson:"lastMessage,omitempty"`
}

func (doc *ChatDocument) toModel() (*models.Chat, error) {
	if len(doc.Users) != 2 {
		return nil, fmt.Errorf("chat %s has %d users", doc.ID, len(doc.Users))
	}
	ids, err := parseIDs(doc.ID, doc.Users[0], doc.Users[1])
	if err != nil {
		return nil, fmt.Errorf("invalid chat in database: %w", err)
	}
	chat := &models.Chat{
		ID:             ids[0],
		Users:          [2]uuid.UUID{ids[1], ids[2]},
		PairKey:        doc.PairKey,
		CreatedAt:      doc.CreatedAt,
		LastActivityAt: doc.LastActivityAt,
	}
	if doc.LastMessage != nil {
		if chat.LastMessage, err = doc.LastMessage.toModel(); err != nil {
			return nil, err
		}
	}
	return chat, nil
}

// FindOrCreateChat inserts the chat for {a, b} or, when the pair already has
// one, returns it. The boolean reports whether this call created it.
func (m *MongoDB) FindOrCreateChat(ctx context.Context, a, b uuid.UUID, now time.Time) (*models.Chat, bool, error) {
	if a == b {
		return nil, false, utils.NewAppError(utils.ErrInvalidInput, "a chat needs two distinct users", nil)
	}

	pair := models.OrderedPair(a, b)
	doc := ChatDocument{
		ID:             uuid.New().String(),
		Users:          []string{pair[0].String(), pair[1].String()},
		PairKey:        models.PairKey(a, b),
		CreatedAt:      now,
		LastActivityAt: now,
	}

	_, err := m.Chats.InsertOne(ctx, doc)
	if err == nil {
		chat, err := doc.toModel()
		return chat, true, err
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, storeError("FindOrCreateChat", err)
	}

	var existing ChatDocument
	if err := m.Chats.FindOne(ctx, bson.M{"pairKey": doc.PairKey}).Decode(&existing); err != nil {
		return nil, false, storeError("FindOrCreateChat", err)
	}
	chat, err := existing.toModel()
	return chat, false, err
}

func (m *MongoDB) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	var doc ChatDocument
	err := m.Chats.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewNotFoundError("chat not found")
	}
	if err != nil {
		return nil, storeError("GetChat", err)
	}
	return doc.toModel()
}

func (m *MongoDB) ChatExists(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := m.Chats.CountDocuments(ctx, bson.M{"_id": id.String()}, options.Count().SetLimit(1))
	if err != nil {
		return false, storeError("ChatExists", err)
	}
	return n > 0, nil
}

// GetChatsForUser lists the user's chats, most recent activity first.
func (m *MongoDB) GetChatsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastActivityAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.Chats.Find(ctx, bson.M{"users": userID.String()}, opts)
	if err != nil {
		return nil, storeError("GetChatsForUser", err)
	}
	defer cursor.Close(ctx)

	var docs []ChatDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeError("GetChatsForUser", err)
	}

	chats := make([]*models.Chat, 0, len(docs))
	for i := range docs {
		chat, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

// UpdateChatLastActivity snapshots msg onto its chat unless the chat already
// holds a newer message.
func (m *MongoDB) UpdateChatLastActivity(ctx context.Context, chatID uuid.UUID, msg *models.DirectMessage) error {
	snapshot := newDirectMessageDocument(msg)
	filter := bson.M{
		"_id":            chatID.String(),
		"lastActivityAt": bson.M{"$lte": msg.CreatedAt},
	}
	update := bson.M{"$set": bson.M{
		"lastMessage":    snapshot,
		"lastActivityAt": msg.CreatedAt,
	}}

	result, err := m.Chats.UpdateOne(ctx, filter, update)
	if err != nil {
		return storeError("UpdateChatLastActivity", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// Stale snapshot or missing chat.
	exists, err := m.ChatExists(ctx, chatID)
	if err != nil {
		return err
	}
	if !exists {
		return utils.NewNotFoundError("chat not found")
	}
	return nil
}
