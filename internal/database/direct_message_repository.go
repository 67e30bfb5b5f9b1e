package database

import (
	"context"
	"fmt"
	"time"

	"glooo/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DirectMessageDocument represents the MongoDB document structure for direct messages
type DirectMessageDocument struct {
	ID        string    `bson:"_id"`
	ChatID    string    `bson:"chatId"`
	FromID    string    `bson:"fromId"`
	ToID      string    `bson:"toId"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"createdAt"`
}

func newDirectMessageDocument(msg *models.DirectMessage) DirectMessageDocument {
	return DirectMessageDocument{
		ID:        msg.ID.String(),
		ChatID:    msg.ChatID.String(),
		FromID:    msg.FromID.String(),
		ToID:      msg.ToID.String(),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

func (doc *DirectMessageDocument) toModel() (*models.DirectMessage, error) {
	ids, err := parseIDs(doc.ID, doc.ChatID, doc.FromID, doc.ToID)
	if err != nil {
		return nil, fmt.Errorf("invalid direct message in database: %w", err)
	}
	return &models.DirectMessage{
		ID:        ids[0],
		ChatID:    ids[1],
		FromID:    ids[2],
		ToID:      ids[3],
		Content:   doc.Content,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// GroupMessageDocument is the stored form of a group message
type GroupMessageDocument struct {
	ID        string    `bson:"_id"`
	GroupID   string    `bson:"groupId"`
	FromID    string    `bson:"fromId"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"createdAt"`
}

func (doc *GroupMessageDocument) toModel() (*models.GroupMessage, error) {
	ids, err := parseIDs(doc.ID, doc.GroupID, doc.FromID)
	if err != nil {
		return nil, fmt.Errorf("invalid group message in database: %w", err)
	}
	return &models.GroupMessage{
		ID:        ids[0],
		GroupID:   ids[1],
		FromID:    ids[2],
		Content:   doc.Content,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// InsertDirectMessage saves a new direct message to MongoDB
func (m *MongoDB) InsertDirectMessage(ctx context.Context, msg *models.DirectMessage) error {
	_, err := m.Messages.InsertOne(ctx, newDirectMessageDocument(msg))
	return storeError("InsertDirectMessage", err)
}

// GetChatMessages returns the newest limit messages of a chat, oldest first.
func (m *MongoDB) GetChatMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]*models.DirectMessage, error) {
	cursor, err := m.Messages.Find(ctx, bson.M{"chatId": chatID.String()}, newestFirst(limit))
	if err != nil {
		return nil, storeError("GetChatMessages", err)
	}
	defer cursor.Close(ctx)

	var docs []DirectMessageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeError("GetChatMessages", err)
	}

	messages := make([]*models.DirectMessage, len(docs))
	for i := range docs {
		msg, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		messages[len(docs)-1-i] = msg
	}
	return messages, nil
}

func (m *MongoDB) InsertGroupMessage(ctx context.Context, msg *models.GroupMessage) error {
	doc := GroupMessageDocument{
		ID:        msg.ID.String(),
		GroupID:   msg.GroupID.String(),
		FromID:    msg.FromID.String(),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	_, err := m.GroupMessages.InsertOne(ctx, doc)
	return storeError("InsertGroupMessage", err)
}

func (m *MongoDB) GetGroupMessages(ctx context.Context, groupID uuid.UUID, limit int) ([]*models.GroupMessage, error) {
	cursor, err := m.GroupMessages.Find(ctx, bson.M{"groupId": groupID.String()}, newestFirst(limit))
	if err != nil {
		return nil, storeError("GetGroupMessages", err)
	}
	defer cursor.Close(ctx)

	var docs []GroupMessageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeError("GetGroupMessages", err)
	}

	messages := make([]*models.GroupMessage, len(docs))
	for i := range docs {
		msg, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		messages[len(docs)-1-i] = msg
	}
	return messages, nil
}

func newestFirst(limit int) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

func parseIDs(raw ...string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
