package database

import (
	"context"
	"fmt"
	"time"

	"glooo/internal/models"
	"glooo/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FriendRequestDocument is unique per ordered (fromId, toId). Seq is an
// ObjectID assigned at insert and orders requests sharing a createdAt.
type FriendRequestDocument struct {
	ID        string             `bson:"_id"`
	FromID    string             `bson:"fromId"`
	ToID      string             `bson:"toId"`
	Status    string             `bson:"status"`
	CreatedAt time.Time          `bson:"createdAt"`
	Seq       primitive.ObjectID `bson:"seq"`
}

func (doc *FriendRequestDocument) toModel() (*models.FriendRequest, error) {
	ids, err := parseIDs(doc.ID, doc.FromID, doc.ToID)
	if err != nil {
		return nil, fmt.Errorf("invalid friend request in database: %w", err)
	}
	return &models.FriendRequest{
		ID:        ids[0],
		FromID:    ids[1],
		ToID:      ids[2],
		Status:    models.RequestStatus(doc.Status),
		CreatedAt: doc.CreatedAt,
	}, nil
}

// FriendshipDocument is unique per unordered pair through pairKey.
type FriendshipDocument struct {
	ID        string    `bson:"_id"`
	Users     []string  `bson:"users"`
	PairKey   string    `bson:"pairKey"`
	CreatedAt time.Time `bson:"createdAt"`
}

func requestFilter(fromID, toID uuid.UUID) bson.M {
	return bson.M{"fromId": fromID.String(), "toId": toID.String()}
}

func (m *MongoDB) InsertFriendRequest(ctx context.Context, req *models.FriendRequest) error {
	doc := FriendRequestDocument{
		ID:        req.ID.String(),
		FromID:    req.FromID.String(),
		ToID:      req.ToID.String(),
		Status:    string(req.Status),
		CreatedAt: req.CreatedAt,
		Seq:       primitive.NewObjectID(),
	}
	_, err := m.Requests.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return utils.NewAppError(utils.ErrDuplicateRequest, "request already exists cannot make a duplicate", err)
	}
	return storeError("InsertFriendRequest", err)
}

func (m *MongoDB) GetFriendRequest(ctx context.Context, fromID, toID uuid.UUID) (*models.FriendRequest, error) {
	var doc FriendRequestDocument
	err := m.Requests.FindOne(ctx, requestFilter(fromID, toID)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewNotFoundError("friend request not found")
	}
	if err != nil {
		return nil, storeError("GetFriendRequest", err)
	}
	return doc.toModel()
}

// ClaimFriendRequest flips a pending request to resolved in one
// findOneAndUpdate, so only one caller can win it.
func (m *MongoDB) ClaimFriendRequest(ctx context.Context, fromID, toID uuid.UUID) (*models.FriendRequest, error) {
	filter := requestFilter(fromID, toID)
	filter["status"] = string(models.RequestPending)
	update := bson.M{"$set": bson.M{"status": string(models.RequestResolved)}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc FriendRequestDocument
	err := m.Requests.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toModel()
	}
	if err != mongo.ErrNoDocuments {
		return nil, storeError("ClaimFriendRequest", err)
	}

	// Nothing pending matched: absent, or someone else already claimed it.
	if _, err := m.GetFriendRequest(ctx, fromID, toID); err != nil {
		return nil, err
	}
	return nil, utils.NewAppError(utils.ErrInvalidStatus, "friend request already resolved", nil)
}

func (m *MongoDB) ReleaseFriendRequest(ctx context.Context, fromID, toID uuid.UUID) error {
	update := bson.M{"$set": bson.M{"status": string(models.RequestPending)}}
	result, err := m.Requests.UpdateOne(ctx, requestFilter(fromID, toID), update)
	if err != nil {
		return storeError("ReleaseFriendRequest", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewNotFoundError("friend request not found")
	}
	return nil
}

func (m *MongoDB) DeleteFriendRequest(ctx context.Context, fromID, toID uuid.UUID) error {
	result, err := m.Requests.DeleteOne(ctx, requestFilter(fromID, toID))
	if err != nil {
		return storeError("DeleteFriendRequest", err)
	}
	if result.DeletedCount == 0 {
		return utils.NewNotFoundError("friend request not found")
	}
	return nil
}

func (m *MongoDB) ListIncomingRequests(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	return m.listRequests(ctx, bson.M{"toId": userID.String(), "status": string(models.RequestPending)})
}

func (m *MongoDB) ListOutgoingRequests(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	return m.listRequests(ctx, bson.M{"fromId": userID.String(), "status": string(models.RequestPending)})
}

func (m *MongoDB) listRequests(ctx context.Context, filter bson.M) ([]*models.FriendRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "seq", Value: 1}})
	cursor, err := m.Requests.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeError("ListRequests", err)
	}
	defer cursor.Close(ctx)

	var docs []FriendRequestDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeError("ListRequests", err)
	}

	requests := make([]*models.FriendRequest, 0, len(docs))
	for i := range docs {
		req, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func (m *MongoDB) InsertFriendship(ctx context.Context, f *models.Friendship) error {
	pair := models.OrderedPair(f.Users[0], f.Users[1])
	doc := FriendshipDocument{
		ID:        f.ID.String(),
		Users:     []string{pair[0].String(), pair[1].String()},
		PairKey:   models.PairKey(pair[0], pair[1]),
		CreatedAt: f.CreatedAt,
	}
	_, err := m.Friendships.InsertOne(ctx, doc)
	return storeError("InsertFriendship", err)
}

func (m *MongoDB) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	n, err := m.Friendships.CountDocuments(ctx, bson.M{"pairKey": models.PairKey(a, b)}, options.Count().SetLimit(1))
	if err != nil {
		return false, storeError("AreFriends", err)
	}
	return n > 0, nil
}

func (m *MongoDB) GetFriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	self := userID.String()
	cursor, err := m.Friendships.Find(ctx, bson.M{"users": self},
		options.Find().SetProjection(bson.M{"users": 1}))
	if err != nil {
		return nil, storeError("GetFriendIDs", err)
	}
	defer cursor.Close(ctx)

	var ids []uuid.UUID
	for cursor.Next(ctx) {
		var doc FriendshipDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, storeError("GetFriendIDs", err)
		}
		for _, raw := range doc.Users {
			if raw == self {
				continue
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid friend ID in database: %w", err)
			}
			ids = append(ids, id)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, storeError("GetFriendIDs", err)
	}
	return ids, nil
}
