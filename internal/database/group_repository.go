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

// GroupDocument represents the MongoDB document structure for groups
type GroupDocument struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name,omitempty"`
	Admins    []string  `bson:"admins"`
	Members   []string  `bson:"members"`
	CreatedAt time.Time `bson:"createdAt"`
}

func (doc *GroupDocument) toModel() (*models.Group, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid group ID in database: %w", err)
	}
	admins, err := parseIDs(doc.Admins...)
	if err != nil {
		return nil, fmt.Errorf("invalid admin ID in database: %w", err)
	}
	members, err := parseIDs(doc.Members...)
	if err != nil {
		return nil, fmt.Errorf("invalid member ID in database: %w", err)
	}
	return &models.Group{
		ID:        id,
		Name:      doc.Name,
		Admins:    admins,
		Members:   members,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// CreateGroup creates a new group in MongoDB
func (m *MongoDB) CreateGroup(ctx context.Context, group *models.Group) error {
	doc := GroupDocument{
		ID:        group.ID.String(),
		Name:      group.Name,
		Admins:    idStrings(group.Admins),
		Members:   idStrings(group.Members),
		CreatedAt: group.CreatedAt,
	}
	_, err := m.Groups.InsertOne(ctx, doc)
	return storeError("CreateGroup", err)
}

// GetGroup retrieves a group by its ID
func (m *MongoDB) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	var doc GroupDocument
	err := m.Groups.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewNotFoundError("group not found")
	}
	if err != nil {
		return nil, storeError("GetGroup", err)
	}
	return doc.toModel()
}

func (m *MongoDB) GroupExists(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := m.Groups.CountDocuments(ctx, bson.M{"_id": id.String()}, options.Count().SetLimit(1))
	if err != nil {
		return false, storeError("GroupExists", err)
	}
	return n > 0, nil
}

// UpdateGroupMembers applies a set union ($addToSet) or set difference
// ($pullAll) to the member list and returns the group as updated.
func (m *MongoDB) UpdateGroupMembers(ctx context.Context, groupID uuid.UUID, userIDs []uuid.UUID, action models.MemberAction) (*models.Group, error) {
	ids := idStrings(models.UniqueIDs(userIDs))

	var update bson.M
	switch action {
	case models.MemberAdd:
		update = bson.M{"$addToSet": bson.M{"members": bson.M{"$each": ids}}}
	case models.MemberRemove:
		update = bson.M{"$pullAll": bson.M{"members": ids}}
	default:
		return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid member action: "+string(action), nil)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc GroupDocument
	err := m.Groups.FindOneAndUpdate(ctx, bson.M{"_id": groupID.String()}, update, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewNotFoundError("group not found")
	}
	if err != nil {
		return nil, storeError("UpdateGroupMembers", err)
	}
	return doc.toModel()
}

// GetGroupsForUser lists groups where the user is a member or admin
func (m *MongoDB) GetGroupsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Group, error) {
	self := userID.String()
	filter := bson.M{"$or": []bson.M{
		{"members": self},
		{"admins": self},
	}}
	cursor, err := m.Groups.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, storeError("GetGroupsForUser", err)
	}
	defer cursor.Close(ctx)

	var groups []*models.Group
	for cursor.Next(ctx) {
		var doc GroupDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, storeError("GetGroupsForUser", err)
		}
		group, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := cursor.Err(); err != nil {
		return nil, storeError("GetGroupsForUser", err)
	}
	return groups, nil
}
