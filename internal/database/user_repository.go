// internal/database/user_repository.go
package database

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"glooo/internal/models"
	"glooo/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserDocument represents the MongoDB schema for a user
type UserDocument struct {
	ID             string     `bson:"_id"`
	Name           string     `bson:"name"`
	Username       string     `bson:"username"`
	Email          string     `bson:"email"`
	HashedPassword string     `bson:"hashedPassword"`
	Verified       bool       `bson:"verified"`
	CreatedAt      time.Time  `bson:"createdAt"`
	UpdatedAt      time.Time  `bson:"updatedAt"`
	LastLogin      *time.Time `bson:"lastLogin,omitempty"`
}

func (doc *UserDocument) toModel() (*models.User, error) {
	userID, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in database: %w", err)
	}
	return &models.User{
		ID:             userID,
		Name:           doc.Name,
		Username:       doc.Username,
		Email:          doc.Email,
		HashedPassword: doc.HashedPassword,
		Verified:       doc.Verified,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
		LastLogin:      doc.LastLogin,
	}, nil
}

// CreateUser inserts a new user. Username and email are unique.
func (m *MongoDB) CreateUser(ctx context.Context, user *models.User) error {
	doc := UserDocument{
		ID:             user.ID.String(),
		Name:           user.Name,
		Username:       user.Username,
		Email:          strings.ToLower(user.Email),
		HashedPassword: user.HashedPassword,
		Verified:       user.Verified,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
		LastLogin:      user.LastLogin,
	}

	_, err := m.Users.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return utils.NewAppError(utils.ErrUserAlreadyExists, "user already exists with this username or email", err)
	}
	return storeError("CreateUser", err)
}

// GetUser retrieves a user from MongoDB by their ID
func (m *MongoDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.findUser(ctx, bson.M{"_id": id.String()}, id.String())
}

// GetUserByEmail retrieves a user from MongoDB by their email address
func (m *MongoDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"email": strings.ToLower(email)}, email)
}

func (m *MongoDB) findUser(ctx context.Context, filter bson.M, ref string) (*models.User, error) {
	var doc UserDocument
	err := m.Users.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewUserNotFoundError(ref)
	}
	if err != nil {
		return nil, storeError("GetUser", err)
	}
	return doc.toModel()
}

// UpdateLastLogin stamps a successful login
func (m *MongoDB) UpdateLastLogin(ctx context.Context, id uuid.UUID, when time.Time) error {
	filter := bson.M{"_id": id.String()}
	update := bson.M{"$set": bson.M{
		"lastLogin": when,
		"updatedAt": when,
	}}

	result, err := m.Users.UpdateOne(ctx, filter, update)
	if err != nil {
		return storeError("UpdateLastLogin", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewUserNotFoundError(id.String())
	}
	return nil
}

// SearchUsers matches usernames containing query, case-insensitively.
func (m *MongoDB) SearchUsers(ctx context.Context, query string, limit int) ([]*models.User, error) {
	filter := bson.M{"username": bson.M{
		"$regex":   regexp.QuoteMeta(query),
		"$options": "i",
	}}
	opts := options.Find().SetSort(bson.D{{Key: "username", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.Users.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeError("SearchUsers", err)
	}
	defer cursor.Close(ctx)

	var docs []UserDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeError("SearchUsers", err)
	}

	users := make([]*models.User, 0, len(docs))
	for i := range docs {
		user, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}
