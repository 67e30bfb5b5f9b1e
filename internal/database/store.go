package database

import (
	"context"
	"time"

	"glooo/internal/models"

	"github.com/google/uuid"
)

// Store is the persistence gateway. Every method returns either the
// requested records or a *utils.AppError coded NOT_FOUND / USER_NOT_FOUND,
// a conflict code (DUPLICATE, DUPLICATE_REQUEST, USER_ALREADY_EXISTS), or
// STORE_UNAVAILABLE.
//
// Implementations only promise single-document atomicity; callers that run
// multi-step sequences must make each step idempotent.
type Store interface {
	Close(ctx context.Context) error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, when time.Time) error
	SearchUsers(ctx context.Context, query string, limit int) ([]*models.User, error)

	// Chat methods
	FindOrCreateChat(ctx context.Context, a, b uuid.UUID, now time.Time) (*models.Chat, bool, error)
	GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	ChatExists(ctx context.Context, id uuid.UUID) (bool, error)
	GetChatsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Chat, error)
	UpdateChatLastActivity(ctx context.Context, chatID uuid.UUID, msg *models.DirectMessage) error

	// Message methods
	InsertDirectMessage(ctx context.Context, msg *models.DirectMessage) error
	GetChatMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]*models.DirectMessage, error)
	InsertGroupMessage(ctx context.Context, msg *models.GroupMessage) error
	GetGroupMessages(ctx context.Context, groupID uuid.UUID, limit int) ([]*models.GroupMessage, error)

	// Friend request methods, keyed by the ordered (from, to) pair
	InsertFriendRequest(ctx context.Context, req *models.FriendRequest) error
	GetFriendRequest(ctx context.Context, fromID, toID uuid.UUID) (*models.FriendRequest, error)
	ClaimFriendRequest(ctx context.Context, fromID, toID uuid.UUID) (*models.FriendRequest, error)
	ReleaseFriendRequest(ctx context.Context, fromID, toID uuid.UUID) error
	DeleteFriendRequest(ctx context.Context, fromID, toID uuid.UUID) error
	ListIncomingRequests(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error)
	ListOutgoingRequests(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error)

	// Friendship methods
	InsertFriendship(ctx context.Context, f *models.Friendship) error
	AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error)
	GetFriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)

	// Group methods
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error)
	GroupExists(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateGroupMembers(ctx context.Context, groupID uuid.UUID, userIDs []uuid.UUID, action models.MemberAction) (*models.Group, error)
	GetGroupsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Group, error)
}
