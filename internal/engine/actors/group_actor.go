package actors

import (
	stdctx "context"
	"log/slog"
	"strings"
	"time"

	"glooo/internal/database"
	"glooo/internal/models"
	"glooo/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Message types for group operations
type (
	CreateGroupMsg struct {
		CreatorID uuid.UUID
		Name      string
		MemberIDs []uuid.UUID
	}

	MutateMembersMsg struct {
		ActorID uuid.UUID
		GroupID uuid.UUID
		UserIDs []uuid.UUID
		Action  models.MemberAction
	}

	GetGroupMsg struct {
		UserID  uuid.UUID
		GroupID uuid.UUID
	}

	ListGroupsMsg struct {
		UserID uuid.UUID
	}

	GetGroupMessagesMsg struct {
		UserID  uuid.UUID
		GroupID uuid.UUID
		Limit   int
	}
)

// GroupActor handles group creation and admin-gated membership changes
type GroupActor struct {
	store   database.Store
	metrics *utils.MetricsCollector
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewGroupActor(store database.Store, metrics *utils.MetricsCollector, logger *slog.Logger) *GroupActor {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &GroupActor{
		store:   store,
		metrics: metrics,
		logger:  logger.With("component", "group_actor"),
		timeout: defaultStoreTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (a *GroupActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *CreateGroupMsg:
		startTime := time.Now()
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
		defer cancel()

		// Creator is the only admin and the first member
		group := &models.Group{
			ID:        uuid.New(),
			Name:      strings.TrimSpace(msg.Name),
			Admins:    []uuid.UUID{msg.CreatorID},
			Members:   models.UniqueIDs(append([]uuid.UUID{msg.CreatorID}, msg.MemberIDs...)),
			CreatedAt: a.now(),
		}

		if err := a.store.CreateGroup(ctx, group); err != nil {
			context.Respond(asAppError(err, "create group"))
			return
		}

		a.logger.Info("group created", "group_id", group.ID, "creator", msg.CreatorID, "members", len(group.Members))
		a.metrics.AddOperationLatency("create_group", time.Since(startTime))
		context.Respond(group)

	case *MutateMembersMsg:
		startTime := time.Now()
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
		defer cancel()

		if !msg.Action.Valid() {
			context.Respond(utils.NewAppError(utils.ErrInvalidInput, "action must be add or remove", nil))
			return
		}

		group, err := a.store.GetGroup(ctx, msg.GroupID)
		if err != nil {
			context.Respond(asAppError(err, "get group"))
			return
		}
		if !group.IsAdmin(msg.ActorID) {
			a.logger.Warn("non-admin tried to change members", "group_id", msg.GroupID, "actor", msg.ActorID)
			context.Respond(utils.NewForbiddenError("only admins can manage members"))
			return
		}

		updated, err := a.store.UpdateGroupMembers(ctx, msg.GroupID, msg.UserIDs, msg.Action)
		if err != nil {
			context.Respond(asAppError(err, "update group members"))
			return
		}

		a.logger.Info("group members updated", "group_id", msg.GroupID, "action", msg.Action, "count", len(msg.UserIDs))
		a.metrics.AddOperationLatency("mutate_members", time.Since(startTime))
		context.Respond(updated)

	case *GetGroupMsg:
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
		defer cancel()

		group, err := a.memberGroup(ctx, msg.UserID, msg.GroupID)
		if err != nil {
			context.Respond(err)
			return
		}
		context.Respond(group)

	case *ListGroupsMsg:
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
		defer cancel()

		groups, err := a.store.GetGroupsForUser(ctx, msg.UserID)
		if err != nil {
			context.Respond(asAppError(err, "list groups"))
			return
		}
		if groups == nil {
			groups = []*models.Group{}
		}
		context.Respond(groups)

	case *GetGroupMessagesMsg:
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
		defer cancel()

		group, appErr := a.memberGroup(ctx, msg.UserID, msg.GroupID)
		if appErr != nil {
			context.Respond(appErr)
			return
		}

		limit := msg.Limit
		if limit <= 0 {
			limit = DefaultHistoryLimit
		}
		messages, err := a.store.GetGroupMessages(ctx, group.ID, limit)
		if err != nil {
			context.Respond(asAppError(err, "get group messages"))
			return
		}
		if messages == nil {
			messages = []*models.GroupMessage{}
		}
		context.Respond(messages)
	}
}

// memberGroup loads a group the user belongs to, as member or admin.
func (a *GroupActor) memberGroup(ctx stdctx.Context, userID, groupID uuid.UUID) (*models.Group, *utils.AppError) {
	group, err := a.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, asAppError(err, "get group")
	}
	if !group.HasParticipant(userID) {
		return nil, utils.NewForbiddenError("not a member of this group")
	}
	return group, nil
}
