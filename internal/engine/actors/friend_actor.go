package actors

import (
	stdctx "context"
	"log/slog"
	"time"

	"glooo/internal/database"
	"glooo/internal/models"
	"glooo/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

const (
	// DefaultChatListLimit matches the page size of the chat list endpoint.
	DefaultChatListLimit = 20
	// DefaultHistoryLimit bounds message history requests without a limit.
	DefaultHistoryLimit = 100

	defaultStoreTimeout = 5 * time.Second
)

// Message types for the FriendActor
type (
	SubmitRequestMsg struct {
		FromID uuid.UUID
		ToID   uuid.UUID
	}

	// ResolveRequestMsg answers the request RequesterID sent to ResponderID.
	ResolveRequestMsg struct {
		ResponderID uuid.UUID
		RequesterID uuid.UUID
		Action      models.ResolveAction
	}

	ListIncomingMsg struct {
		UserID uuid.UUID
	}

	ListOutgoingMsg struct {
		UserID uuid.UUID
	}

	CreateChatMsg struct {
		UserID  uuid.UUID
		OtherID uuid.UUID
	}

	ListChatsMsg struct {
		UserID uuid.UUID
		Limit  int
	}

	GetMessagesMsg struct {
		UserID uuid.UUID
		ChatID uuid.UUID
		Limit  int
	}

	ListFriendsMsg struct {
		UserID uuid.UUID
	}
)

// ResolveResult is the reply to ResolveRequestMsg. ChatID is set on accept.
type ResolveResult struct {
	Action      models.ResolveAction `json:"action"`
	ChatID      uuid.UUID            `json:"chat_id,omitempty"`
	ChatCreated bool                 `json:"chat_created"`
}

// ChatResult is the reply to CreateChatMsg.
type ChatResult struct {
	Chat    *models.Chat `json:"chat"`
	Created bool         `json:"created"`
}

// RequestView is a pending request plus a summary of the other party.
type RequestView struct {
	ID        uuid.UUID           `json:"id"`
	FromID    uuid.UUID           `json:"from_id"`
	ToID      uuid.UUID           `json:"to_id"`
	User      *models.UserSummary `json:"user,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// FriendActor owns the request → accept/reject → friendship → chat flow.
type FriendActor struct {
	store   database.Store
	metrics *utils.MetricsCollector
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewFriendActor(store database.Store, metrics *utils.MetricsCollector, logger *slog.Logger) *FriendActor {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &FriendActor{
		store:   store,
		metrics: metrics,
		logger:  logger.With("component", "friend_actor"),
		timeout: defaultStoreTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (a *FriendActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *SubmitRequestMsg:
		a.handleSubmitRequest(context, msg)
	case *ResolveRequestMsg:
		a.handleResolveRequest(context, msg)
	case *ListIncomingMsg:
		a.handleListRequests(context, msg.UserID, true)
	case *ListOutgoingMsg:
		a.handleListRequests(context, msg.UserID, false)
	case *CreateChatMsg:
		a.handleCreateChat(context, msg)
	case *ListChatsMsg:
		a.handleListChats(context, msg)
	case *GetMessagesMsg:
		a.handleGetMessages(context, msg)
	case *ListFriendsMsg:
		a.handleListFriends(context, msg)
	}
}

func (a *FriendActor) handleSubmitRequest(context actor.Context, msg *SubmitRequestMsg) {
	startTime := time.Now()
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
	defer cancel()

	if msg.FromID == msg.ToID {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "cannot send a friend request to yourself", nil))
		return
	}

	if _, err := a.store.GetUser(ctx, msg.ToID); err != nil {
		context.Respond(asAppError(err, "look up user"))
		return
	}

	friends, err := a.store.AreFriends(ctx, msg.FromID, msg.ToID)
	if err != nil {
		context.Respond(asAppError(err, "check friendship"))
		return
	}
	if friends {
		context.Respond(utils.NewAppError(utils.ErrAlreadyFriends, "already friends", nil))
		return
	}

	req := &models.FriendRequest{
		ID:        uuid.New(),
		FromID:    msg.FromID,
		ToID:      msg.ToID,
		Status:    models.RequestPending,
		CreatedAt: a.now(),
	}
	if err := a.store.InsertFriendRequest(ctx, req); err != nil {
		context.Respond(asAppError(err, "insert friend request"))
		return
	}

	a.logger.Info("friend request submitted", "from", msg.FromID, "to", msg.ToID)
	a.metrics.AddOperationLatency("submit_request", time.Since(startTime))
	context.Respond(req)
}

// handleResolveRequest claims the request first so concurrent resolutions
// cannot both proceed. Every step after the claim is idempotent, and a
// failure releases the claim so the responder can retry.
func (a *FriendActor) handleResolveRequest(context actor.Context, msg *ResolveRequestMsg) {
	startTime := time.Now()
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
	defer cancel()

	if !msg.Action.Valid() {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "action must be accept or reject", nil))
		return
	}

	log := a.logger.With("requester", msg.RequesterID, "responder", msg.ResponderID, "action", msg.Action)

	if _, err := a.store.ClaimFriendRequest(ctx, msg.RequesterID, msg.ResponderID); err != nil {
		context.Respond(asAppError(err, "claim friend request"))
		return
	}

	fail := func(step string, err error) {
		log.Error("resolving friend request failed", "step", step, "error", err)
		// The request context may already be spent.
		relCtx, relCancel := stdctx.WithTimeout(stdctx.WithoutCancel(ctx), a.timeout)
		defer relCancel()
		if relErr := a.store.ReleaseFriendRequest(relCtx, msg.RequesterID, msg.ResponderID); relErr != nil {
			log.Error("releasing friend request failed", "error", relErr)
		}
		context.Respond(asAppError(err, step))
	}

	result := &ResolveResult{Action: msg.Action}

	if msg.Action == models.ActionAccept {
		friendship := &models.Friendship{
			ID:        uuid.New(),
			Users:     models.OrderedPair(msg.RequesterID, msg.ResponderID),
			CreatedAt: a.now(),
		}
		// A conflict means the reverse request was accepted first.
		if err := a.store.InsertFriendship(ctx, friendship); err != nil && !utils.IsConflict(err) {
			fail("insert friendship", err)
			return
		}

		chat, created, err := a.store.FindOrCreateChat(ctx, msg.RequesterID, msg.ResponderID, a.now())
		if err != nil {
			fail("provision chat", err)
			return
		}
		result.ChatID = chat.ID
		result.ChatCreated = created
	}

	if err := a.store.DeleteFriendRequest(ctx, msg.RequesterID, msg.ResponderID); err != nil {
		fail("delete friend request", err)
		return
	}

	log.Info("friend request resolved", "chat_id", result.ChatID)
	a.metrics.AddOperationLatency("resolve_request", time.Since(startTime))
	context.Respond(result)
}

func (a *FriendActor) handleListRequests(context actor.Context, userID uuid.UUID, incoming bool) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
	defer cancel()

	var (
		requests []*models.FriendRequest
		err      error
	)
	if incoming {
		requests, err = a.store.ListIncomingRequests(ctx, userID)
	} else {
		requests, err = a.store.ListOutgoingRequests(ctx, userID)
	}
	if err != nil {
		context.Respond(asAppError(err, "list friend requests"))
		return
	}

	views := make([]*RequestView, 0, len(requests))
	for _, req := range requests {
		other := req.ToID
		if incoming {
			other = req.FromID
		}
		views = append(views, &RequestView{
			ID:        req.ID,
			FromID:    req.FromID,
			ToID:      req.ToID,
			User:      a.summary(ctx, other),
			CreatedAt: req.CreatedAt,
		})
	}
	context.Respond(views)
}

func (a *FriendActor) handleCreateChat(context actor.Context, msg *CreateChatMsg) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
	defer cancel()

	if msg.UserID == msg.OtherID {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "a chat needs two distinct users", nil))
		return
	}

	friends, err := a.store.AreFriends(ctx, msg.UserID, msg.OtherID)
	if err != nil {
		context.Respond(asAppError(err, "check friendship"))
		return
	}
	if !friends {
		context.Respond(utils.NewForbiddenError("chats are only available between friends"))
		return
	}

	chat, created, err := a.store.FindOrCreateChat(ctx, msg.UserID, msg.OtherID, a.now())
	if err != nil {
		context.Respond(asAppError(err, "provision chat"))
		return
	}
	context.Respond(&ChatResult{Chat: chat, Created: created})
}

func (a *FriendActor) handleListChats(context actor.Context, msg *ListChatsMsg) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
	defer cancel()

	limit := msg.Limit
	if limit <= 0 {
		limit = DefaultChatListLimit
	}

	chats, err := a.store.GetChatsForUser(ctx, msg.UserID, limit)
	if err != nil {
		context.Respond(asAppError(err, "list chats"))
		return
	}

	conversations := make([]*models.Conversation, 0, len(chats))
	for _, chat := range chats {
		otherID, ok := chat.Other(msg.UserID)
		if !ok {
			continue
		}
		receiver := models.UserSummary{ID: otherID}
		if s := a.summary(ctx, otherID); s != nil {
			receiver = *s
		}
		conversations = append(conversations, &models.Conversation{
			ID:          chat.ID,
			Sender:      msg.UserID,
			Receiver:    receiver,
			LastMessage: chat.LastMessage,
			UpdatedAt:   chat.LastActivityAt,
		})
	}
	context.Respond(conversations)
}

func (a *FriendActor) handleGetMessages(context actor.Context, msg *GetMessagesMsg) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
	defer cancel()

	chat, err := a.store.GetChat(ctx, msg.ChatID)
	if err != nil {
		context.Respond(asAppError(err, "get chat"))
		return
	}
	if _, ok := chat.Other(msg.UserID); !ok {
		context.Respond(utils.NewForbiddenError("not a participant of this chat"))
		return
	}

	limit := msg.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	messages, err := a.store.GetChatMessages(ctx, chat.ID, limit)
	if err != nil {
		context.Respond(asAppError(err, "get chat messages"))
		return
	}
	if messages == nil {
		messages = []*models.DirectMessage{}
	}
	context.Respond(messages)
}

func (a *FriendActor) handleListFriends(context actor.Context, msg *ListFriendsMsg) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
	defer cancel()

	ids, err := a.store.GetFriendIDs(ctx, msg.UserID)
	if err != nil {
		context.Respond(asAppError(err, "list friends"))
		return
	}

	friends := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		if s := a.summary(ctx, id); s != nil {
			friends = append(friends, *s)
		} else {
			friends = append(friends, models.UserSummary{ID: id})
		}
	}
	context.Respond(friends)
}

// summary returns nil when the user cannot be loaded.
func (a *FriendActor) summary(ctx stdctx.Context, id uuid.UUID) *models.UserSummary {
	user, err := a.store.GetUser(ctx, id)
	if err != nil {
		if !utils.IsNotFound(err) {
			a.logger.Warn("loading user summary", "user_id", id, "error", err)
		}
		return nil
	}
	s := user.Summary()
	return &s
}

// asAppError passes AppErrors through and wraps anything else as a store
// failure of op.
func asAppError(err error, op string) *utils.AppError {
	if appErr, ok := utils.AsAppError(err); ok {
		return appErr
	}
	return utils.NewStoreUnavailableError(op, err)
}
