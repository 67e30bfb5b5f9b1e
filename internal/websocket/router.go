package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"glooo/internal/database"
	"glooo/internal/models"
	"glooo/internal/utils"

	"github.com/google/uuid"
)

// ErrProtocolViolation ends the session that produced the frame.
var ErrProtocolViolation = errors.New("protocol violation")

const defaultStoreTimeout = 5 * time.Second

// Sender is the authenticated origin of a frame. Outbox receives the
// warnings produced while routing.
type Sender struct {
	ID     uuid.UUID
	Outbox *Outbox
}

func (s Sender) warn(code, message, ref string) {
	if s.Outbox == nil {
		return
	}
	_, _ = s.Outbox.Push(models.EncodeError(code, message, ref))
}

// Router validates inbound frames, delivers them to online recipients and
// persists them through the store.
type Router struct {
	store    database.Store
	registry *Registry
	metrics  *utils.MetricsCollector
	logger   *slog.Logger

	// Now stamps receipt time. Replaceable in tests.
	Now          func() time.Time
	StoreTimeout time.Duration
}

func NewRouter(store database.Store, registry *Registry, metrics *utils.MetricsCollector, logger *slog.Logger) *Router {
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:        store,
		registry:     registry,
		metrics:      metrics,
		logger:       logger.With("component", "router"),
		Now:          func() time.Time { return time.Now().UTC() },
		StoreTimeout: defaultStoreTimeout,
	}
}

// HandleRaw decodes one text payload and routes it. A payload that does not
// decode is a protocol violation.
func (r *Router) HandleRaw(ctx context.Context, from Sender, data []byte) error {
	frame, err := models.DecodeFrame(data)
	if err != nil {
		r.metrics.FrameRouted("unknown", "violation")
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	return r.Route(ctx, from, frame)
}

// Route handles one decoded frame. Only ErrProtocolViolation is returned;
// every other failure is reported to the sender as an error frame.
func (r *Router) Route(ctx context.Context, from Sender, frame models.Frame) error {
	if frame == nil {
		return fmt.Errorf("%w: empty frame", ErrProtocolViolation)
	}
	start := time.Now()
	defer func() { r.metrics.AddOperationLatency("route_"+frame.Kind(), time.Since(start)) }()

	switch f := frame.(type) {
	case *models.DirectFrame:
		return r.routeDirect(ctx, from, f)
	case *models.GroupFrame:
		return r.routeGroup(ctx, from, f)
	default:
		return fmt.Errorf("%w: unsupported frame %T", ErrProtocolViolation, frame)
	}
}

// storeContext outlives the session context so a write that has started
// completes even when the connection drops.
func (r *Router) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.StoreTimeout)
}

func (r *Router) routeDirect(ctx context.Context, from Sender, f *models.DirectFrame) error {
	log := r.logger.With("from", from.ID, "to", f.ToID, "chat_id", f.ChatID)

	if f.ToID == from.ID {
		log.Warn("dropping self-addressed direct message")
		r.metrics.FrameRouted(models.FrameDirect, "self")
		from.warn(utils.ErrInvalidInput, "cannot send a message to yourself", f.ChatID.String())
		return nil
	}

	sctx, cancel := r.storeContext(ctx)
	defer cancel()

	chat, err := r.store.GetChat(sctx, f.ChatID)
	switch {
	case utils.IsNotFound(err):
		log.Error("chat does not exist")
		r.metrics.FrameRouted(models.FrameDirect, "violation")
		return fmt.Errorf("%w: chat %s does not exist", ErrProtocolViolation, f.ChatID)
	case err != nil:
		log.Error("chat lookup failed", "error", err)
		r.metrics.StoreFailure(models.FrameDirect)
		from.warn(errorCode(err), "unable to send message", f.ChatID.String())
		return nil
	}

	if !chat.HasParticipants(from.ID, f.ToID) {
		log.Warn("sender and recipient are not the chat's participants")
		r.metrics.FrameRouted(models.FrameDirect, "forbidden")
		from.warn(utils.ErrForbidden, "not a participant of this chat", f.ChatID.String())
		return nil
	}

	msg := &models.DirectMessage{
		ID:        uuid.New(),
		ChatID:    chat.ID,
		FromID:    from.ID,
		ToID:      f.ToID,
		Content:   f.Content,
		CreatedAt: r.Now(),
	}

	payload, err := models.EncodeDirect(msg)
	if err != nil {
		log.Error("encoding direct message", "error", err)
	} else if err := r.registry.Send(f.ToID, payload); err != nil {
		if errors.Is(err, ErrNotConnected) {
			log.Debug("recipient offline")
		} else {
			log.Warn("live delivery failed", "error", err)
		}
	}

	if err := r.store.InsertDirectMessage(sctx, msg); err != nil {
		log.Error("failed to add the message", "error", err)
		r.metrics.StoreFailure(models.FrameDirect)
		r.metrics.FrameRouted(models.FrameDirect, "store_error")
		from.warn(errorCode(err), "unable to store message", msg.ID.String())
		return nil
	}
	r.metrics.MessageStored(models.FrameDirect)

	if err := r.store.UpdateChatLastActivity(sctx, chat.ID, msg); err != nil {
		log.Error("failed to update chat activity", "error", err)
		r.metrics.StoreFailure(models.FrameDirect)
		from.warn(errorCode(err), "unable to update chat", msg.ID.String())
	}

	r.metrics.FrameRouted(models.FrameDirect, "ok")
	return nil
}

func (r *Router) routeGroup(ctx context.Context, from Sender, f *models.GroupFrame) error {
	log := r.logger.With("from", from.ID, "group_id", f.GroupID)

	sctx, cancel := r.storeContext(ctx)
	defer cancel()

	group, err := r.store.GetGroup(sctx, f.GroupID)
	switch {
	case utils.IsNotFound(err):
		log.Error("group does not exist")
		r.metrics.FrameRouted(models.FrameGroup, "violation")
		return fmt.Errorf("%w: group %s does not exist", ErrProtocolViolation, f.GroupID)
	case err != nil:
		log.Error("group lookup failed", "error", err)
		r.metrics.StoreFailure(models.FrameGroup)
		from.warn(errorCode(err), "unable to send message", f.GroupID.String())
		return nil
	}

	if !group.HasParticipant(from.ID) {
		log.Warn("sender is not a group member")
		r.metrics.FrameRouted(models.FrameGroup, "forbidden")
		from.warn(utils.ErrForbidden, "not a member of this group", f.GroupID.String())
		return nil
	}

	msg := &models.GroupMessage{
		ID:        uuid.New(),
		GroupID:   group.ID,
		FromID:    from.ID,
		Content:   f.Content,
		CreatedAt: r.Now(),
	}

	outcome := "ok"
	if err := r.store.InsertGroupMessage(sctx, msg); err != nil {
		log.Error("failed to add the message", "error", err)
		r.metrics.StoreFailure(models.FrameGroup)
		from.warn(errorCode(err), "unable to store message", msg.ID.String())
		outcome = "store_error"
	} else {
		r.metrics.MessageStored(models.FrameGroup)
	}

	payload, err := models.EncodeGroup(msg)
	if err != nil {
		log.Error("encoding group message", "error", err)
		r.metrics.FrameRouted(models.FrameGroup, "encode_error")
		return nil
	}

	recipients := group.Participants()
	delivered := 0
	for _, member := range recipients {
		err := r.registry.Send(member, payload)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrNotConnected):
		default:
			log.Warn("live delivery failed", "member", member, "error", err)
		}
	}
	log.Debug("group message fanned out", "recipients", len(recipients), "delivered", delivered)

	r.metrics.FrameRouted(models.FrameGroup, outcome)
	return nil
}

func errorCode(err error) string {
	if appErr, ok := utils.AsAppError(err); ok {
		return appErr.Code
	}
	return utils.ErrStoreUnavailable
}
