package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"glooo/internal/database"
	"glooo/internal/models"
	"glooo/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore refuses message writes and delegates everything else.
type failingStore struct {
	*database.MemoryStore
}

var errWriteRefused = errors.New("write refused")

func (f failingStore) InsertDirectMessage(ctx context.Context, msg *models.DirectMessage) error {
	return utils.NewStoreUnavailableError("InsertDirectMessage", errWriteRefused)
}

func (f failingStore) InsertGroupMessage(ctx context.Context, msg *models.GroupMessage) error {
	return utils.NewStoreUnavailableError("InsertGroupMessage", errWriteRefused)
}

type routerFixture struct {
	store    *database.MemoryStore
	registry *Registry
	router   *Router
	now      time.Time
}

func newRouterFixture(t *testing.T, wrap func(*database.MemoryStore) database.Store) *routerFixture {
	t.Helper()
	mem := database.NewMemoryStore()
	var store database.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	registry := NewRegistry(nil, nil)
	router := NewRouter(store, registry, nil, nil)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	router.Now = func() time.Time { return now }
	return &routerFixture{store: mem, registry: registry, router: router, now: now}
}

// connect registers an outbox for user and returns it as a Sender.
func (f *routerFixture) connect(user uuid.UUID) Sender {
	outbox := NewOutbox(16, nil)
	f.registry.Register(user, outbox)
	return Sender{ID: user, Outbox: outbox}
}

func decodeFrames(t *testing.T, outbox *Outbox) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, raw := range outbox.Drain() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func TestRouteDirectDeliversAndPersists(t *testing.T) {
	f := newRouterFixture(t, nil)
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()

	chat, _, err := f.store.FindOrCreateChat(ctx, u1, u2, f.now.Add(-time.Hour))
	require.NoError(t, err)

	recipient := f.connect(u1)
	sender := f.connect(u2)

	err = f.router.HandleRaw(ctx, sender, []byte(`{"type":"direct","chat_id":"`+chat.ID.String()+`","to_id":"`+u1.String()+`","from_id":"`+uuid.NewString()+`","content":"hi"}`))
	require.NoError(t, err)

	frames := decodeFrames(t, recipient.Outbox)
	require.Len(t, frames, 1)
	assert.Equal(t, "direct", frames[0]["type"])
	assert.Equal(t, u2.String(), frames[0]["from_id"], "sender comes from the session, not the payload")
	assert.Equal(t, "hi", frames[0]["content"])
	assert.Empty(t, decodeFrames(t, sender.Outbox))

	messages, err := f.store.GetChatMessages(ctx, chat.ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, u2, messages[0].FromID)
	assert.Equal(t, u1, messages[0].ToID)
	assert.True(t, messages[0].CreatedAt.Equal(f.now))

	updated, err := f.store.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.True(t, updated.LastActivityAt.Equal(f.now))
	require.NotNil(t, updated.LastMessage)
	assert.Equal(t, "hi", updated.LastMessage.Content)
}

func TestRouteDirectOfflineRecipientStillPersists(t *testing.T) {
	f := newRouterFixture(t, nil)
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	chat, _, err := f.store.FindOrCreateChat(ctx, u1, u2, f.now)
	require.NoError(t, err)

	sender := f.connect(u2)
	err = f.router.Route(ctx, sender, &models.DirectFrame{ChatID: chat.ID, ToID: u1, Content: "later"})
	require.NoError(t, err)

	messages, err := f.store.GetChatMessages(ctx, chat.ID, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.Empty(t, decodeFrames(t, sender.Outbox))
}

func TestRouteDirectToSelfIsDropped(t *testing.T) {
	f := newRouterFixture(t, nil)
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	chat, _, err := f.store.FindOrCreateChat(ctx, u1, u2, f.now)
	require.NoError(t, err)

	sender := f.connect(u1)
	err = f.router.Route(ctx, sender, &models.DirectFrame{ChatID: chat.ID, ToID: u1, Content: "me"})
	require.NoError(t, err)

	frames := decodeFrames(t, sender.Outbox)
	require.Len(t, frames, 1, "only the warning reaches the sender")
	assert.Equal(t, "error", frames[0]["type"])

	messages, err := f.store.GetChatMessages(ctx, chat.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestRouteDirectUnknownChatIsViolation(t *testing.T) {
	f := newRouterFixture(t, nil)
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	recipient := f.connect(u1)
	sender := f.connect(u2)

	unknown := uuid.New()
	err := f.router.Route(ctx, sender, &models.DirectFrame{ChatID: unknown, ToID: u1, Content: "hi"})
	assert.ErrorIs(t, err, ErrProtocolViolation)

	assert.Empty(t, decodeFrames(t, recipient.Outbox))
	messages, err := f.store.GetChatMessages(ctx, unknown, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestRouteDirectWrongParticipantsIsForbidden(t *testing.T) {
	f := newRouterFixture(t, nil)
	ctx := context.Background()
	u1, u2, intruder := uuid.New(), uuid.New(), uuid.New()
	chat, _, err := f.store.FindOrCreateChat(ctx, u1, u2, f.now)
	require.NoError(t, err)

	recipient := f.connect(u1)
	sender := f.connect(intruder)

	err = f.router.Route(ctx, sender, &models.DirectFrame{ChatID: chat.ID, ToID: u1, Content: "hey"})
	require.NoError(t, err)

	frames := decodeFrames(t, sender.Outbox)
	require.Len(t, frames, 1)
	assert.Equal(t, utils.ErrForbidden, frames[0]["code"])
	assert.Empty(t, decodeFrames(t, recipient.Outbox))

	messages, err := f.store.GetChatMessages(ctx, chat.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestRouteDirectStoreFailureWarnsSender(t *testing.T) {
	f := newRouterFixture(t, func(m *database.MemoryStore) database.Store { return failingStore{m} })
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()
	chat, _, err := f.store.FindOrCreateChat(ctx, u1, u2, f.now)
	require.NoError(t, err)

	recipient := f.connect(u1)
	sender := f.connect(u2)

	err = f.router.Route(ctx, sender, &models.DirectFrame{ChatID: chat.ID, ToID: u1, Content: "hi"})
	require.NoError(t, err, "store failures never end the session")

	// Live delivery is not rolled back
	assert.Len(t, decodeFrames(t, recipient.Outbox), 1)

	frames := decodeFrames(t, sender.Outbox)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0]["type"])
	assert.Equal(t, utils.ErrStoreUnavailable, frames[0]["code"])
	assert.Equal(t, "unable to store message", frames[0]["err"])
	assert.NotEmpty(t, frames[0]["ref"])
}

func TestRouteGroupFanOut(t *testing.T) {
	f := newRouterFixture(t, nil)
	ctx := context.Background()
	admin, member, offline := uuid.New(), uuid.New(), uuid.New()
	group := &models.Group{
		ID:      uuid.New(),
		Admins:  []uuid.UUID{admin},
		Members: []uuid.UUID{admin, member, offline},
	}
	require.NoError(t, f.store.CreateGroup(ctx, group))

	adminSession := f.connect(admin)
	memberSession := f.connect(member)

	err := f.router.Route(ctx, adminSession, &models.GroupFrame{GroupID: group.ID, Content: "hello all"})
	require.NoError(t, err)

	for _, s := range []Sender{adminSession, memberSession} {
		frames := decodeFrames(t, s.Outbox)
		require.Len(t, frames, 1)
		assert.Equal(t, "group", frames[0]["type"])
		assert.Equal(t, admin.String(), frames[0]["from_id"])
	}

	history, err := f.store.GetGroupMessages(ctx, group.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1, "persisted once regardless of member count")
}

func TestRouteGroupNonMemberIsForbidden(t *testing.T) {
	f := newRouterFixture(t, nil)
	ctx := context.Background()
	admin, outsider := uuid.New(), uuid.New()
	group := &models.Group{ID: uuid.New(), Admins: []uuid.UUID{admin}, Members: []uuid.UUID{admin}}
	require.NoError(t, f.store.CreateGroup(ctx, group))

	adminSession := f.connect(admin)
	outsiderSession := f.connect(outsider)

	err := f.router.Route(ctx, outsiderSession, &models.GroupFrame{GroupID: group.ID, Content: "let me in"})
	require.NoError(t, err)

	frames := decodeFrames(t, outsiderSession.Outbox)
	require.Len(t, frames, 1)
	assert.Equal(t, utils.ErrForbidden, frames[0]["code"])
	assert.Empty(t, decodeFrames(t, adminSession.Outbox))

	history, err := f.store.GetGroupMessages(ctx, group.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRouteGroupAdminOutsideMemberList(t *testing.T) {
	f := newRouterFixture(t, nil)
	ctx := context.Background()
	admin, member := uuid.New(), uuid.New()
	group := &models.Group{ID: uuid.New(), Admins: []uuid.UUID{admin}, Members: []uuid.UUID{member}}
	require.NoError(t, f.store.CreateGroup(ctx, group))

	adminSession := f.connect(admin)
	memberSession := f.connect(member)

	require.NoError(t, f.router.Route(ctx, adminSession, &models.GroupFrame{GroupID: group.ID, Content: "still here"}))
	require.NoError(t, f.router.Route(ctx, memberSession, &models.GroupFrame{GroupID: group.ID, Content: "hi admin"}))

	for _, s := range []Sender{adminSession, memberSession} {
		frames := decodeFrames(t, s.Outbox)
		require.Len(t, frames, 2)
		for _, frame := range frames {
			assert.Equal(t, "group", frame["type"])
		}
	}

	history, err := f.store.GetGroupMessages(ctx, group.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRouteGroupUnknownIsViolation(t *testing.T) {
	f := newRouterFixture(t, nil)
	sender := f.connect(uuid.New())

	err := f.router.Route(context.Background(), sender, &models.GroupFrame{GroupID: uuid.New()})
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestRouteGroupStoreFailureStillDelivers(t *testing.T) {
	f := newRouterFixture(t, func(m *database.MemoryStore) database.Store { return failingStore{m} })
	ctx := context.Background()
	admin, member := uuid.New(), uuid.New()
	group := &models.Group{ID: uuid.New(), Admins: []uuid.UUID{admin}, Members: []uuid.UUID{admin, member}}
	require.NoError(t, f.store.CreateGroup(ctx, group))

	adminSession := f.connect(admin)
	memberSession := f.connect(member)

	require.NoError(t, f.router.Route(ctx, adminSession, &models.GroupFrame{GroupID: group.ID, Content: "x"}))

	assert.Len(t, decodeFrames(t, memberSession.Outbox), 1)
	frames := decodeFrames(t, adminSession.Outbox)
	require.Len(t, frames, 2)
	assert.Equal(t, "error", frames[0]["type"])
	assert.Equal(t, "group", frames[1]["type"])
}

func TestHandleRawMalformed(t *testing.T) {
	f := newRouterFixture(t, nil)
	sender := f.connect(uuid.New())

	for _, payload := range []string{
		`not json`,
		`{"type":"broadcast","content":"x"}`,
		`{"type":"direct","chat_id":"nope","to_id":"` + uuid.NewString() + `"}`,
		`{"type":"group"}`,
	} {
		err := f.router.HandleRaw(context.Background(), sender, []byte(payload))
		assert.ErrorIs(t, err, ErrProtocolViolation, payload)
	}
}
