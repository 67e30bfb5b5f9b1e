package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"glooo/internal/models"
	"glooo/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(from, to uuid.UUID, at time.Time) *models.FriendRequest {
	return &models.FriendRequest{
		ID:        uuid.New(),
		FromID:    from,
		ToID:      to,
		Status:    models.RequestPending,
		CreatedAt: at,
	}
}

func TestMemoryStoreUsers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	alice := &models.User{ID: uuid.New(), Name: "Alice", Username: "alice", Email: "Alice@Example.com", CreatedAt: now}
	require.NoError(t, store.CreateUser(ctx, alice))

	// Same username, different email
	err := store.CreateUser(ctx, &models.User{ID: uuid.New(), Username: "alice", Email: "other@example.com"})
	assert.True(t, utils.IsErrorCode(err, utils.ErrUserAlreadyExists))

	// Email lookups ignore case
	found, err := store.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)

	_, err = store.GetUser(ctx, uuid.New())
	assert.True(t, utils.IsNotFound(err))

	require.NoError(t, store.UpdateLastLogin(ctx, alice.ID, now.Add(time.Minute)))
	found, err = store.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, found.LastLogin)
	assert.True(t, found.LastLogin.Equal(now.Add(time.Minute)))

	require.NoError(t, store.CreateUser(ctx, &models.User{ID: uuid.New(), Username: "malice", Email: "m@example.com"}))
	require.NoError(t, store.CreateUser(ctx, &models.User{ID: uuid.New(), Username: "bob", Email: "b@example.com"}))

	users, err := store.SearchUsers(ctx, "ALI", 5)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "malice", users[1].Username)
}

func TestMemoryStoreDuplicateRequest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, store.InsertFriendRequest(ctx, newRequest(a, b, time.Now())))

	err := store.InsertFriendRequest(ctx, newRequest(a, b, time.Now()))
	assert.True(t, utils.IsErrorCode(err, utils.ErrDuplicateRequest))
	assert.True(t, utils.IsConflict(err))

	// The reverse direction is a different ordered pair
	assert.NoError(t, store.InsertFriendRequest(ctx, newRequest(b, a, time.Now())))
}

func TestMemoryStoreClaimFriendRequest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a, b := uuid.New(), uuid.New()

	_, err := store.ClaimFriendRequest(ctx, a, b)
	assert.True(t, utils.IsNotFound(err))

	require.NoError(t, store.InsertFriendRequest(ctx, newRequest(a, b, time.Now())))

	claimed, err := store.ClaimFriendRequest(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, models.RequestResolved, claimed.Status)

	_, err = store.ClaimFriendRequest(ctx, a, b)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidStatus))

	// Claimed requests drop out of the pending lists until released
	incoming, err := store.ListIncomingRequests(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, incoming)

	require.NoError(t, store.ReleaseFriendRequest(ctx, a, b))
	_, err = store.ClaimFriendRequest(ctx, a, b)
	assert.NoError(t, err)

	require.NoError(t, store.DeleteFriendRequest(ctx, a, b))
	assert.True(t, utils.IsNotFound(store.DeleteFriendRequest(ctx, a, b)))
}

func TestMemoryStoreConcurrentClaim(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a, b := uuid.New(), uuid.New()
	require.NoError(t, store.InsertFriendRequest(ctx, newRequest(a, b, time.Now())))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ClaimFriendRequest(ctx, a, b); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryStoreIncomingOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	target := uuid.New()
	at := time.Now()

	senders := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, s := range senders {
		// Identical timestamps still come back in arrival order
		require.NoError(t, store.InsertFriendRequest(ctx, newRequest(s, target, at)))
	}

	incoming, err := store.ListIncomingRequests(ctx, target)
	require.NoError(t, err)
	require.Len(t, incoming, 3)
	for i, req := range incoming {
		assert.Equal(t, senders[i], req.FromID)
	}

	outgoing, err := store.ListOutgoingRequests(ctx, senders[1])
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, target, outgoing[0].ToID)
}

func TestMemoryStoreFindOrCreateChatConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a, b := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 20)
	created := make([]bool, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Alternate the argument order to mimic accepts from both sides
			x, y := a, b
			if i%2 == 1 {
				x, y = b, a
			}
			chat, isNew, err := store.FindOrCreateChat(ctx, x, y, time.Now())
			if assert.NoError(t, err) {
				ids[i] = chat.ID
				created[i] = isNew
			}
		}(i)
	}
	wg.Wait()

	newCount := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			newCount++
		}
	}
	assert.Equal(t, 1, newCount)

	chats, err := store.GetChatsForUser(ctx, a, 0)
	require.NoError(t, err)
	assert.Len(t, chats, 1)

	_, _, err = store.FindOrCreateChat(ctx, a, a, time.Now())
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
}

func TestMemoryStoreChatActivityAndMessages(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a, b := uuid.New(), uuid.New()
	start := time.Now()

	chat, _, err := store.FindOrCreateChat(ctx, a, b, start)
	require.NoError(t, err)

	for i, content := range []string{"one", "two", "three"} {
		msg := &models.DirectMessage{
			ID:        uuid.New(),
			ChatID:    chat.ID,
			FromID:    a,
			ToID:      b,
			Content:   content,
			CreatedAt: start.Add(time.Duration(i+1) * time.Second),
		}
		require.NoError(t, store.InsertDirectMessage(ctx, msg))
		require.NoError(t, store.UpdateChatLastActivity(ctx, chat.ID, msg))
	}

	messages, err := store.GetChatMessages(ctx, chat.ID, 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "two", messages[0].Content)
	assert.Equal(t, "three", messages[1].Content)

	updated, err := store.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastMessage)
	assert.Equal(t, "three", updated.LastMessage.Content)
	assert.True(t, updated.LastActivityAt.After(start))

	err = store.UpdateChatLastActivity(ctx, uuid.New(), messages[0])
	assert.True(t, utils.IsNotFound(err))
}

// checkStaleActivityIgnored applies the newer message's snapshot first and
// then an older one; the chat must keep the newer.
func checkStaleActivityIgnored(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	start := time.Now().UTC().Truncate(time.Millisecond)

	chat, _, err := store.FindOrCreateChat(ctx, a, b, start)
	require.NoError(t, err)

	message := func(content string, offset time.Duration) *models.DirectMessage {
		return &models.DirectMessage{
			ID:        uuid.New(),
			ChatID:    chat.ID,
			FromID:    a,
			ToID:      b,
			Content:   content,
			CreatedAt: start.Add(offset),
		}
	}
	require.NoError(t, store.UpdateChatLastActivity(ctx, chat.ID, message("newer", 2*time.Second)))
	require.NoError(t, store.UpdateChatLastActivity(ctx, chat.ID, message("older", time.Second)))

	got, err := store.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "newer", got.LastMessage.Content)
	assert.True(t, got.LastActivityAt.Equal(start.Add(2*time.Second)))

	err = store.UpdateChatLastActivity(ctx, uuid.New(), message("lost", 3*time.Second))
	assert.True(t, utils.IsNotFound(err))
}

func TestMemoryStoreStaleChatActivity(t *testing.T) {
	checkStaleActivityIgnored(t, NewMemoryStore())
}

// checkRequestArrivalOrder inserts requests sharing one timestamp and
// expects them listed in insertion order.
func checkRequestArrivalOrder(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	target := uuid.New()
	at := time.Now().UTC().Truncate(time.Millisecond)

	senders := make([]uuid.UUID, 6)
	for i := range senders {
		senders[i] = uuid.New()
		require.NoError(t, store.InsertFriendRequest(ctx, newRequest(senders[i], target, at)))
	}

	incoming, err := store.ListIncomingRequests(ctx, target)
	require.NoError(t, err)
	require.Len(t, incoming, len(senders))
	for i, req := range incoming {
		assert.Equal(t, senders[i], req.FromID)
	}
}

func TestMemoryStoreRequestArrivalOrder(t *testing.T) {
	checkRequestArrivalOrder(t, NewMemoryStore())
}

func TestMemoryStoreFriendships(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, store.InsertFriendship(ctx, &models.Friendship{ID: uuid.New(), Users: [2]uuid.UUID{a, b}}))
	err := store.InsertFriendship(ctx, &models.Friendship{ID: uuid.New(), Users: [2]uuid.UUID{b, a}})
	assert.True(t, utils.IsConflict(err))

	friends, err := store.AreFriends(ctx, b, a)
	require.NoError(t, err)
	assert.True(t, friends)

	friends, err = store.AreFriends(ctx, a, c)
	require.NoError(t, err)
	assert.False(t, friends)

	ids, err := store.GetFriendIDs(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a}, ids)
}

func TestMemoryStoreGroupMembers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	admin, u1, u2, u3 := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	group := &models.Group{
		ID:        uuid.New(),
		Admins:    []uuid.UUID{admin},
		Members:   []uuid.UUID{admin, u1},
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateGroup(ctx, group))

	// Union: u1 is already present
	updated, err := store.UpdateGroupMembers(ctx, group.ID, []uuid.UUID{u1, u2, u3}, models.MemberAdd)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{admin, u1, u2, u3}, updated.Members)

	// Difference: removing a non-member is a no-op
	updated, err = store.UpdateGroupMembers(ctx, group.ID, []uuid.UUID{u2, uuid.New()}, models.MemberRemove)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{admin, u1, u3}, updated.Members)

	_, err = store.UpdateGroupMembers(ctx, group.ID, []uuid.UUID{u1}, models.MemberAction("promote"))
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	_, err = store.UpdateGroupMembers(ctx, uuid.New(), []uuid.UUID{u1}, models.MemberAdd)
	assert.True(t, utils.IsNotFound(err))

	groups, err := store.GetGroupsForUser(ctx, u3)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, group.ID, groups[0].ID)

	groups, err = store.GetGroupsForUser(ctx, u2)
	require.NoError(t, err)
	assert.Empty(t, groups)

	// Returned groups are copies
	groups, _ = store.GetGroupsForUser(ctx, u3)
	groups[0].Members = nil
	stored, err := store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Members, 3)
}
