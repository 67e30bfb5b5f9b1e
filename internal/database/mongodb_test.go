package database

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"glooo/internal/models"
	"glooo/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMongo connects to MONGO_TEST_URI with a throwaway database.
func newTestMongo(t *testing.T) *MongoDB {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx := context.Background()
	dbName := fmt.Sprintf("glooo_test_%d", time.Now().UnixNano())
	m, err := NewMongoDB(ctx, uri, dbName, 10*time.Second, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = m.Client.Database(dbName).Drop(context.Background())
		_ = m.Close(context.Background())
	})
	return m
}

func TestMongoFindOrCreateChat(t *testing.T) {
	m := newTestMongo(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	results := make([]*models.Chat, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a, b
			if i%2 == 1 {
				x, y = b, a
			}
			chat, _, err := m.FindOrCreateChat(ctx, x, y, time.Now())
			if assert.NoError(t, err) {
				results[i] = chat
			}
		}(i)
	}
	wg.Wait()

	for _, chat := range results {
		require.NotNil(t, chat)
		assert.Equal(t, results[0].ID, chat.ID)
	}

	exists, err := m.ChatExists(ctx, results[0].ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMongoFriendRequestLifecycle(t *testing.T) {
	m := newTestMongo(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, m.InsertFriendRequest(ctx, newRequest(a, b, time.Now())))
	err := m.InsertFriendRequest(ctx, newRequest(a, b, time.Now()))
	assert.True(t, utils.IsErrorCode(err, utils.ErrDuplicateRequest))

	_, err = m.ClaimFriendRequest(ctx, a, b)
	require.NoError(t, err)
	_, err = m.ClaimFriendRequest(ctx, a, b)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidStatus))

	require.NoError(t, m.DeleteFriendRequest(ctx, a, b))
	_, err = m.ClaimFriendRequest(ctx, a, b)
	assert.True(t, utils.IsNotFound(err))

	require.NoError(t, m.InsertFriendship(ctx, &models.Friendship{ID: uuid.New(), Users: [2]uuid.UUID{a, b}, CreatedAt: time.Now()}))
	err = m.InsertFriendship(ctx, &models.Friendship{ID: uuid.New(), Users: [2]uuid.UUID{b, a}, CreatedAt: time.Now()})
	assert.True(t, utils.IsConflict(err))

	ids, err := m.GetFriendIDs(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b}, ids)
}

func TestMongoGroupMembersAndHistory(t *testing.T) {
	m := newTestMongo(t)
	ctx := context.Background()
	admin, u1 := uuid.New(), uuid.New()

	group := &models.Group{ID: uuid.New(), Admins: []uuid.UUID{admin}, Members: []uuid.UUID{admin}, CreatedAt: time.Now()}
	require.NoError(t, m.CreateGroup(ctx, group))

	updated, err := m.UpdateGroupMembers(ctx, group.ID, []uuid.UUID{u1, u1, admin}, models.MemberAdd)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{admin, u1}, updated.Members)

	updated, err = m.UpdateGroupMembers(ctx, group.ID, []uuid.UUID{u1}, models.MemberRemove)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{admin}, updated.Members)

	base := time.Now().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.InsertGroupMessage(ctx, &models.GroupMessage{
			ID:        uuid.New(),
			GroupID:   group.ID,
			FromID:    admin,
			Content:   fmt.Sprintf("msg-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	history, err := m.GetGroupMessages(ctx, group.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "msg-1", history[0].Content)
	assert.Equal(t, "msg-2", history[1].Content)
}

func TestMongoStaleChatActivity(t *testing.T) {
	checkStaleActivityIgnored(t, newTestMongo(t))
}

func TestMongoRequestArrivalOrder(t *testing.T) {
	checkRequestArrivalOrder(t, newTestMongo(t))
}
