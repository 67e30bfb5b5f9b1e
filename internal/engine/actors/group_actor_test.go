package actors

import (
	"context"
	"testing"
	"time"

	"glooo/internal/database"
	"glooo/internal/models"
	"glooo/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spawnGroupActor(system *actor.ActorSystem, store database.Store) *actor.PID {
	return system.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewGroupActor(store, nil, nil)
	}))
}

func TestCreateGroup(t *testing.T) {
	system := actor.NewActorSystem()
	pid := spawnGroupActor(system, database.NewMemoryStore())
	creator, m1, m2 := uuid.New(), uuid.New(), uuid.New()

	result := request(t, system, pid, &CreateGroupMsg{
		CreatorID: creator,
		Name:      " weekend plans ",
		MemberIDs: []uuid.UUID{m1, m2, m1, creator},
	})
	group, ok := result.(*models.Group)
	require.True(t, ok, "got %T: %v", result, result)

	assert.Equal(t, "weekend plans", group.Name)
	assert.Equal(t, []uuid.UUID{creator}, group.Admins)
	assert.Equal(t, []uuid.UUID{creator, m1, m2}, group.Members)
}

func TestMutateMembersRequiresAdmin(t *testing.T) {
	system := actor.NewActorSystem()
	store := database.NewMemoryStore()
	pid := spawnGroupActor(system, store)
	admin, member, newcomer := uuid.New(), uuid.New(), uuid.New()

	group, ok := request(t, system, pid, &CreateGroupMsg{CreatorID: admin, MemberIDs: []uuid.UUID{member}}).(*models.Group)
	require.True(t, ok)

	// A plain member cannot add people
	requireAppError(t, request(t, system, pid, &MutateMembersMsg{
		ActorID: member,
		GroupID: group.ID,
		UserIDs: []uuid.UUID{newcomer},
		Action:  models.MemberAdd,
	}), utils.ErrForbidden)

	stored, err := store.GetGroup(context.Background(), group.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{admin, member}, stored.Members, "group unchanged")

	updated, ok := request(t, system, pid, &MutateMembersMsg{
		ActorID: admin,
		GroupID: group.ID,
		UserIDs: []uuid.UUID{newcomer, member},
		Action:  models.MemberAdd,
	}).(*models.Group)
	require.True(t, ok)
	assert.ElementsMatch(t, []uuid.UUID{admin, member, newcomer}, updated.Members)

	updated, ok = request(t, system, pid, &MutateMembersMsg{
		ActorID: admin,
		GroupID: group.ID,
		UserIDs: []uuid.UUID{member, uuid.New()},
		Action:  models.MemberRemove,
	}).(*models.Group)
	require.True(t, ok)
	assert.ElementsMatch(t, []uuid.UUID{admin, newcomer}, updated.Members)

	requireAppError(t, request(t, system, pid, &MutateMembersMsg{
		ActorID: admin, GroupID: group.ID, Action: "promote",
	}), utils.ErrInvalidInput)

	requireAppError(t, request(t, system, pid, &MutateMembersMsg{
		ActorID: admin, GroupID: uuid.New(), Action: models.MemberAdd,
	}), utils.ErrNotFound)
}

func TestGroupQueries(t *testing.T) {
	system := actor.NewActorSystem()
	store := database.NewMemoryStore()
	pid := spawnGroupActor(system, store)
	admin, member, outsider := uuid.New(), uuid.New(), uuid.New()

	group, ok := request(t, system, pid, &CreateGroupMsg{CreatorID: admin, Name: "g", MemberIDs: []uuid.UUID{member}}).(*models.Group)
	require.True(t, ok)

	ctx := context.Background()
	for i, content := range []string{"first", "second"} {
		require.NoError(t, store.InsertGroupMessage(ctx, &models.GroupMessage{
			ID:        uuid.New(),
			GroupID:   group.ID,
			FromID:    admin,
			Content:   content,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	fetched, ok := request(t, system, pid, &GetGroupMsg{UserID: member, GroupID: group.ID}).(*models.Group)
	require.True(t, ok)
	assert.Equal(t, "g", fetched.Name)

	groups, ok := request(t, system, pid, &ListGroupsMsg{UserID: member}).([]*models.Group)
	require.True(t, ok)
	assert.Len(t, groups, 1)

	groups, ok = request(t, system, pid, &ListGroupsMsg{UserID: outsider}).([]*models.Group)
	require.True(t, ok)
	assert.Empty(t, groups)

	history, ok := request(t, system, pid, &GetGroupMessagesMsg{UserID: member, GroupID: group.ID}).([]*models.GroupMessage)
	require.True(t, ok)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Content)

	requireAppError(t, request(t, system, pid, &GetGroupMsg{UserID: outsider, GroupID: group.ID}), utils.ErrForbidden)
	requireAppError(t, request(t, system, pid, &GetGroupMessagesMsg{UserID: outsider, GroupID: group.ID}), utils.ErrForbidden)
}
