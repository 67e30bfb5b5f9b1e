package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"glooo/internal/models"
	"glooo/internal/utils"

	"github.com/google/uuid"
)

type requestKey struct {
	from uuid.UUID
	to   uuid.UUID
}

type sequenced[T any] struct {
	seq uint64
	val T
}

// MemoryStore keeps every record in process memory behind one mutex.
// It backs DB_TYPE=memory and the test suites.
type MemoryStore struct {
	mu  sync.Mutex
	seq uint64

	users           map[uuid.UUID]*models.User
	usersByEmail    map[string]uuid.UUID
	usersByUsername map[string]uuid.UUID

	requests    map[requestKey]sequenced[*models.FriendRequest]
	friendships map[string]*models.Friendship

	chats       map[uuid.UUID]*models.Chat
	chatsByPair map[string]uuid.UUID
	messages    map[uuid.UUID][]*models.DirectMessage

	groups        map[uuid.UUID]*models.Group
	groupMessages map[uuid.UUID][]*models.GroupMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:           make(map[uuid.UUID]*models.User),
		usersByEmail:    make(map[string]uuid.UUID),
		usersByUsername: make(map[string]uuid.UUID),
		requests:        make(map[requestKey]sequenced[*models.FriendRequest]),
		friendships:     make(map[string]*models.Friendship),
		chats:           make(map[uuid.UUID]*models.Chat),
		chatsByPair:     make(map[string]uuid.UUID),
		messages:        make(map[uuid.UUID][]*models.DirectMessage),
		groups:          make(map[uuid.UUID]*models.Group),
		groupMessages:   make(map[uuid.UUID][]*models.GroupMessage),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Close(ctx context.Context) error { return nil }

// ========== Users ==========

func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := m.usersByUsername[user.Username]; ok {
		return utils.NewAppError(utils.ErrUserAlreadyExists, "user already exists with this username", nil)
	}
	if _, ok := m.usersByEmail[email]; ok {
		return utils.NewAppError(utils.ErrUserAlreadyExists, "user already exists with this email", nil)
	}
	if _, ok := m.users[user.ID]; ok {
		return utils.NewConflictError("user id already taken", nil)
	}

	cp := *user
	m.users[user.ID] = &cp
	m.usersByEmail[email] = user.ID
	m.usersByUsername[user.Username] = user.ID
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, utils.NewUserNotFoundError(id.String())
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, utils.NewUserNotFoundError(email)
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemoryStore) UpdateLastLogin(ctx context.Context, id uuid.UUID, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return utils.NewUserNotFoundError(id.String())
	}
	u.LastLogin = &when
	u.UpdatedAt = when
	return nil
}

func (m *MemoryStore) SearchUsers(ctx context.Context, query string, limit int) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	query = strings.ToLower(query)
	var out []*models.User
	for _, u := range m.users {
		if strings.Contains(strings.ToLower(u.Username), query) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ========== Chats ==========

func (m *MemoryStore) FindOrCreateChat(ctx context.Context, a, b uuid.UUID, now time.Time) (*models.Chat, bool, error) {
	if a == b {
		return nil, false, utils.NewAppError(utils.ErrInvalidInput, "a chat needs two distinct users", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := models.PairKey(a, b)
	if id, ok := m.chatsByPair[key]; ok {
		return copyChat(m.chats[id]), false, nil
	}

	chat := &models.Chat{
		ID:             uuid.New(),
		Users:          models.OrderedPair(a, b),
		PairKey:        key,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	m.chats[chat.ID] = chat
	m.chatsByPair[key] = chat.ID
	return copyChat(chat), true, nil
}

func (m *MemoryStore) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, ok := m.chats[id]
	if !ok {
		return nil, utils.NewNotFoundError("chat not found")
	}
	return copyChat(chat), nil
}

func (m *MemoryStore) ChatExists(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.chats[id]
	return ok, nil
}

func (m *MemoryStore) GetChatsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Chat
	for _, chat := range m.chats {
		if chat.Users[0] == userID || chat.Users[1] == userID {
			out = append(out, copyChat(chat))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateChatLastActivity(ctx context.Context, chatID uuid.UUID, msg *models.DirectMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, ok := m.chats[chatID]
	if !ok {
		return utils.NewNotFoundError("chat not found")
	}
	if msg.CreatedAt.Before(chat.LastActivityAt) {
		return nil
	}
	snapshot := *msg
	chat.LastMessage = &snapshot
	chat.LastActivityAt = msg.CreatedAt
	return nil
}

// ========== Messages ==========

func (m *MemoryStore) InsertDirectMessage(ctx context.Context, msg *models.DirectMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *msg
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], &cp)
	return nil
}

func (m *MemoryStore) GetChatMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]*models.DirectMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return copyTail(m.messages[chatID], limit), nil
}

func (m *MemoryStore) InsertGroupMessage(ctx context.Context, msg *models.GroupMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *msg
	m.groupMessages[msg.GroupID] = append(m.groupMessages[msg.GroupID], &cp)
	return nil
}

func (m *MemoryStore) GetGroupMessages(ctx context.Context, groupID uuid.UUID, limit int) ([]*models.GroupMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return copyTail(m.groupMessages[groupID], limit), nil
}

// ========== Friend requests ==========

func (m *MemoryStore) InsertFriendRequest(ctx context.Context, req *models.FriendRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := requestKey{from: req.FromID, to: req.ToID}
	if _, ok := m.requests[key]; ok {
		return utils.NewAppError(utils.ErrDuplicateRequest, "request already exists cannot make a duplicate", nil)
	}
	m.seq++
	cp := *req
	m.requests[key] = sequenced[*models.FriendRequest]{seq: m.seq, val: &cp}
	return nil
}

func (m *MemoryStore) GetFriendRequest(ctx context.Context, fromID, toID uuid.UUID) (*models.FriendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.requests[requestKey{from: fromID, to: toID}]
	if !ok {
		return nil, utils.NewNotFoundError("friend request not found")
	}
	cp := *entry.val
	return &cp, nil
}

func (m *MemoryStore) ClaimFriendRequest(ctx context.Context, fromID, toID uuid.UUID) (*models.FriendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.requests[requestKey{from: fromID, to: toID}]
	if !ok {
		return nil, utils.NewNotFoundError("friend request not found")
	}
	if !entry.val.IsPending() {
		return nil, utils.NewAppError(utils.ErrInvalidStatus, "friend request already resolved", nil)
	}
	entry.val.Status = models.RequestResolved
	cp := *entry.val
	return &cp, nil
}

func (m *MemoryStore) ReleaseFriendRequest(ctx context.Context, fromID, toID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.requests[requestKey{from: fromID, to: toID}]
	if !ok {
		return utils.NewNotFoundError("friend request not found")
	}
	entry.val.Status = models.RequestPending
	return nil
}

func (m *MemoryStore) DeleteFriendRequest(ctx context.Context, fromID, toID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := requestKey{from: fromID, to: toID}
	if _, ok := m.requests[key]; !ok {
		return utils.NewNotFoundError("friend request not found")
	}
	delete(m.requests, key)
	return nil
}

func (m *MemoryStore) ListIncomingRequests(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	return m.listRequests(func(k requestKey) bool { return k.to == userID }), nil
}

func (m *MemoryStore) ListOutgoingRequests(ctx context.Context, userID uuid.UUID) ([]*models.FriendRequest, error) {
	return m.listRequests(func(k requestKey) bool { return k.from == userID }), nil
}

func (m *MemoryStore) listRequests(match func(requestKey) bool) []*models.FriendRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []sequenced[*models.FriendRequest]
	for k, entry := range m.requests {
		if match(k) && entry.val.IsPending() {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]*models.FriendRequest, 0, len(entries))
	for _, entry := range entries {
		cp := *entry.val
		out = append(out, &cp)
	}
	return out
}

// ========== Friendships ==========

func (m *MemoryStore) InsertFriendship(ctx context.Context, f *models.Friendship) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := models.PairKey(f.Users[0], f.Users[1])
	if _, ok := m.friendships[key]; ok {
		return utils.NewConflictError("friendship already exists", nil)
	}
	cp := *f
	m.friendships[key] = &cp
	return nil
}

func (m *MemoryStore) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.friendships[models.PairKey(a, b)]
	return ok, nil
}

func (m *MemoryStore) GetFriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []uuid.UUID
	for _, f := range m.friendships {
		switch userID {
		case f.Users[0]:
			out = append(out, f.Users[1])
		case f.Users[1]:
			out = append(out, f.Users[0])
		}
	}
	return out, nil
}

// ========== Groups ==========

func (m *MemoryStore) CreateGroup(ctx context.Context, group *models.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[group.ID]; ok {
		return utils.NewConflictError("group already exists", nil)
	}
	m.groups[group.ID] = copyGroup(group)
	return nil
}

func (m *MemoryStore) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[id]
	if !ok {
		return nil, utils.NewNotFoundError("group not found")
	}
	return copyGroup(g), nil
}

func (m *MemoryStore) GroupExists(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.groups[id]
	return ok, nil
}

func (m *MemoryStore) UpdateGroupMembers(ctx context.Context, groupID uuid.UUID, userIDs []uuid.UUID, action models.MemberAction) (*models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupID]
	if !ok {
		return nil, utils.NewNotFoundError("group not found")
	}

	switch action {
	case models.MemberAdd:
		g.Members = models.UniqueIDs(append(g.Members, userIDs...))
	case models.MemberRemove:
		drop := make(map[uuid.UUID]struct{}, len(userIDs))
		for _, id := range userIDs {
			drop[id] = struct{}{}
		}
		kept := g.Members[:0]
		for _, id := range g.Members {
			if _, gone := drop[id]; !gone {
				kept = append(kept, id)
			}
		}
		g.Members = kept
	default:
		return nil, utils.NewAppError(utils.ErrInvalidInput, "invalid member action: "+string(action), nil)
	}
	return copyGroup(g), nil
}

func (m *MemoryStore) GetGroupsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Group
	for _, g := range m.groups {
		if g.HasParticipant(userID) {
			out = append(out, copyGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func copyChat(c *models.Chat) *models.Chat {
	cp := *c
	if c.LastMessage != nil {
		msg := *c.LastMessage
		cp.LastMessage = &msg
	}
	return &cp
}

func copyGroup(g *models.Group) *models.Group {
	cp := *g
	cp.Admins = append([]uuid.UUID(nil), g.Admins...)
	cp.Members = append([]uuid.UUID(nil), g.Members...)
	return &cp
}

// copyTail returns copies of the last limit items (all when limit <= 0),
// oldest first.
func copyTail[T any](items []*T, limit int) []*T {
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	out := make([]*T, 0, len(items))
	for _, item := range items {
		cp := *item
		out = append(out, &cp)
	}
	return out
}
