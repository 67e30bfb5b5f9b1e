package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestResolved RequestStatus = "resolved"
)

type FriendRequest struct {
	ID        uuid.UUID     `json:"id"`
	FromID    uuid.UUID     `json:"from_id"`
	ToID      uuid.UUID     `json:"to_id"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

func (r *FriendRequest) IsPending() bool { return r.Status == RequestPending }

type Friendship struct {
	ID        uuid.UUID    `json:"id"`
	Users     [2]uuid.UUID `json:"users"`
	CreatedAt time.Time    `json:"created_at"`
}

// Chat is a two-party conversation. PairKey is the canonical form of
// Users and is unique across chats.
type Chat struct {
	ID             uuid.UUID      `json:"id"`
	Users          [2]uuid.UUID   `json:"users"`
	PairKey        string         `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	LastMessage    *DirectMessage `json:"last_message,omitempty"`
}

// Other returns the participant that is not userID.
func (c *Chat) Other(userID uuid.UUID) (uuid.UUID, bool) {
	switch userID {
	case c.Users[0]:
		return c.Users[1], true
	case c.Users[1]:
		return c.Users[0], true
	}
	return uuid.Nil, false
}

func (c *Chat) HasParticipants(a, b uuid.UUID) bool {
	return c.PairKey == PairKey(a, b)
}

// Conversation is a chat as seen by one of its participants.
type Conversation struct {
	ID          uuid.UUID      `json:"id"`
	Sender      uuid.UUID      `json:"sender"`
	Receiver    UserSummary    `json:"receiver"`
	LastMessage *DirectMessage `json:"last_updated_message,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type Group struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name,omitempty"`
	Admins    []uuid.UUID `json:"admins"`
	Members   []uuid.UUID `json:"members"`
	CreatedAt time.Time   `json:"created_at"`
}

func (g *Group) IsAdmin(userID uuid.UUID) bool { return containsID(g.Admins, userID) }

func (g *Group) IsMember(userID uuid.UUID) bool { return containsID(g.Members, userID) }

// HasParticipant reports whether the user may read and post in the group.
// Admins keep access after removing themselves from the member list.
func (g *Group) HasParticipant(userID uuid.UUID) bool {
	return g.IsMember(userID) || g.IsAdmin(userID)
}

// Participants returns members followed by admins that are not members.
func (g *Group) Participants() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(g.Members)+len(g.Admins))
	out = append(out, g.Members...)
	for _, admin := range g.Admins {
		if !g.IsMember(admin) {
			out = append(out, admin)
		}
	}
	return out
}

type MemberAction string

const (
	MemberAdd    MemberAction = "add"
	MemberRemove MemberAction = "remove"
)

func (a MemberAction) Valid() bool { return a == MemberAdd || a == MemberRemove }

type ResolveAction string

const (
	ActionAccept ResolveAction = "accept"
	ActionReject ResolveAction = "reject"
)

func (a ResolveAction) Valid() bool { return a == ActionAccept || a == ActionReject }

// PairKey is the order-independent key of two user ids.
func PairKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}

// OrderedPair returns a and b sorted the same way PairKey sorts them.
func OrderedPair(a, b uuid.UUID) [2]uuid.UUID {
	if strings.Compare(b.String(), a.String()) < 0 {
		return [2]uuid.UUID{b, a}
	}
	return [2]uuid.UUID{a, b}
}

// UniqueIDs drops uuid.Nil and duplicates, keeping first-seen order.
func UniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
