package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"glooo/internal/database"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSessionServer upgrades /?user=<id> and serves a Client for that user.
func newSessionServer(t *testing.T, registry *Registry, router *Router) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("user"))
		if err != nil {
			http.Error(w, "bad user", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := &Client{
			Registry: registry,
			Router:   router,
			UserID:   userID,
			Conn:     conn,
			Outbox:   NewOutbox(16, nil),
		}
		go client.Serve(context.Background())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitOnline(t *testing.T, registry *Registry, users ...uuid.UUID) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, u := range users {
			if _, ok := registry.Lookup(u); !ok {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientDirectRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	registry := NewRegistry(nil, nil)
	router := NewRouter(store, registry, nil, nil)
	srv := newSessionServer(t, registry, router)

	u1, u2 := uuid.New(), uuid.New()
	chat, _, err := store.FindOrCreateChat(ctx, u1, u2, time.Now())
	require.NoError(t, err)

	conn1 := dial(t, srv, u1)
	conn2 := dial(t, srv, u2)
	waitOnline(t, registry, u1, u2)

	frame := map[string]string{
		"type":    "direct",
		"chat_id": chat.ID.String(),
		"to_id":   u1.String(),
		"content": "hi",
	}
	require.NoError(t, conn2.WriteJSON(frame))

	conn1.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn1.ReadMessage()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "direct", got["type"])
	assert.Equal(t, u2.String(), got["from_id"])
	assert.Equal(t, "hi", got["content"])

	require.Eventually(t, func() bool {
		messages, err := store.GetChatMessages(ctx, chat.ID, 0)
		return err == nil && len(messages) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientProtocolViolationEndsSession(t *testing.T) {
	store := database.NewMemoryStore()
	registry := NewRegistry(nil, nil)
	router := NewRouter(store, registry, nil, nil)
	srv := newSessionServer(t, registry, router)

	user := uuid.New()
	conn := dial(t, srv, user)
	waitOnline(t, registry, user)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"direct","chat_id":"`+uuid.NewString()+`","to_id":"`+uuid.NewString()+`","content":"x"}`)))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "the server closes the connection")

	require.Eventually(t, func() bool { return registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClientNewSessionSupersedesOld(t *testing.T) {
	store := database.NewMemoryStore()
	registry := NewRegistry(nil, nil)
	router := NewRouter(store, registry, nil, nil)
	srv := newSessionServer(t, registry, router)

	user := uuid.New()
	first := dial(t, srv, user)
	waitOnline(t, registry, user)
	firstOutbox, _ := registry.Lookup(user)

	dial(t, srv, user)
	require.Eventually(t, func() bool {
		current, ok := registry.Lookup(user)
		return ok && current != firstOutbox
	}, 2*time.Second, 10*time.Millisecond)

	// The first connection is closed by the server
	first.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 1, registry.Count())
}
