package handlers

import (
	"context"
	"net/http"

	"glooo/internal/websocket"

	ws "github.com/gorilla/websocket"
)

func (s *Server) upgrader() *ws.Upgrader {
	return &ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.CORS.OriginAllowed(r.Header.Get("Origin"))
		},
	}
}

// HandleWebSocket authenticates the caller and hands the upgraded connection
// to a session. The token's user id is the only identity the session uses.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	upgrader := s.upgrader()
	return func(w http.ResponseWriter, r *http.Request) {
		userID, appErr := s.Tokens.Authenticate(r)
		if appErr != nil {
			s.Logger.Info("websocket connection rejected", "reason", appErr.Message)
			s.writeError(w, appErr)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error
			s.Logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
			return
		}

		var onDrop func()
		if s.Metrics != nil {
			onDrop = s.Metrics.OutboxDropped
		}
		client := &websocket.Client{
			Registry:       s.Registry,
			Router:         s.Router,
			UserID:         userID,
			Conn:           conn,
			Outbox:         websocket.NewOutbox(s.OutboxSize, onDrop),
			MaxMessageSize: s.MaxMessageSize,
			Logger:         s.Logger.With("user_id", userID),
		}
		s.Logger.Info("websocket session opened", "user_id", userID)

		// The hijacked connection outlives the request context's usefulness
		client.Serve(context.WithoutCancel(r.Context()))
		s.Logger.Info("websocket session closed", "user_id", userID)
	}
}
