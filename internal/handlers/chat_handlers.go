package handlers

import (
	"net/http"

	"glooo/internal/engine/actors"

	"github.com/google/uuid"
)

// CreateChatRequest opens a chat between the caller and Second
type CreateChatRequest struct {
	Second string `json:"second"`
}

// HandleCreateChat returns the chat for the caller and a friend, creating it
// on first use.
func (s *Server) HandleCreateChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateChatRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		otherID, err := uuid.Parse(req.Second)
		if err != nil {
			s.badRequest(w, "Invalid participant ID")
			return
		}

		result, appErr := s.ask(s.Engine.GetFriendActor(), &actors.CreateChatMsg{
			UserID:  currentUser(r),
			OtherID: otherID,
		}, "friend")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}

		status := http.StatusOK
		if chat, ok := result.(*actors.ChatResult); ok && chat.Created {
			status = http.StatusCreated
		}
		s.writeJSON(w, status, result)
	}
}

// HandleGetChats lists the caller's conversations, most recent first
func (s *Server) HandleGetChats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(r)
		if !ok {
			s.badRequest(w, "Invalid limit")
			return
		}

		result, appErr := s.ask(s.Engine.GetFriendActor(), &actors.ListChatsMsg{
			UserID: currentUser(r),
			Limit:  limit,
		}, "friend")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

// HandleGetChatMessages returns a chat's history, oldest first
func (s *Server) HandleGetChatMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, err := uuid.Parse(r.PathValue("chat_id"))
		if err != nil {
			s.badRequest(w, "Invalid chat ID")
			return
		}
		limit, ok := parseLimit(r)
		if !ok {
			s.badRequest(w, "Invalid limit")
			return
		}

		result, appErr := s.ask(s.Engine.GetFriendActor(), &actors.GetMessagesMsg{
			UserID: currentUser(r),
			ChatID: chatID,
			Limit:  limit,
		}, "friend")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}
