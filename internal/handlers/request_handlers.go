package handlers

import (
	"net/http"

	"glooo/internal/engine/actors"
	"glooo/internal/models"

	"github.com/google/uuid"
)

// SendRequestBody is the body of POST /user/send_request
type SendRequestBody struct {
	ToID string `json:"to_id"`
}

// HandleRequestBody answers a pending request from FromID.
type HandleRequestBody struct {
	Action string `json:"action"`
	FromID string `json:"from_id"`
}

// HandleSendRequest submits a friend request from the caller
func (s *Server) HandleSendRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendRequestBody
		if !s.decodeBody(w, r, &req) {
			return
		}
		toID, err := uuid.Parse(req.ToID)
		if err != nil {
			s.badRequest(w, "Invalid recipient ID")
			return
		}

		result, appErr := s.ask(s.Engine.GetFriendActor(), &actors.SubmitRequestMsg{
			FromID: currentUser(r),
			ToID:   toID,
		}, "friend")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeJSON(w, http.StatusCreated, result)
	}
}

// HandleResolveRequest accepts or rejects the request FromID sent the caller.
func (s *Server) HandleResolveRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HandleRequestBody
		if !s.decodeBody(w, r, &req) {
			return
		}
		fromID, err := uuid.Parse(req.FromID)
		if err != nil {
			s.badRequest(w, "Invalid requester ID")
			return
		}
		action := models.ResolveAction(req.Action)
		if !action.Valid() {
			s.badRequest(w, "action must be accept or reject")
			return
		}

		result, appErr := s.ask(s.Engine.GetFriendActor(), &actors.ResolveRequestMsg{
			ResponderID: currentUser(r),
			RequesterID: fromID,
			Action:      action,
		}, "friend")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleIncomingRequests() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, appErr := s.ask(s.Engine.GetFriendActor(), &actors.ListIncomingMsg{UserID: currentUser(r)}, "friend")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleOutgoingRequests() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, appErr := s.ask(s.Engine.GetFriendActor(), &actors.ListOutgoingMsg{UserID: currentUser(r)}, "friend")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}
