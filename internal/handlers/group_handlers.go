package handlers

import (
	"net/http"

	"glooo/internal/engine/actors"
	"glooo/internal/models"

	"github.com/google/uuid"
)

// CreateGroupRequest represents a request to create a new group
type CreateGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// ManageMembersRequest adds or removes users from a group
type ManageMembersRequest struct {
	Action  string   `json:"action"`
	GroupID string   `json:"group_id"`
	UserIDs []string `json:"user_ids"`
}

// HandleCreateGroup creates a group with the caller as its admin
func (s *Server) HandleCreateGroup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateGroupRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		members, ok := parseIDs(req.Members)
		if !ok {
			s.badRequest(w, "Invalid member ID")
			return
		}

		result, appErr := s.ask(s.Engine.GetGroupActor(), &actors.CreateGroupMsg{
			CreatorID: currentUser(r),
			Name:      req.Name,
			MemberIDs: members,
		}, "group")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeJSON(w, http.StatusCreated, result)
	}
}

// HandleManageMembers applies an admin's add/remove to a group
func (s *Server) HandleManageMembers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ManageMembersRequest
		if !s.decodeBody(w, r, &req) {
			return
		}
		groupID, err := uuid.Parse(req.GroupID)
		if err != nil {
			s.badRequest(w, "Invalid group ID")
			return
		}
		userIDs, ok := parseIDs(req.UserIDs)
		if !ok {
			s.badRequest(w, "Invalid user ID")
			return
		}
		action := models.MemberAction(req.Action)
		if !action.Valid() {
			s.badRequest(w, "action must be add or remove")
			return
		}

		result, appErr := s.ask(s.Engine.GetGroupActor(), &actors.MutateMembersMsg{
			ActorID: currentUser(r),
			GroupID: groupID,
			UserIDs: userIDs,
			Action:  action,
		}, "group")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleListGroups() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, appErr := s.ask(s.Engine.GetGroupActor(), &actors.ListGroupsMsg{UserID: currentUser(r)}, "group")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

// HandleGroupMessages returns a group's history to its members
func (s *Server) HandleGroupMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, err := uuid.Parse(r.PathValue("group_id"))
		if err != nil {
			s.badRequest(w, "Invalid group ID")
			return
		}
		limit, ok := parseLimit(r)
		if !ok {
			s.badRequest(w, "Invalid limit")
			return
		}

		result, appErr := s.ask(s.Engine.GetGroupActor(), &actors.GetGroupMessagesMsg{
			UserID:  currentUser(r),
			GroupID: groupID,
			Limit:   limit,
		}, "group")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}
