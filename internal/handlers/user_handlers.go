package handlers

import (
	"net/http"
	"strings"

	"glooo/internal/api"
	"glooo/internal/engine/actors"
	"glooo/internal/middleware"
	"glooo/internal/models"
	"glooo/internal/utils"

	"github.com/google/uuid"
)

// SignupRequest represents a request to register a new user
type SignupRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a request to log in a user
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignup handles requests to register a new user
func (s *Server) HandleSignup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if !s.decodeBody(w, r, &req) {
			return
		}

		result, appErr := s.ask(s.Engine.GetUserActor(), &actors.SignupMsg{
			Name:     req.Name,
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
		}, "user")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}

		user, ok := result.(*models.User)
		if !ok {
			s.writeError(w, utils.NewAppError(utils.ErrInternal, "unexpected signup reply", nil))
			return
		}
		s.writeJSON(w, http.StatusCreated, api.SignupResponse{InsertedID: user.ID.String()})
	}
}

// HandleLogin checks credentials and issues the session token, both as the
// jwt cookie and in the body.
func (s *Server) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !s.decodeBody(w, r, &req) {
			return
		}

		result, appErr := s.ask(s.Engine.GetUserActor(), &actors.LoginMsg{
			Email:    req.Email,
			Password: req.Password,
		}, "user")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}

		loginResp, ok := result.(*api.LoginResponse)
		if !ok {
			s.writeError(w, utils.NewAppError(utils.ErrInternal, "unexpected login reply", nil))
			return
		}
		if !loginResp.Success {
			s.writeJSON(w, http.StatusUnauthorized, loginResp)
			return
		}

		userID, err := uuid.Parse(loginResp.UserID)
		if err != nil {
			s.writeError(w, utils.NewAppError(utils.ErrInternal, "invalid user id", err))
			return
		}
		token, err := s.Tokens.GenerateToken(userID)
		if err != nil {
			s.writeError(w, utils.NewAppError(utils.ErrInternal, "Failed to generate auth token", err))
			return
		}

		loginResp.Token = token
		http.SetCookie(w, middleware.SessionCookie(token, s.Tokens.TTL(), s.SecureCookies))
		s.writeJSON(w, http.StatusOK, loginResp)
	}
}

// HandleLogout clears the session cookie.
func (s *Server) HandleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, middleware.SessionCookie("", -1, s.SecureCookies))
		s.writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
	}
}

func (s *Server) HandleSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"authenticated": true,
			"user_id":       currentUser(r),
		})
	}
}

func (s *Server) HandleGetMyID() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"id": currentUser(r).String()})
	}
}

// HandleUserProfile returns the caller's own profile
func (s *Server) HandleUserProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, appErr := s.ask(s.Engine.GetUserActor(), &actors.GetUserProfileMsg{UserID: currentUser(r)}, "user")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

// HandleSearchUsers finds up to five users by username, never the caller.
func (s *Server) HandleSearchUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("user"))
		if query == "" {
			s.badRequest(w, "user query parameter required")
			return
		}

		result, appErr := s.ask(s.Engine.GetUserActor(), &actors.SearchUsersMsg{
			UserID: currentUser(r),
			Query:  query,
		}, "user")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) HandleListFriends() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, appErr := s.ask(s.Engine.GetFriendActor(), &actors.ListFriendsMsg{UserID: currentUser(r)}, "friend")
		if appErr != nil {
			s.writeError(w, appErr)
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}
