package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"glooo/internal/engine"
	"glooo/internal/middleware"
	"glooo/internal/utils"
	"glooo/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Server holds all server dependencies, including the actor system and engine
type Server struct {
	Context        *actor.RootContext
	Engine         *engine.Engine
	Registry       *websocket.Registry
	Router         *websocket.Router
	Tokens         *middleware.TokenManager
	CORS           *middleware.CORSConfig
	Metrics        *utils.MetricsCollector
	Logger         *slog.Logger
	RequestTimeout time.Duration

	// Websocket session tuning
	OutboxSize     int
	MaxMessageSize int64

	// SecureCookies marks the session cookie Secure (production).
	SecureCookies bool
}

// NewServer creates a new Server instance with the given components
func NewServer(
	context *actor.RootContext,
	engine *engine.Engine,
	registry *websocket.Registry,
	router *websocket.Router,
	tokens *middleware.TokenManager,
	metrics *utils.MetricsCollector,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Context:        context,
		Engine:         engine,
		Registry:       registry,
		Router:         router,
		Tokens:         tokens,
		CORS:           middleware.DefaultCORSConfig(nil),
		Metrics:        metrics,
		Logger:         logger.With("component", "http"),
		RequestTimeout: 5 * time.Second, // Default timeout for actor requests
		OutboxSize:     websocket.DefaultOutboxSize,
		MaxMessageSize: websocket.DefaultMaxMessageSize,
	}
}

// Routes builds the HTTP surface.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	auth := s.Tokens.Require

	mux.HandleFunc("POST /auth/signup", s.HandleSignup())
	mux.HandleFunc("POST /auth/login", s.HandleLogin())
	mux.HandleFunc("GET /auth/logout", auth(s.HandleLogout()))
	mux.HandleFunc("GET /auth/session", auth(s.HandleSession()))

	mux.HandleFunc("GET /api/get_my_id", auth(s.HandleGetMyID()))
	mux.HandleFunc("GET /api/requests/get_requests", auth(s.HandleIncomingRequests()))
	mux.HandleFunc("GET /api/requests/outgoing", auth(s.HandleOutgoingRequests()))
	mux.HandleFunc("POST /api/requests/handle_request", auth(s.HandleResolveRequest()))
	mux.HandleFunc("GET /api/chat/get_chats", auth(s.HandleGetChats()))
	mux.HandleFunc("GET /api/chat/message/get_messages/{chat_id}", auth(s.HandleGetChatMessages()))

	mux.HandleFunc("GET /user/profile", auth(s.HandleUserProfile()))
	mux.HandleFunc("GET /user/search", auth(s.HandleSearchUsers()))
	mux.HandleFunc("GET /user/friends", auth(s.HandleListFriends()))
	mux.HandleFunc("POST /user/send_request", auth(s.HandleSendRequest()))

	mux.HandleFunc("POST /create/group", auth(s.HandleCreateGroup()))
	mux.HandleFunc("POST /create/chat", auth(s.HandleCreateChat()))
	mux.HandleFunc("POST /group/manage_members", auth(s.HandleManageMembers()))
	mux.HandleFunc("GET /group/list", auth(s.HandleListGroups()))
	mux.HandleFunc("GET /group/{group_id}/messages", auth(s.HandleGroupMessages()))

	mux.HandleFunc("GET /chat", s.HandleWebSocket())
	mux.HandleFunc("GET /health", s.HandleHealth())
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}

	return middleware.CORSMiddleware(s.CORS)(s.countRequests(mux))
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Metrics != nil {
			s.Metrics.IncrementRequests()
		}
		next.ServeHTTP(w, r)
	})
}

// ask sends msg to pid and returns the reply. A reply that is an AppError,
// or a future that times out, comes back as the error.
func (s *Server) ask(pid *actor.PID, msg interface{}, actorName string) (interface{}, *utils.AppError) {
	result, err := s.Context.RequestFuture(pid, msg, s.RequestTimeout).Result()
	if err != nil {
		if errors.Is(err, actor.ErrTimeout) {
			return nil, utils.NewActorTimeoutError(actorName, err)
		}
		return nil, utils.NewAppError(utils.ErrActorTimeout, "actor request failed", err)
	}
	if appErr, ok := result.(*utils.AppError); ok {
		return nil, appErr
	}
	return result, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, appErr *utils.AppError) {
	status := utils.AppErrorToHTTPStatus(appErr.Code)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", "code", appErr.Code, "error", appErr)
		if s.Metrics != nil {
			s.Metrics.IncrementErrors()
		}
	} else if utils.IsAuthError(appErr) {
		s.Logger.Warn("request denied", "code", appErr.Code, "reason", appErr.Message)
	}
	s.writeJSON(w, status, map[string]string{
		"err":  appErr.Message,
		"code": appErr.Code,
	})
}

func (s *Server) badRequest(w http.ResponseWriter, message string) {
	s.writeError(w, utils.NewAppError(utils.ErrInvalidInput, message, nil))
}

// decodeBody reads a JSON body into v, reporting failure to the client.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.badRequest(w, "Invalid request body")
		return false
	}
	return true
}

// currentUser is the authenticated caller. Require guarantees it is set.
func currentUser(r *http.Request) uuid.UUID {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	return userID
}

func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, false
	}
	return limit, true
}

func parseIDs(raw []string) ([]uuid.UUID, bool) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}
