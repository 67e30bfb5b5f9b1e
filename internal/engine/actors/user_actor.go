package actors

import (
	stdctx "context"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"glooo/internal/api"
	"glooo/internal/database"
	"glooo/internal/models"
	"glooo/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SearchLimit caps user search results.
const SearchLimit = 5

const minPasswordLength = 6

type (
	SignupMsg struct {
		Name     string
		Username string
		Email    string
		Password string
	}

	LoginMsg struct {
		Email    string
		Password string
	}

	GetUserProfileMsg struct {
		UserID uuid.UUID
	}

	SearchUsersMsg struct {
		UserID uuid.UUID
		Query  string
	}
)

// UserActor handles signup, login and user lookups
type UserActor struct {
	store      database.Store
	metrics    *utils.MetricsCollector
	logger     *slog.Logger
	timeout    time.Duration
	bcryptCost int
	now        func() time.Time
}

func NewUserActor(store database.Store, metrics *utils.MetricsCollector, logger *slog.Logger) *UserActor {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &UserActor{
		store:      store,
		metrics:    metrics,
		logger:     logger.With("component", "user_actor"),
		timeout:    defaultStoreTimeout,
		bcryptCost: bcrypt.DefaultCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithBcryptCost lowers the hashing cost, mostly for tests.
func (a *UserActor) WithBcryptCost(cost int) *UserActor {
	a.bcryptCost = cost
	return a
}

func (a *UserActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *SignupMsg:
		a.handleSignup(context, msg)

	case *LoginMsg:
		a.handleLogin(context, msg)

	case *GetUserProfileMsg:
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
		defer cancel()

		user, err := a.store.GetUser(ctx, msg.UserID)
		if err != nil {
			context.Respond(asAppError(err, "get user"))
			return
		}
		context.Respond(user)

	case *SearchUsersMsg:
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
		defer cancel()

		query := strings.TrimSpace(msg.Query)
		if query == "" {
			context.Respond(utils.NewAppError(utils.ErrInvalidInput, "invalid query", nil))
			return
		}

		// One extra so excluding the caller still leaves a full page
		users, err := a.store.SearchUsers(ctx, query, SearchLimit+1)
		if err != nil {
			context.Respond(asAppError(err, "search users"))
			return
		}

		results := make([]models.UserSummary, 0, SearchLimit)
		for _, u := range users {
			if u.ID == msg.UserID {
				continue
			}
			if len(results) == SearchLimit {
				break
			}
			results = append(results, u.Summary())
		}
		context.Respond(results)
	}
}

func (a *UserActor) handleSignup(context actor.Context, msg *SignupMsg) {
	startTime := time.Now()
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
	defer cancel()

	username := strings.TrimSpace(msg.Username)
	email := strings.ToLower(strings.TrimSpace(msg.Email))

	if username == "" {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "username is required", nil))
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "invalid email address", err))
		return
	}
	if len(msg.Password) < minPasswordLength {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "password is too short", nil))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(msg.Password), a.bcryptCost)
	if err != nil {
		context.Respond(utils.NewAppError(utils.ErrInvalidInput, "Failed to hash password", err))
		return
	}

	now := a.now()
	user := &models.User{
		ID:             uuid.New(),
		Name:           strings.TrimSpace(msg.Name),
		Username:       username,
		Email:          email,
		HashedPassword: string(hashed),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		a.logger.Info("signup rejected", "username", username, "error", err)
		context.Respond(asAppError(err, "create user"))
		return
	}

	a.logger.Info("user created", "user_id", user.ID, "username", username)
	a.metrics.AddOperationLatency("signup", time.Since(startTime))
	context.Respond(user)
}

func (a *UserActor) handleLogin(context actor.Context, msg *LoginMsg) {
	startTime := time.Now()
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.timeout)
	defer cancel()

	user, err := a.store.GetUserByEmail(ctx, strings.TrimSpace(msg.Email))
	if err != nil {
		if utils.IsNotFound(err) {
			context.Respond(&api.LoginResponse{Success: false, Error: "Invalid credentials"})
			return
		}
		context.Respond(asAppError(err, "get user by email"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(msg.Password)); err != nil {
		a.logger.Info("login failed", "user_id", user.ID)
		context.Respond(&api.LoginResponse{Success: false, Error: "Invalid credentials"})
		return
	}

	if err := a.store.UpdateLastLogin(ctx, user.ID, a.now()); err != nil {
		a.logger.Warn("updating last login", "user_id", user.ID, "error", err)
	}

	a.metrics.AddOperationLatency("login", time.Since(startTime))
	context.Respond(&api.LoginResponse{
		Success:  true,
		UserID:   user.ID.String(),
		Verified: user.Verified,
	})
}
