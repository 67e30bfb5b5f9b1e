// internal/middleware/jwt.go
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"glooo/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the cookie login sets and authenticated routes read.
const CookieName = "jwt"

const issuer = "glooo"

// Claims represents the JWT claims for our application
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates session tokens
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewTokenManager(secret string, ttl time.Duration, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "auth"),
	}
}

// TTL is how long issued tokens stay valid.
func (tm *TokenManager) TTL() time.Duration { return tm.ttl }

// GenerateToken creates a new JWT token for the given user ID
func (tm *TokenManager) GenerateToken(userID uuid.UUID) (string, error) {
	now := tm.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// ValidateToken validates the provided JWT token
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return tm.secret, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// TokenFromRequest returns the token carried by the jwt cookie, a Bearer
// Authorization header or the token query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Authenticate resolves the caller's user id from the request.
func (tm *TokenManager) Authenticate(r *http.Request) (uuid.UUID, *utils.AppError) {
	tokenString := TokenFromRequest(r)
	if tokenString == "" {
		return uuid.Nil, utils.NewUnauthorizedError("missing token")
	}
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		tm.logger.Debug("rejected token", "path", r.URL.Path, "error", err)
		return uuid.Nil, utils.NewAppError(utils.ErrInvalidToken, "Invalid token", err)
	}
	return claims.UserID, nil
}

// Require wraps a handler so it only runs for authenticated callers.
func (tm *TokenManager) Require(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, appErr := tm.Authenticate(r)
		if appErr != nil {
			if utils.IsAuthError(appErr) {
				tm.logger.Debug("unauthenticated request", "path", r.URL.Path, "code", appErr.Code)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(utils.AppErrorToHTTPStatus(appErr.Code))
			_ = json.NewEncoder(w).Encode(map[string]string{
				"err":  appErr.Message,
				"code": appErr.Code,
			})
			return
		}
		handler(w, r.WithContext(SetUserIDInContext(r.Context(), userID)))
	}
}

// SessionCookie builds the cookie login sets. An empty token with maxAge < 0
// clears it.
func SessionCookie(token string, maxAge time.Duration, secure bool) *http.Cookie {
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		cookie.MaxAge = -1
	} else {
		cookie.MaxAge = int(maxAge.Seconds())
	}
	return cookie
}

// Define a custom context key type to avoid collisions
type contextKey string

// UserIDKey is the key used to store the user ID in the context
const UserIDKey contextKey = "user_id"

// SetUserIDInContext saves the user ID in the request context
func SetUserIDInContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserIDFromContext retrieves the user ID from the context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}
