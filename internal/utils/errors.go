package utils

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error { return appErr.Origin }

// Standard error codes for the application
const (
	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrDuplicate    = "DUPLICATE"
	ErrInvalidInput = "INVALID_INPUT"

	// Authentication/Authorization errors
	ErrUnauthorized = "UNAUTHORIZED"
	ErrForbidden    = "FORBIDDEN" // Authenticated but not allowed, e.g. non-admin group mutation
	ErrInvalidToken = "INVALID_TOKEN"

	// User-specific errors
	ErrUserNotFound       = "USER_NOT_FOUND"
	ErrUserAlreadyExists  = "USER_ALREADY_EXISTS"
	ErrInvalidCredentials = "INVALID_CREDENTIALS"

	// Social graph errors
	ErrDuplicateRequest = "DUPLICATE_REQUEST"
	ErrAlreadyFriends   = "ALREADY_FRIENDS"
	ErrInvalidStatus    = "INVALID_STATUS"

	// Messaging errors
	ErrProtocolViolation = "PROTOCOL_VIOLATION"

	// Actor communication errors
	ErrActorTimeout = "ACTOR_TIMEOUT"

	ErrStoreUnavailable = "STORE_UNAVAILABLE"
	ErrInternal         = "INTERNAL"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewUserNotFoundError(userID string) *AppError {
	return &AppError{
		Code:    ErrUserNotFound,
		Message: "User not found: " + userID,
	}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Code: ErrNotFound, Message: message}
}

func NewConflictError(message string, origin error) *AppError {
	return &AppError{Code: ErrDuplicate, Message: message, Origin: origin}
}

func NewForbiddenError(reason string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: "Forbidden: " + reason,
	}
}

func NewUnauthorizedError(reason string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "Unauthorized: " + reason,
	}
}

func NewStoreUnavailableError(operation string, origin error) *AppError {
	return &AppError{
		Code:    ErrStoreUnavailable,
		Message: "Store unavailable during " + operation,
		Origin:  origin,
	}
}

func NewActorTimeoutError(actorName string, origin error) *AppError {
	return &AppError{
		Code:    ErrActorTimeout,
		Message: "Actor communication timeout: " + actorName,
		Origin:  origin,
	}
}

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsErrorCode reports whether err carries an AppError with the given code.
func IsErrorCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound covers the generic and user-specific not-found codes.
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrNotFound) || IsErrorCode(err, ErrUserNotFound)
}

// IsConflict covers every code that means "that already exists".
func IsConflict(err error) bool {
	appErr, ok := AsAppError(err)
	if !ok {
		return false
	}
	switch appErr.Code {
	case ErrDuplicate, ErrDuplicateRequest, ErrAlreadyFriends, ErrUserAlreadyExists:
		return true
	}
	return false
}

// IsAuthError reports codes that deny access to the caller.
func IsAuthError(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == ErrUnauthorized ||
			appErr.Code == ErrForbidden ||
			appErr.Code == ErrInvalidToken
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound, ErrUserNotFound:
		return http.StatusNotFound
	case ErrInvalidInput, ErrInvalidStatus, ErrProtocolViolation:
		return http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidToken, ErrInvalidCredentials:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrDuplicate, ErrUserAlreadyExists, ErrDuplicateRequest, ErrAlreadyFriends:
		return http.StatusConflict
	case ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	case ErrActorTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
