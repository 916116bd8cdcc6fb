package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/services/auth"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidState     = "INVALID_STATE"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodePlayerNotFound   = "PLAYER_NOT_FOUND"
	CodeAuthCodeNotFound = "AUTH_CODE_NOT_FOUND"
	CodeGuildNotFound    = "GUILD_NOT_FOUND"
	CodeNotFound         = "NOT_FOUND"
	CodeDuplicate        = "DUPLICATE"
	CodeCodesExhausted   = "AUTH_CODES_EXHAUSTED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status err maps to
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError. Upstream failures are checked
// first so backend details never reach the client.
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, model.ErrCodeSaturated):
		return &httpError{http.StatusInternalServerError, APIError{CodeCodesExhausted, "Could not allocate an auth code, please retry"}}
	case errors.Is(err, model.ErrUpstream):
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}

	case errors.Is(err, auth.ErrInvalidAPIKey):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid API key"}}

	case errors.Is(err, model.ErrPlayerNotFound):
		return &httpError{http.StatusNotFound, APIError{CodePlayerNotFound, "Player not found"}}
	case errors.Is(err, model.ErrAuthCodeNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeAuthCodeNotFound, "Auth code not found"}}
	case errors.Is(err, model.ErrGuildNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeGuildNotFound, "Guild not configured"}}
	case errors.Is(err, model.ErrNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeNotFound, "Not found"}}

	// Domain messages for these kinds are written to be shown to callers
	case errors.Is(err, model.ErrValidation):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, err.Error()}}
	case errors.Is(err, model.ErrStateConflict):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidState, err.Error()}}
	case errors.Is(err, model.ErrDuplicate):
		return &httpError{http.StatusConflict, APIError{CodeDuplicate, err.Error()}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewForbiddenError creates an error for a key lacking the needed scope
func NewForbiddenError(scope model.Scope) error {
	return &httpError{http.StatusForbidden, APIError{CodeForbidden, "API key lacks scope " + string(scope)}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
