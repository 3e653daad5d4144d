package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"quiz-session-service/internal/domain"
)

// APIError is the body of every failed request and of websocket error frames.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeStateConflict       = "STATE_CONFLICT"
	CodeAuthRequired        = "AUTH_REQUIRED"
	CodeAuthFailure         = "AUTH_FAILURE"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeSessionClosed       = "SESSION_CLOSED"
	CodeNotFound            = "NOT_FOUND"
	CodeNotHost             = "NOT_HOST"
	CodeInternalError       = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

func (e *httpError) Error() string {
	return e.apiError.Message
}

func newValidationError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeValidation, message}}
}

func newAuthRequiredError(message string) error {
	return &httpError{http.StatusUnauthorized, APIError{CodeAuthRequired, message}}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	writeJSON(w, he.status, ErrorResponse{Error: he.apiError})
}

// toHTTPError classifies err. Specific errors come before the categories they wrap.
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuizNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeNotFound, err.Error()}}
	case errors.Is(err, domain.ErrNotHost):
		return &httpError{http.StatusForbidden, APIError{CodeNotHost, "Only the host can perform this action"}}

	case errors.Is(err, domain.ErrValidation):
		return &httpError{http.StatusBadRequest, APIError{CodeValidation, err.Error()}}
	case errors.Is(err, domain.ErrStateConflict):
		return &httpError{http.StatusConflict, APIError{CodeStateConflict, err.Error()}}
	case errors.Is(err, domain.ErrAuthRequired):
		return &httpError{http.StatusUnauthorized, APIError{CodeAuthRequired, err.Error()}}
	case errors.Is(err, domain.ErrAuthFailure):
		return &httpError{http.StatusForbidden, APIError{CodeAuthFailure, err.Error()}}
	case errors.Is(err, domain.ErrInsufficientBalance):
		return &httpError{http.StatusConflict, APIError{CodeInsufficientBalance, err.Error()}}
	case errors.Is(err, domain.ErrSessionClosed):
		return &httpError{http.StatusGone, APIError{CodeSessionClosed, err.Error()}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}
