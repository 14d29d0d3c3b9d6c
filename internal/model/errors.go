package model

import "fmt"

// Error codes for the HTTP input-error path, per spec §7: shape/validation
// and missing-state errors are reported synchronously with {ok:false, error}
// and never mutate state. Mirrors the teacher's model.ErrCode* convention.
const (
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeNotFound      = "not_found"
	ErrCodeStateExists   = "state_exists"
	ErrCodeStateMissing  = "state_missing"
	ErrCodeInternalError = "internal_error"
)

// APIError is a structured input-error response body.
type APIError struct {
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// NewAPIError constructs an APIError.
func NewAPIError(code, format string, args ...any) *APIError {
	return &APIError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps an APIError's code to the HTTP status the server
// surface responds with, per spec §7.
func (e *APIError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeInvalidInput:
		return 400
	case ErrCodeNotFound, ErrCodeStateMissing:
		return 404
	case ErrCodeStateExists:
		return 409
	default:
		return 500
	}
}
