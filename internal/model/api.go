package model

import "time"

// APIResponse is the standard success envelope for every HTTP response,
// matching the teacher's {data, meta} shape.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIErrorResponse is the standard error envelope. Named distinctly from
// the APIError in errors.go (which is a Go error carrying a code, used
// internally by the engine) to keep the wire-response shape and the
// internal error type from colliding.
type APIErrorResponse struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta carries request metadata attached to every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error in the wire format.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
