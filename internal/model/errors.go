package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound reports a missing row, whatever the lookup key was. Repos wrap
// it with context; services branch on it with errors.Is.
var ErrNotFound = errors.New("not found")

// Kind classifies an API failure. Every error that reaches a client carries
// exactly one kind; the HTTP layer maps the kind to a status code.
type Kind string

const (
	KindMalformedRequest   Kind = "malformed_request"
	KindUnauthorized       Kind = "unauthorized"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindTagNotRegistered   Kind = "tag_not_registered"
	KindRateLimited        Kind = "rate_limited"
	KindServiceUnavailable Kind = "service_unavailable"
	KindInternal           Kind = "internal_error"
)

// HTTPStatus returns the response status for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindMalformedRequest:
		return http.StatusBadRequest
	case KindUnauthorized, KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindTagNotRegistered:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// APIError is the structured failure surfaced to clients: a kind plus a
// human-readable message. It never carries driver errors, hashes or tokens.
type APIError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// ErrorResponse is the envelope every failure is serialized into.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewMalformedRequest reports a body that failed the shape check.
func NewMalformedRequest(reason string) *APIError {
	return &APIError{Kind: KindMalformedRequest, Message: "malformed request: " + reason}
}

// NewUnauthorized reports a missing, invalid or expired credential.
func NewUnauthorized(reason string) *APIError {
	return &APIError{Kind: KindUnauthorized, Message: reason}
}

// NewInvalidCredentials is the single login failure. Unknown name and wrong
// password return this same value so the response does not reveal which.
func NewInvalidCredentials() *APIError {
	return &APIError{Kind: KindInvalidCredentials, Message: "invalid credentials"}
}

// NewTagNotRegistered reports a scan from a card no user is enrolled with.
// The scanned UID is echoed so an operator can enroll it.
func NewTagNotRegistered(uid string) *APIError {
	return &APIError{Kind: KindTagNotRegistered, Message: fmt.Sprintf("rfid tag %q is not registered", uid)}
}

// NewRateLimited reports a client that exceeded the per-IP request budget.
func NewRateLimited() *APIError {
	return &APIError{Kind: KindRateLimited, Message: "too many requests"}
}

// NewServiceUnavailable reports a store that cannot currently serve requests.
func NewServiceUnavailable() *APIError {
	return &APIError{Kind: KindServiceUnavailable, Message: "service temporarily unavailable"}
}

// NewInternal is the catch-all for unanticipated failures. The cause is
// logged server-side with the request id, never returned to the client.
func NewInternal() *APIError {
	return &APIError{Kind: KindInternal, Message: "internal error"}
}
