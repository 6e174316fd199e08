package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport signals a network-level failure talking to the remote API.
	ErrTransport = errors.New("transport failure")
	// ErrRejected signals a 4xx response (validation or auth failure).
	ErrRejected = errors.New("request rejected")
	// ErrServer signals a 5xx response.
	ErrServer = errors.New("server error")
	// ErrInvalidPayload signals a response that failed boundary validation.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")

	// ErrDisposed signals that the owning view session was torn down.
	ErrDisposed = errors.New("view session disposed")
	// ErrPollerBusy signals a submission while a job is still in flight.
	ErrPollerBusy = errors.New("task already in flight")
	// ErrNoSelection signals an export submission with nothing selected.
	ErrNoSelection = errors.New("nothing selected")
	// ErrInvalidSort signals an unknown sort option.
	ErrInvalidSort = errors.New("invalid sort option")
	// ErrInvalidQuery signals a malformed query string or parameter.
	ErrInvalidQuery = errors.New("invalid query")
)

// APIError wraps a non-2xx response with its status and server detail.
// It unwraps to ErrRejected, ErrNotFound or ErrServer depending on the status.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: status %d", e.Unwrap().Error(), e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Unwrap().Error(), e.Status, e.Detail)
}

// Unwrap maps the status onto the error taxonomy.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status >= 500:
		return ErrServer
	default:
		return ErrRejected
	}
}

// NewAPIError creates an API error for a non-2xx status.
func NewAPIError(status int, detail string) error {
	return &APIError{Status: status, Detail: detail}
}
