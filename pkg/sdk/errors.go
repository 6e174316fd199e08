package curator

import "github.com/kailas-cloud/curator/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrTransport      = domain.ErrTransport
	ErrRejected       = domain.ErrRejected
	ErrServer         = domain.ErrServer
	ErrInvalidPayload = domain.ErrInvalidPayload
	ErrNotFound       = domain.ErrNotFound
	ErrDisposed       = domain.ErrDisposed
	ErrBusy           = domain.ErrPollerBusy
	ErrNoSelection    = domain.ErrNoSelection
	ErrInvalidSort    = domain.ErrInvalidSort
	ErrInvalidQuery   = domain.ErrInvalidQuery
)

// APIError is a non-2xx response of the content API.
type APIError = domain.APIError
