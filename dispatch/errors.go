// Package dispatch owns the emergency lifecycle: request creation,
// candidate discovery, race-free acceptance and the status state machine,
// plus the best-effort notification fanout to candidates.
package dispatch

import "errors"

// Sentinel errors of the dispatch taxonomy. Handlers map these to HTTP
// statuses and the stable codes below.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("emergency not found")
	ErrConflict     = errors.New("conflicting status transition")
	ErrUnauthorized = errors.New("actor is neither requester nor assigned responder")
	ErrUpstream     = errors.New("upstream unavailable")
)

// Stable machine-readable error codes surfaced to callers.
const (
	CodeValidation    = "ValidationError"
	CodeNotFound      = "NotFoundError"
	CodeConflict      = "ConflictError"
	CodeAuthorization = "AuthorizationError"
	CodeUpstream      = "UpstreamUnavailable"
)

// CodeFor returns the stable error code for a dispatch error, or the
// empty string for errors outside the taxonomy.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrUnauthorized):
		return CodeAuthorization
	case errors.Is(err, ErrUpstream):
		return CodeUpstream
	}
	return ""
}
