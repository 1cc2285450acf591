package incident

import "errors"

// ErrNotFound indicates a missing incident record or unresolvable address.
var ErrNotFound = errors.New("incident: not found")

// ErrInvalidState indicates an operation that the incident's current state
// does not permit, such as verifying a completed incident or cancelling a
// mock incident mid-dispatch.
var ErrInvalidState = errors.New("incident: invalid state for request")

// ErrInvalidParam indicates a request naming an unrecognized enum value.
var ErrInvalidParam = errors.New("incident: invalid parameter")

// ErrCancelTimeout resolves a pending cancellation whose monitoring-station
// response never arrived. Recovered locally, never surfaced to callers.
var ErrCancelTimeout = errors.New("incident: cancel request timed out")

// ErrNoHubIncident indicates a hub-authoritative update arrived while
// neither the hub model nor the stored fallback names a current incident.
var ErrNoHubIncident = errors.New("incident: hub reports no active incident")
