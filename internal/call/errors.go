package call

import "errors"

// Error codes carried on terminal snapshots and wire responses.
const (
	ErrCodeBusy      = "busy"
	ErrCodeStaleCall = "stale_call"
	ErrCodeProtocol  = "protocol_error"
	ErrCodeMedia     = "media_error"
	ErrCodeTimeout   = "timeout"
)

var (
	// ErrBusy is returned when an operation would require a second
	// concurrent session. The active session is never disturbed.
	ErrBusy = errors.New("another call is already active")

	// ErrStaleCall is returned for operations referencing a call that is
	// not the active session. Callers log and ignore it; late-arriving
	// signaling after a call ended is expected, not exceptional.
	ErrStaleCall = errors.New("call is not the active call")

	// ErrStopped is returned when the manager's event loop has exited.
	ErrStopped = errors.New("call manager stopped")
)
