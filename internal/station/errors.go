package station

import "errors"

// Recoverable error taxonomy. Every one of these is reported back to the
// originating connection as a structured error event; none of them crash
// the coordinator.
var (
	ErrBroadcastNotFound  = errors.New("broadcast not found")
	ErrAlreadyLive        = errors.New("broadcast already has a live broadcaster")
	ErrCallNotFound       = errors.New("call not found")
	ErrCapacityExceeded   = errors.New("active call capacity exceeded")
	ErrUnauthorized       = errors.New("not authorized for broadcaster actions")
	ErrConnectionNotFound = errors.New("connection not found")
)

// ErrorCode maps a taxonomy error to the wire code carried in error events.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrBroadcastNotFound):
		return "broadcast_not_found"
	case errors.Is(err, ErrAlreadyLive):
		return "already_live"
	case errors.Is(err, ErrCallNotFound):
		return "call_not_found"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrConnectionNotFound):
		return "connection_not_found"
	default:
		return "internal_error"
	}
}
