package service

import "errors"

// submitError is a request the service refused before any room saw it.
// Reason is the code reported to clients.
type submitError struct {
	msg    string
	reason string
}

func (e *submitError) Error() string  { return e.msg }
func (e *submitError) Reason() string { return e.reason }

var (
	ErrRoomNotFound = &submitError{msg: "room not found", reason: "room_not_found"}
	ErrBackpressure = &submitError{msg: "room mailbox full", reason: "backpressure"}

	ErrNotStarted    = &submitError{msg: "service not started", reason: "unavailable"}
	ErrAuditDisabled = &submitError{msg: "audit store not configured", reason: "unavailable"}
	ErrRoomCodes     = errors.New("no free room code")
)
