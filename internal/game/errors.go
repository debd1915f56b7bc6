package game

import "errors"

var (
	// ErrInvalidRoom is returned when a room cannot be constructed.
	ErrInvalidRoom = errors.New("invalid room")
)
