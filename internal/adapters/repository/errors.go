package repository

import "errors"

// Sentinel kinds for scoreboard errors.
var (
	ErrNotFound     = errors.New("player not found")
	ErrInvalidLimit = errors.New("invalid scoreboard limit")
	ErrInvalidScore = errors.New("invalid score")
)
