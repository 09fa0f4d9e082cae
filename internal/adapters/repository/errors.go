package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("submission not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrInvalidID    = errors.New("submission id is required")
)
