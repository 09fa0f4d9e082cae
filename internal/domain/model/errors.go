package model

import "errors"

// Sentinel errors shared across layers.
var (
	ErrInvalidResult = errors.New("invalid score result")
	ErrEssayTooLong  = errors.New("essay exceeds the maximum length")
	ErrQueueFull     = errors.New("submission queue is full")
	ErrNotStarted    = errors.New("service not started")
)
