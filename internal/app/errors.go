package service

import "github.com/okian/ronbun/internal/domain/model"

// Errors returned by Service. They alias the model sentinels so transport
// layers can classify them without importing this package.
var (
	ErrNotStarted   = model.ErrNotStarted
	ErrBackpressure = model.ErrQueueFull
	ErrTooLong      = model.ErrEssayTooLong
)
