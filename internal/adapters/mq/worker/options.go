// Package worker scores queued essay submissions and persists the results.
package worker

import (
	"time"

	"github.com/okian/ronbun/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithClock sets the time source for ScoredAt.
func WithClock(now func() time.Time) Option {
	return func(w *InMemoryWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithOnProcessed registers a callback run after each job, with the save error if any.
func WithOnProcessed(fn func(id string, err error)) Option {
	return func(w *InMemoryWorker) {
		w.onProcessed = fn
	}
}
