package llm

import "errors"

// Sentinel errors. Any of these makes the fallback scorer take over.
var (
	ErrMissingAPIKey     = errors.New("llm api key is required")
	ErrInvalidTemplate   = errors.New("invalid prompt template")
	ErrNoChoices         = errors.New("no choices returned")
	ErrEmptyCompletion   = errors.New("model returned empty text")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrSchemaMismatch    = errors.New("model response does not match schema")
)
