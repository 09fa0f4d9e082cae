package predict

import "errors"

// ErrEmptyQuestion is reported when a Writer returns only whitespace.
var ErrEmptyQuestion = errors.New("writer returned an empty question")
