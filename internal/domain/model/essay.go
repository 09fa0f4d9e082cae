// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Sub-score caps. They sum to the 100 point scale.
const (
	MaxStructure  = 25
	MaxContent    = 30
	MaxLogic      = 25
	MaxExpression = 20
	MaxTotal      = MaxStructure + MaxContent + MaxLogic + MaxExpression
)

// Result sources.
const (
	SourceHeuristic = "heuristic"
	SourceLLM       = "llm"
	SourceFallback  = "fallback"
)

// EssayPrompt is the question an essay answers.
type EssayPrompt struct {
	Theme     string // prompt text
	TimeLimit int    // minutes

	// Optional target, passed to remote scorers for faculty-specific grading.
	University string
	Faculty    string
}

// EssaySubmission is an essay handed in for scoring.
type EssaySubmission struct {
	SubmissionID   string
	Text           string
	Prompt         EssayPrompt
	SubmittedAt    time.Time
	ElapsedSeconds int // 0 when the client did not track time
}

// Overtime reports whether the writer went past the prompt's time limit.
// Submissions without a limit are never overtime.
func (s EssaySubmission) Overtime() bool {
	return s.Prompt.TimeLimit > 0 && s.ElapsedSeconds > s.Prompt.TimeLimit*60
}

// Evaluations holds one short assessment per sub-score.
type Evaluations struct {
	Structure  string `json:"structure"`
	Content    string `json:"content"`
	Logic      string `json:"logic"`
	Expression string `json:"expression"`
}

// ScoreResult is the breakdown returned by every scorer.
type ScoreResult struct {
	Structure   int         `json:"structure"`
	Content     int         `json:"content"`
	Logic       int         `json:"logic"`
	Expression  int         `json:"expression"`
	Total       int         `json:"total"`
	Feedback    string      `json:"feedback"`
	Suggestions []string    `json:"suggestions"`
	Evaluations Evaluations `json:"evaluations"`

	// Source names the scorer that produced the result.
	Source string `json:"source,omitempty"`
	// Notice carries an informational message, e.g. why a fallback happened.
	Notice string `json:"notice,omitempty"`
}

// Sum re-derives the total from the four sub-scores.
func (r ScoreResult) Sum() int {
	return r.Structure + r.Content + r.Logic + r.Expression
}

// Validate checks the cap and total invariants.
func (r ScoreResult) Validate() error {
	checks := []struct {
		name  string
		value int
		max   int
	}{
		{"structure", r.Structure, MaxStructure},
		{"content", r.Content, MaxContent},
		{"logic", r.Logic, MaxLogic},
		{"expression", r.Expression, MaxExpression},
	}
	for _, c := range checks {
		if c.value < 0 || c.value > c.max {
			return fmt.Errorf("%w: %s=%d outside [0,%d]", ErrInvalidResult, c.name, c.value, c.max)
		}
	}
	if r.Total != r.Sum() {
		return fmt.Errorf("%w: total %d != sum %d", ErrInvalidResult, r.Total, r.Sum())
	}
	return nil
}

// Record is a scored submission as persisted by the result store.
type Record struct {
	SubmissionID string      `json:"submission_id"`
	Theme        string      `json:"theme"`
	Result       ScoreResult `json:"result"`
	SubmittedAt  time.Time   `json:"submitted_at"`
	ScoredAt     time.Time   `json:"scored_at"`

	// Timing as reported by the client; zero when it was not tracked.
	TimeLimit      int  `json:"time_limit,omitempty"` // minutes
	ElapsedSeconds int  `json:"elapsed_seconds,omitempty"`
	Overtime       bool `json:"overtime"`
}
