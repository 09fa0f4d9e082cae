// Package session models one practice run: choose a department, write under a
// time limit, then review the score.
//
// State is a value. Transitions return a new State and never mutate the receiver.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/ronbun/internal/domain/catalog"
	"github.com/okian/ronbun/internal/domain/model"
	"github.com/okian/ronbun/internal/domain/predict"
)

// Step is the current phase of a session.
type Step int

// Session phases.
const (
	StepSelect Step = iota
	StepWrite
	StepResult
)

func (s Step) String() string {
	switch s {
	case StepSelect:
		return "select"
	case StepWrite:
		return "write"
	case StepResult:
		return "result"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// MarshalText renders the step name.
func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ErrInvalidTransition is returned when a transition is not allowed from the current step.
var ErrInvalidTransition = errors.New("invalid session transition")

// State is a snapshot of a practice session.
type State struct {
	Step      Step
	Selection *catalog.Selection
	Prompt    *predict.Prompt
	StartedAt time.Time
	Essay     *model.EssaySubmission
	Overtime  bool
	Result    *model.ScoreResult
}

// New returns a session waiting for a department choice.
func New() State {
	return State{Step: StepSelect}
}

// Select records the chosen department. Re-selecting before Begin replaces the choice.
func (s State) Select(sel catalog.Selection) (State, error) {
	if s.Step != StepSelect {
		return s, s.invalid("select")
	}
	next := New()
	next.Selection = &sel
	return next, nil
}

// Begin starts the writing timer for prompt.
func (s State) Begin(prompt predict.Prompt, now time.Time) (State, error) {
	if s.Step != StepSelect || s.Selection == nil {
		return s, s.invalid("begin")
	}
	next := s
	next.Step = StepWrite
	next.Prompt = &prompt
	next.StartedAt = now
	return next, nil
}

// Submit captures the essay and the time spent writing it.
func (s State) Submit(id, text string, now time.Time) (State, error) {
	if s.Step != StepWrite {
		return s, s.invalid("submit")
	}
	elapsed := int(now.Sub(s.StartedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	next := s
	next.Essay = &model.EssaySubmission{
		SubmissionID: id,
		Text:         text,
		Prompt: model.EssayPrompt{
			Theme:      s.Prompt.Theme,
			TimeLimit:  s.Prompt.TimeLimit,
			University: s.Selection.UniversityName,
			Faculty:    s.Selection.FacultyName,
		},
		SubmittedAt:    now,
		ElapsedSeconds: elapsed,
	}
	next.Overtime = next.Essay.Overtime()
	return next, nil
}

// Complete attaches the score and moves to the result step.
func (s State) Complete(result model.ScoreResult) (State, error) {
	if s.Step != StepWrite || s.Essay == nil {
		return s, s.invalid("complete")
	}
	next := s
	next.Step = StepResult
	next.Result = &result
	return next, nil
}

// Reset starts over from department selection. It is valid from any step.
func (s State) Reset() State {
	return New()
}

// Remaining returns the writing time left at now, never negative.
// It is zero outside the write step.
func (s State) Remaining(now time.Time) time.Duration {
	if s.Step != StepWrite || s.Prompt == nil {
		return 0
	}
	left := s.StartedAt.Add(time.Duration(s.Prompt.TimeLimit)*time.Minute).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func (s State) invalid(op string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, s.Step)
}
