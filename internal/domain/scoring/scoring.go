// Package scoring grades practice essays.
//
// The heuristic scorer is the core: a deterministic rule battery over the essay text.
// Remote scorers can be layered on top through Fallback, which always recovers with the
// heuristic result when the remote side fails.
package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/ronbun/internal/domain/model"
	"github.com/okian/ronbun/pkg/logger"
	"github.com/okian/ronbun/pkg/metrics"
)

// Scorer kinds accepted by Select.
const (
	KindHeuristic = "heuristic"
	KindLLM       = "llm"
)

// fallbackNotice is attached to results produced after a remote scorer failed.
const fallbackNotice = "AI採点を利用できなかったため、簡易採点の結果を表示しています。"

// Sentinel errors.
var (
	ErrUnknownScorer = errors.New("unknown scorer kind")
	ErrNoRemote      = errors.New("remote scorer not configured")
)

// Input carries what a scorer needs to grade one essay.
type Input struct {
	Text       string
	Theme      string
	University string
	Faculty    string
}

// Evaluator grades an essay.
type Evaluator interface {
	// Evaluate returns a score breakdown, honoring ctx for remote calls.
	Evaluate(ctx context.Context, in Input) (model.ScoreResult, error)
}

// Heuristic adapts Score to the Evaluator interface. It never fails.
type Heuristic struct{}

// NewHeuristic returns the rule-based evaluator.
func NewHeuristic() Heuristic { return Heuristic{} }

// Evaluate scores the essay locally.
func (Heuristic) Evaluate(_ context.Context, in Input) (model.ScoreResult, error) {
	return Score(in.Text, in.Theme), nil
}

// FallbackOption configures a Fallback.
type FallbackOption func(*Fallback)

// WithFallbackLogger sets the logger used to report recovered failures.
func WithFallbackLogger(l logger.Logger) FallbackOption {
	return func(f *Fallback) {
		if l != nil {
			f.logger = l
		}
	}
}

// Fallback tries Primary and substitutes Secondary's result on any error.
type Fallback struct {
	primary   Evaluator
	secondary Evaluator
	logger    logger.Logger
}

// NewFallback wraps primary with secondary as the recovery path.
func NewFallback(primary, secondary Evaluator, opts ...FallbackOption) *Fallback {
	f := &Fallback{
		primary:   primary,
		secondary: secondary,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Evaluate returns the primary result, or the secondary result marked as a fallback.
func (f *Fallback) Evaluate(ctx context.Context, in Input) (model.ScoreResult, error) {
	res, err := f.primary.Evaluate(ctx, in)
	if err == nil {
		if err = res.Validate(); err == nil {
			return res, nil
		}
	}

	metrics.RecordScoringFallback()
	f.logger.Warn(ctx, "remote scoring failed; using fallback scorer", logger.Error(err))

	res, serr := f.secondary.Evaluate(ctx, in)
	if serr != nil {
		return model.ScoreResult{}, fmt.Errorf("fallback scorer: %w", errors.Join(err, serr))
	}
	res.Source = model.SourceFallback
	res.Notice = fallbackNotice
	return res, nil
}

// Select builds the evaluator for the configured kind. The llm kind always
// falls back to the heuristic scorer.
func Select(kind string, remote Evaluator, opts ...FallbackOption) (Evaluator, error) {
	switch kind {
	case "", KindHeuristic:
		return NewHeuristic(), nil
	case KindLLM:
		if remote == nil {
			return nil, ErrNoRemote
		}
		return NewFallback(remote, NewHeuristic(), opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScorer, kind)
	}
}
