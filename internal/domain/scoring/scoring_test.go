package scoring_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/ronbun/internal/domain/model"
	scoring "github.com/okian/ronbun/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

type stubEvaluator struct {
	result model.ScoreResult
	err    error
	calls  int
}

func (s *stubEvaluator) Evaluate(_ context.Context, _ scoring.Input) (model.ScoreResult, error) {
	s.calls++
	return s.result, s.err
}

func remoteResult() model.ScoreResult {
	return model.ScoreResult{
		Structure: 20, Content: 22, Logic: 18, Expression: 15, Total: 75,
		Feedback: "remote", Suggestions: []string{"a"}, Source: model.SourceLLM,
	}
}

func TestHeuristic_Evaluate(t *testing.T) {
	Convey("Given the heuristic evaluator", t, func() {
		h := scoring.NewHeuristic()

		Convey("When evaluating an essay", func() {
			res, err := h.Evaluate(context.Background(), scoring.Input{Text: wellFormedEssay})

			Convey("Then it matches the pure scorer", func() {
				So(err, ShouldBeNil)
				So(res, ShouldResemble, scoring.Score(wellFormedEssay, ""))
			})
		})
	})
}

func TestFallback_Evaluate(t *testing.T) {
	Convey("Given a fallback evaluator", t, func() {
		ctx := context.Background()
		in := scoring.Input{Text: wellFormedEssay, Theme: "地方の公共交通"}

		Convey("When the primary succeeds", func() {
			primary := &stubEvaluator{result: remoteResult()}
			f := scoring.NewFallback(primary, scoring.NewHeuristic())
			res, err := f.Evaluate(ctx, in)

			Convey("Then the primary result is returned untouched", func() {
				So(err, ShouldBeNil)
				So(res.Source, ShouldEqual, model.SourceLLM)
				So(res.Total, ShouldEqual, 75)
				So(res.Notice, ShouldBeEmpty)
			})
		})

		Convey("When the primary fails", func() {
			primary := &stubEvaluator{err: errors.New("connection refused")}
			f := scoring.NewFallback(primary, scoring.NewHeuristic())
			res, err := f.Evaluate(ctx, in)

			Convey("Then the heuristic result is returned as a fallback", func() {
				So(err, ShouldBeNil)
				So(primary.calls, ShouldEqual, 1)
				So(res.Source, ShouldEqual, model.SourceFallback)
				So(res.Notice, ShouldNotBeEmpty)
				expected := scoring.Score(in.Text, in.Theme)
				So(res.Total, ShouldEqual, expected.Total)
				So(res.Suggestions, ShouldResemble, expected.Suggestions)
			})
		})

		Convey("When the primary returns a result that breaks the invariants", func() {
			bad := remoteResult()
			bad.Total = 99
			f := scoring.NewFallback(&stubEvaluator{result: bad}, scoring.NewHeuristic())
			res, err := f.Evaluate(ctx, in)

			Convey("Then it is discarded", func() {
				So(err, ShouldBeNil)
				So(res.Source, ShouldEqual, model.SourceFallback)
				So(res.Validate(), ShouldBeNil)
			})
		})

		Convey("When both evaluators fail", func() {
			f := scoring.NewFallback(
				&stubEvaluator{err: errors.New("remote down")},
				&stubEvaluator{err: errors.New("local down")},
			)
			_, err := f.Evaluate(ctx, in)

			Convey("Then both causes are reported", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "remote down")
				So(err.Error(), ShouldContainSubstring, "local down")
			})
		})
	})
}

func TestSelect(t *testing.T) {
	Convey("Given the scorer selector", t, func() {
		Convey("When asking for the heuristic scorer", func() {
			ev, err := scoring.Select(scoring.KindHeuristic, nil)

			Convey("Then it returns the heuristic evaluator", func() {
				So(err, ShouldBeNil)
				So(ev, ShouldHaveSameTypeAs, scoring.Heuristic{})
			})
		})

		Convey("When asking for the llm scorer without a remote", func() {
			_, err := scoring.Select(scoring.KindLLM, nil)

			Convey("Then it fails", func() {
				So(errors.Is(err, scoring.ErrNoRemote), ShouldBeTrue)
			})
		})

		Convey("When asking for the llm scorer with a remote", func() {
			ev, err := scoring.Select(scoring.KindLLM, &stubEvaluator{err: errors.New("boom")})

			Convey("Then it wraps the remote with a heuristic fallback", func() {
				So(err, ShouldBeNil)
				res, err := ev.Evaluate(context.Background(), scoring.Input{Text: "短い。"})
				So(err, ShouldBeNil)
				So(res.Source, ShouldEqual, model.SourceFallback)
			})
		})

		Convey("When asking for an unknown scorer", func() {
			_, err := scoring.Select("oracle", nil)

			Convey("Then it fails", func() {
				So(errors.Is(err, scoring.ErrUnknownScorer), ShouldBeTrue)
			})
		})
	})
}
