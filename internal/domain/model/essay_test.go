package model_test

import (
	"errors"
	"testing"

	model "github.com/okian/ronbun/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestScoreResult(t *testing.T) {
	convey.Convey("Given a score result", t, func() {
		r := model.ScoreResult{Structure: 25, Content: 30, Logic: 25, Expression: 20, Total: 100}

		convey.Convey("Then the caps add up to the full scale", func() {
			convey.So(model.MaxTotal, convey.ShouldEqual, 100)
		})

		convey.Convey("When every sub-score is at its cap", func() {
			convey.Convey("Then it validates", func() {
				convey.So(r.Validate(), convey.ShouldBeNil)
				convey.So(r.Sum(), convey.ShouldEqual, r.Total)
			})
		})

		convey.Convey("When the total drifts from the sum", func() {
			r.Total = 99

			convey.Convey("Then it is rejected", func() {
				err := r.Validate()
				convey.So(errors.Is(err, model.ErrInvalidResult), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "total 99 != sum 100")
			})
		})

		convey.Convey("When a sub-score exceeds its cap", func() {
			r.Expression = 21
			r.Total = r.Sum()

			convey.Convey("Then it is rejected", func() {
				err := r.Validate()
				convey.So(errors.Is(err, model.ErrInvalidResult), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "expression=21")
			})
		})

		convey.Convey("When a sub-score is negative", func() {
			r.Logic = -1
			r.Total = r.Sum()

			convey.Convey("Then it is rejected", func() {
				convey.So(r.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When all sub-scores are zero", func() {
			zero := model.ScoreResult{}

			convey.Convey("Then it validates", func() {
				convey.So(zero.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
