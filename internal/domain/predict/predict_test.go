package predict_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/okian/ronbun/internal/domain/catalog"
	"github.com/okian/ronbun/internal/domain/predict"
	. "github.com/smartystreets/goconvey/convey"
)

// fixedRand returns the queued values in order, modulo n.
type fixedRand struct {
	vals []int
	i    int
}

func (f *fixedRand) IntN(n int) int {
	v := f.vals[f.i%len(f.vals)]
	f.i++
	return v % n
}

func TestPredict(t *testing.T) {
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	Convey("Given a predictor with a fixed random source", t, func() {
		p := predict.New(
			predict.WithRand(&fixedRand{vals: []int{0, 0, 0}}),
			predict.WithClock(func() time.Time { return at }),
		)
		past := []catalog.PastQuestion{
			{ID: "q-1", TimeLimit: 120},
			{ID: "q-2", TimeLimit: 60},
		}

		Convey("When predicting for a politics department", func() {
			got := p.Predict(past, "早稲田大学", "政治経済学部", "政治学科")

			Convey("Then the first template is filled with the first trend and context", func() {
				So(got.Theme, ShouldEqual, "デジタル化が進む現代において、民主主義はどのような課題に直面し、どのような解決策が考えられるか、具体例を挙げて論じなさい。")
			})

			Convey("Then time limit and provenance come from past questions", func() {
				So(got.TimeLimit, ShouldEqual, 120)
				So(got.BasedOn, ShouldResemble, []string{"q-1", "q-2"})
				So(got.GeneratedAt, ShouldEqual, at)
				So(got.University, ShouldEqual, "早稲田大学")
				So(strings.HasPrefix(got.ID, "predicted-"), ShouldBeTrue)
			})
		})

		Convey("When there are no past questions", func() {
			got := p.Predict(nil, "大学", "学部", "学科")

			Convey("Then the default time limit applies", func() {
				So(got.TimeLimit, ShouldEqual, predict.DefaultTimeLimit)
				So(got.BasedOn, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a seeded predictor", t, func() {
		p := predict.New(predict.WithRand(rand.New(rand.NewPCG(1, 2))))

		Convey("Every prediction should be a complete question", func() {
			for range 50 {
				got := p.Predict(nil, "東京大学", "教養学部", "教養学科")
				So(strings.HasSuffix(got.Theme, "。"), ShouldBeTrue)
				So(strings.Contains(got.Theme, "%"), ShouldBeFalse)
			}
		})
	})
}

func TestContexts(t *testing.T) {
	Convey("Given faculty and department names", t, func() {
		Convey("A combined politics and economics faculty pulls both pools in order", func() {
			got := predict.Contexts("政治経済学部", "経済学科")
			want := []string{
				"民主主義", "政策", "国際関係", "社会制度", "公共政策",
				"経済成長", "市場", "金融", "グローバル経済", "産業構造",
			}
			So(cmp.Diff(want, got), ShouldBeEmpty)
		})

		Convey("Unknown subjects fall back to the generic pool", func() {
			So(predict.Contexts("教養学部", "教養学科"), ShouldResemble, []string{"社会", "現代", "課題", "解決策", "将来"})
		})
	})
}

func TestPredict_Concurrent(t *testing.T) {
	Convey("Given one predictor shared by many goroutines", t, func() {
		p := predict.New(predict.WithRand(rand.New(rand.NewPCG(3, 4))))
		sel := catalog.Selection{UniversityName: "慶應義塾大学", FacultyName: "法学部", DepartmentName: "政治学科"}

		var wg sync.WaitGroup
		themes := make([][]string, 8)
		for g := range themes {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 200 {
					themes[g] = append(themes[g], p.ForSelection(sel).Theme)
				}
			}()
		}
		wg.Wait()

		Convey("Then every goroutine gets complete questions", func() {
			for _, got := range themes {
				So(got, ShouldHaveLength, 200)
				for _, theme := range got {
					So(strings.HasSuffix(theme, "。"), ShouldBeTrue)
				}
			}
		})
	})
}

// stubWriter returns a canned question or error.
type stubWriter struct {
	text string
	err  error
	got  predict.QuestionRequest
}

func (w *stubWriter) WriteQuestion(_ context.Context, req predict.QuestionRequest) (string, error) {
	w.got = req
	return w.text, w.err
}

func TestGenerate(t *testing.T) {
	sel := catalog.Selection{
		UniversityName: "早稲田大学",
		FacultyName:    "政治経済学部",
		DepartmentName: "政治学科",
		PastQuestions: []catalog.PastQuestion{
			{ID: "q-1", Theme: "民主主義の課題について論じなさい。", TimeLimit: 120},
		},
	}
	ctx := context.Background()

	Convey("Given a predictor without a writer", t, func() {
		p := predict.New(predict.WithRand(&fixedRand{vals: []int{0}}))

		Convey("Then Generate returns the template prediction", func() {
			got := p.Generate(ctx, sel)
			So(got.Source, ShouldEqual, predict.SourceTemplate)
			So(got.Notice, ShouldBeEmpty)
			So(got.TimeLimit, ShouldEqual, 120)
		})
	})

	Convey("Given a writer that drafts a question", t, func() {
		w := &stubWriter{text: "  少子化対策について、政治学の観点から論じなさい。\n"}
		p := predict.New(predict.WithWriter(w))
		got := p.Generate(ctx, sel)

		Convey("Then its text becomes the theme", func() {
			So(got.Theme, ShouldEqual, "少子化対策について、政治学の観点から論じなさい。")
			So(got.Source, ShouldEqual, predict.SourceLLM)
			So(got.TimeLimit, ShouldEqual, 120)
			So(got.BasedOn, ShouldResemble, []string{"q-1"})
		})

		Convey("Then the writer sees the past themes", func() {
			So(w.got.PastThemes, ShouldResemble, []string{"民主主義の課題について論じなさい。"})
			So(w.got.Department, ShouldEqual, "政治学科")
		})
	})

	Convey("Given a writer that fails or returns nothing", t, func() {
		for _, w := range []*stubWriter{{err: errors.New("timeout")}, {text: "   "}} {
			p := predict.New(predict.WithWriter(w), predict.WithRand(&fixedRand{vals: []int{0}}))
			got := p.Generate(ctx, sel)

			So(got.Source, ShouldEqual, predict.SourceTemplate)
			So(got.Notice, ShouldNotBeEmpty)
			So(strings.HasSuffix(got.Theme, "。"), ShouldBeTrue)
		}
	})
}
