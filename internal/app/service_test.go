package service_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/ronbun/internal/adapters/repository"
	service "github.com/okian/ronbun/internal/app"
	"github.com/okian/ronbun/internal/domain/answer"
	"github.com/okian/ronbun/internal/domain/catalog"
	"github.com/okian/ronbun/internal/domain/model"
	"github.com/okian/ronbun/internal/domain/predict"
	"github.com/okian/ronbun/internal/domain/scoring"
	"github.com/okian/ronbun/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(500),
			service.WithDedupeSize(250),
		)

		Convey("Then stats reflect the configuration before start", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 500)
		})

		Convey("Then pipeline operations require Start", func() {
			_, _, err := svc.Submit(context.Background(), model.EssaySubmission{Text: "本文"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)

			_, err = svc.TopN(context.Background(), 5)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := service.New(service.WithWorkerCount(1))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)

		So(svc.GetStats()["started"], ShouldEqual, true)

		Convey("When stopping the service", func() {
			svc.Stop()
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Score(t *testing.T) {
	Convey("Given a service with the default evaluator", t, func() {
		svc := service.New(service.WithMaxEssayChars(50))

		Convey("When scoring a short essay synchronously", func() {
			res, err := svc.Score(context.Background(), scoring.Input{Text: "これは短い文章です。"})

			Convey("Then the heuristic result is returned without starting the pipeline", func() {
				So(err, ShouldBeNil)
				So(res.Total, ShouldEqual, 25)
				So(res.Source, ShouldEqual, model.SourceHeuristic)
			})
		})

		Convey("When the essay is over the configured length", func() {
			_, err := svc.Score(context.Background(), scoring.Input{Text: strings.Repeat("あ", 51)})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrTooLong), ShouldBeTrue)
			})
		})
	})
}

func TestService_Submit(t *testing.T) {
	Convey("Given a started service", t, func() {
		store := repository.NewTreapStore()
		svc := service.New(service.WithWorkerCount(2), service.WithStore(store))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When submitting without an id", func() {
			id, dup, err := svc.Submit(ctx, model.EssaySubmission{
				Text:   "これは短い文章です。",
				Prompt: model.EssayPrompt{Theme: "テーマ"},
			})

			Convey("Then an id is generated and the essay is eventually scored", func() {
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
				So(id, ShouldNotBeEmpty)

				var rec model.Record
				So(eventually(func() bool {
					rec, err = svc.Result(ctx, id)
					return err == nil
				}), ShouldBeTrue)
				So(rec.Result.Total, ShouldEqual, 25)
				So(rec.Theme, ShouldEqual, "テーマ")
				So(rec.SubmittedAt.IsZero(), ShouldBeFalse)

				st, err := svc.Standing(ctx, id)
				So(err, ShouldBeNil)
				So(st.Rank, ShouldEqual, 1)
				So(st.Position, ShouldEqual, 1)
				So(st.Total, ShouldEqual, 25)
			})
		})

		Convey("When the same id is submitted twice", func() {
			sub := model.EssaySubmission{SubmissionID: "sub-dup", Text: "本文"}
			_, first, err := svc.Submit(ctx, sub)
			So(err, ShouldBeNil)
			_, second, err := svc.Submit(ctx, sub)
			So(err, ShouldBeNil)

			Convey("Then the second is acknowledged as a duplicate", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
			})
		})

		Convey("When asking for an unknown submission", func() {
			_, err := svc.Result(ctx, "missing")

			Convey("Then the store reports not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

// blockingEvaluator holds every job until release is closed.
type blockingEvaluator struct {
	release chan struct{}
}

func (b blockingEvaluator) Evaluate(ctx context.Context, in scoring.Input) (model.ScoreResult, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return scoring.Score(in.Text, in.Theme), nil
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given a service with a tiny queue and a stalled worker", t, func() {
		release := make(chan struct{})
		svc := service.New(
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
			service.WithEvaluator(blockingEvaluator{release: release}),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		defer close(release)

		var rejected error
		var rejectedID string
		for _, id := range []string{"a", "b", "c", "d"} {
			if _, _, err := svc.Submit(ctx, model.EssaySubmission{SubmissionID: id, Text: "本文"}); err != nil {
				rejected, rejectedID = err, id
				break
			}
		}

		Convey("Then the overflow is reported as backpressure", func() {
			So(errors.Is(rejected, service.ErrBackpressure), ShouldBeTrue)
		})

		Convey("Then the rejected id can be retried later", func() {
			release <- struct{}{}
			So(eventually(func() bool {
				_, dup, err := svc.Submit(ctx, model.EssaySubmission{SubmissionID: rejectedID, Text: "本文"})
				return err == nil && !dup
			}), ShouldBeTrue)
		})
	})
}

func TestService_Catalog(t *testing.T) {
	Convey("Given a service with a seeded predictor", t, func() {
		c, err := catalog.Default()
		So(err, ShouldBeNil)
		svc := service.New(
			service.WithCatalog(c),
			service.WithPredictor(predict.New(predict.WithRand(rand.New(rand.NewPCG(3, 4))))),
		)

		Convey("When searching universities", func() {
			us, err := svc.Universities("慶應")
			So(err, ShouldBeNil)
			So(len(us), ShouldEqual, 1)
			So(us[0].ID, ShouldEqual, "keio")
		})

		Convey("When predicting a prompt for a known department", func() {
			p, err := svc.PredictPrompt(context.Background(), "todai", "liberal-arts", "liberal-arts")

			Convey("Then it inherits the department time limit", func() {
				So(err, ShouldBeNil)
				So(p.TimeLimit, ShouldEqual, 120)
				So(p.University, ShouldEqual, "東京大学")
				So(p.BasedOn, ShouldResemble, []string{"todai-liberal-2023"})
				So(p.Source, ShouldEqual, predict.SourceTemplate)
			})
		})

		Convey("When many requests predict prompts at once", func() {
			var wg sync.WaitGroup
			var failures atomic.Int32
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range 200 {
						if _, err := svc.PredictPrompt(context.Background(), "todai", "liberal-arts", "liberal-arts"); err != nil {
							failures.Add(1)
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then every call succeeds on the shared predictor", func() {
				So(failures.Load(), ShouldEqual, 0)
			})
		})

		Convey("When drafting a model answer without a writer", func() {
			a, err := svc.ModelAnswer(context.Background(), answer.Request{Theme: "地方創生について論じなさい。"})

			Convey("Then the outline is returned", func() {
				So(err, ShouldBeNil)
				So(a.Source, ShouldEqual, answer.SourceOutline)
				So(a.Text, ShouldContainSubstring, "【序論】")
			})
		})

		Convey("When predicting for an unknown department", func() {
			_, err := svc.PredictPrompt(context.Background(), "todai", "medicine", "medicine")
			So(errors.Is(err, catalog.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_StopDrainsAfterCancel(t *testing.T) {
	Convey("Given a service started on a context that is later canceled", t, func() {
		release := make(chan struct{})
		store := repository.NewTreapStore()
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithQueueSize(100),
			service.WithStore(store),
			service.WithEvaluator(blockingEvaluator{release: release}),
		)
		ctx, cancel := context.WithCancel(context.Background())
		So(svc.Start(ctx), ShouldBeNil)

		for i := range 50 {
			_, _, err := svc.Submit(ctx, model.EssaySubmission{SubmissionID: fmt.Sprintf("sub-%02d", i), Text: "本文"})
			So(err, ShouldBeNil)
		}
		cancel()
		close(release)
		svc.Stop()

		Convey("Then every accepted submission is scored before Stop returns", func() {
			So(store.Count(context.Background()), ShouldEqual, 50)
		})
	})
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
