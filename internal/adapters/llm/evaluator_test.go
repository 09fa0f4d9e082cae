package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/ronbun/internal/adapters/llm"
	"github.com/okian/ronbun/internal/domain/answer"
	"github.com/okian/ronbun/internal/domain/catalog"
	"github.com/okian/ronbun/internal/domain/model"
	"github.com/okian/ronbun/internal/domain/predict"
	"github.com/okian/ronbun/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeOpenAI serves /v1/chat/completions with a canned assistant message.
type fakeOpenAI struct {
	content string
	status  int
	calls   atomic.Int32
	lastReq atomic.Value // map[string]any
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.lastReq.Store(body)

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 && f.status != http.StatusOK {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"message":"denied","type":"invalid_request_error","code":"invalid_api_key"}}`))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": f.content},
			"finish_reason": "stop",
		}},
	})
}

func newEvaluator(t *testing.T, fake *fakeOpenAI) *llm.Evaluator {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	e, err := llm.New(llm.Config{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1",
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

const validReply = `{"structure_score":20,"content_score":22,"logic_score":18,"expression_score":15,` +
	`"feedback":"論点は明確です。","suggestions":["具体例を増やす"]}`

func TestEvaluator(t *testing.T) {
	in := scoring.Input{Text: "本文です。", Theme: "環境問題について論じなさい。", University: "早稲田大学", Faculty: "法学部"}

	Convey("Given a model that returns a valid verdict", t, func() {
		fake := &fakeOpenAI{content: validReply}
		e := newEvaluator(t, fake)

		res, err := e.Evaluate(context.Background(), in)

		Convey("Then the result is mapped and totalled", func() {
			So(err, ShouldBeNil)
			So(res.Structure, ShouldEqual, 20)
			So(res.Content, ShouldEqual, 22)
			So(res.Total, ShouldEqual, 75)
			So(res.Source, ShouldEqual, model.SourceLLM)
			So(res.Suggestions, ShouldResemble, []string{"具体例を増やす"})
			So(res.Validate(), ShouldBeNil)
			So(res.Evaluations, ShouldResemble, model.Evaluations{})
		})

		Convey("Then the request embeds the theme and essay", func() {
			body := fake.lastReq.Load().(map[string]any)
			msgs := body["messages"].([]any)
			So(len(msgs), ShouldEqual, 2)
			user := msgs[1].(map[string]any)["content"].(string)
			So(user, ShouldContainSubstring, in.Theme)
			So(user, ShouldContainSubstring, in.Text)
			So(user, ShouldContainSubstring, "早稲田大学法学部")
		})
	})

	Convey("Given a verdict with per-dimension evaluations", t, func() {
		reply := strings.TrimSuffix(validReply, "}") +
			`,"structure_evaluation":"序論が明確です。","content_evaluation":"具体例が不足しています。",` +
			`"logic_evaluation":"反論への言及があります。","expression_evaluation":"文体が統一されています。"}`
		e := newEvaluator(t, &fakeOpenAI{content: reply})

		res, err := e.Evaluate(context.Background(), in)

		Convey("Then each evaluation lands on its dimension", func() {
			So(err, ShouldBeNil)
			So(res.Evaluations.Structure, ShouldEqual, "序論が明確です。")
			So(res.Evaluations.Content, ShouldEqual, "具体例が不足しています。")
			So(res.Evaluations.Logic, ShouldEqual, "反論への言及があります。")
			So(res.Evaluations.Expression, ShouldEqual, "文体が統一されています。")
		})
	})

	Convey("Given a model that wraps the JSON in prose", t, func() {
		e := newEvaluator(t, &fakeOpenAI{content: "採点結果です:\n```json\n" + validReply + "\n```"})

		res, err := e.Evaluate(context.Background(), in)

		So(err, ShouldBeNil)
		So(res.Total, ShouldEqual, 75)
	})

	Convey("Given malformed or out-of-range replies", t, func() {
		cases := []struct {
			content string
			want    error
		}{
			{"申し訳ありません。採点できません。", llm.ErrMalformedResponse},
			{`{"structure_score": 20,`, llm.ErrMalformedResponse},
			{strings.Replace(validReply, `"structure_score":20`, `"structure_score":40`, 1), llm.ErrSchemaMismatch},
			{strings.Replace(validReply, `"structure_score":20`, `"structure_score":20.5`, 1), llm.ErrSchemaMismatch},
			{`{"structure_score":20}`, llm.ErrSchemaMismatch},
		}

		for _, c := range cases {
			e := newEvaluator(t, &fakeOpenAI{content: c.content})
			_, err := e.Evaluate(context.Background(), in)
			So(errors.Is(err, c.want), ShouldBeTrue)
		}
	})

	Convey("Given an endpoint that rejects the key", t, func() {
		e := newEvaluator(t, &fakeOpenAI{status: http.StatusUnauthorized})

		_, err := e.Evaluate(context.Background(), in)

		So(err, ShouldNotBeNil)
	})

	Convey("Given a cancelled context", t, func() {
		fake := &fakeOpenAI{content: validReply}
		e := newEvaluator(t, fake)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := e.Evaluate(ctx, in)

		So(err, ShouldNotBeNil)
	})

	Convey("Given no api key", t, func() {
		_, err := llm.New(llm.Config{})
		So(errors.Is(err, llm.ErrMissingAPIKey), ShouldBeTrue)
	})
}

func TestFallbackOverEvaluator(t *testing.T) {
	Convey("Given the llm evaluator behind the heuristic fallback", t, func() {
		e := newEvaluator(t, &fakeOpenAI{content: "not json"})
		ev, err := scoring.Select(scoring.KindLLM, e)
		So(err, ShouldBeNil)

		res, err := ev.Evaluate(context.Background(), scoring.Input{Text: "これは短い文章です。"})

		Convey("Then a broken reply degrades to the heuristic result", func() {
			So(err, ShouldBeNil)
			So(res.Source, ShouldEqual, model.SourceFallback)
			So(res.Notice, ShouldNotBeEmpty)
			So(res.Total, ShouldEqual, 25)
		})
	})
}

func TestTemplate(t *testing.T) {
	Convey("Given the embedded template", t, func() {
		tmpl, err := llm.DefaultTemplate()
		So(err, ShouldBeNil)
		So(tmpl.Version, ShouldEqual, "essay-rubric/v2")
		So(tmpl.System(), ShouldContainSubstring, "structure_score")

		Convey("Rendering without a university omits the target line", func() {
			out, err := tmpl.Render(llm.PromptData{Theme: "テーマ", Text: "本文"})
			So(err, ShouldBeNil)
			So(out, ShouldNotContainSubstring, "志望校")
			So(out, ShouldContainSubstring, "テーマ")
		})
	})

	Convey("Given broken template documents", t, func() {
		_, err := llm.ParseTemplate([]byte("version: v1\nsystem: s\n"))
		So(errors.Is(err, llm.ErrInvalidTemplate), ShouldBeTrue)

		_, err = llm.ParseTemplate([]byte("version: v1\nsystem: s\nuser: \"{{.Theme\"\n"))
		So(errors.Is(err, llm.ErrInvalidTemplate), ShouldBeTrue)
	})
}

func TestGeneration(t *testing.T) {
	Convey("Given a model that drafts text", t, func() {
		fake := &fakeOpenAI{content: "\n  人口減少社会における公共交通の在り方について論じなさい。 \n"}
		e := newEvaluator(t, fake)

		Convey("When asked for a question", func() {
			text, err := e.WriteQuestion(context.Background(), predict.QuestionRequest{
				University: "早稲田大学",
				Faculty:    "政治経済学部",
				Department: "政治学科",
				PastThemes: []string{"民主主義の課題について論じなさい。"},
			})

			Convey("Then the trimmed text is returned and the request carries the past themes", func() {
				So(err, ShouldBeNil)
				So(text, ShouldEqual, "人口減少社会における公共交通の在り方について論じなさい。")
				body := fake.lastReq.Load().(map[string]any)
				So(body["response_format"], ShouldBeNil)
				user := body["messages"].([]any)[1].(map[string]any)["content"].(string)
				So(user, ShouldContainSubstring, "- 民主主義の課題について論じなさい。")
				So(user, ShouldContainSubstring, "政治学科")
			})
		})

		Convey("When asked for a model answer", func() {
			text, err := e.WriteModelAnswer(context.Background(), answer.Request{
				Theme: "地方創生について論じなさい。", University: "早稲田大学", Faculty: "政治経済学部",
			})

			Convey("Then the theme and faculty reach the model", func() {
				So(err, ShouldBeNil)
				So(text, ShouldNotBeEmpty)
				user := fake.lastReq.Load().(map[string]any)["messages"].([]any)[1].(map[string]any)["content"].(string)
				So(user, ShouldContainSubstring, "地方創生について論じなさい。")
				So(user, ShouldContainSubstring, "早稲田大学政治経済学部の入試を想定し")
			})
		})
	})

	Convey("Given a model that returns only whitespace", t, func() {
		e := newEvaluator(t, &fakeOpenAI{content: "  \n"})
		_, err := e.WriteModelAnswer(context.Background(), answer.Request{Theme: "テーマ"})
		So(errors.Is(err, llm.ErrEmptyCompletion), ShouldBeTrue)
	})

	Convey("Given a failing model behind the domain fallbacks", t, func() {
		e := newEvaluator(t, &fakeOpenAI{status: http.StatusUnauthorized})
		sel := catalog.Selection{UniversityName: "東京大学", FacultyName: "法学部", DepartmentName: "第1類"}

		prompt := predict.New(predict.WithWriter(e)).Generate(context.Background(), sel)
		ans, err := answer.New(answer.WithWriter(e)).Draft(context.Background(), answer.Request{Theme: prompt.Theme})

		Convey("Then both degrade to local templates", func() {
			So(prompt.Source, ShouldEqual, predict.SourceTemplate)
			So(prompt.Notice, ShouldNotBeEmpty)
			So(err, ShouldBeNil)
			So(ans.Source, ShouldEqual, answer.SourceOutline)
		})
	})

	Convey("Given generation documents", t, func() {
		g, err := llm.DefaultGeneration()
		So(err, ShouldBeNil)
		So(g.Version, ShouldEqual, "generation/v1")

		_, err = llm.ParseGeneration([]byte("version: g\nquestion:\n  system: s\n  user: u\n"))
		So(errors.Is(err, llm.ErrInvalidTemplate), ShouldBeTrue)

		_, err = llm.LoadGeneration("/nonexistent/generate.yaml")
		So(err, ShouldNotBeNil)
	})
}
