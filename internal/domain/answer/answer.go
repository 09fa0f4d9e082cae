// Package answer drafts model answers for practice prompts.
//
// A Writer (usually a language model) produces the text. Without one, or when it
// fails, the Drafter returns a structural outline built from the theme so the
// writer still gets a usable reference.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/ronbun/pkg/logger"
	"github.com/okian/ronbun/pkg/metrics"
)

// Answer sources.
const (
	SourceLLM     = "llm"
	SourceOutline = "outline"
)

const fallbackNotice = "AIによる模範解答を生成できなかったため、構成の手引きを表示しています。"

// Sentinel errors.
var (
	ErrEmptyTheme  = errors.New("theme is required")
	ErrEmptyAnswer = errors.New("writer returned an empty answer")
)

// Request names the prompt to answer and, optionally, the target faculty.
type Request struct {
	Theme      string
	University string
	Faculty    string
}

// Answer is a drafted model answer.
type Answer struct {
	Theme  string `json:"theme"`
	Text   string `json:"text"`
	Source string `json:"source"`
	Notice string `json:"notice,omitempty"`
}

// Writer drafts a model answer.
type Writer interface {
	WriteModelAnswer(ctx context.Context, req Request) (string, error)
}

// Option configures a Drafter.
type Option func(*Drafter)

// WithWriter sets the remote writer.
func WithWriter(w Writer) Option {
	return func(d *Drafter) { d.writer = w }
}

// WithLogger sets the logger used to report writer failures.
func WithLogger(l logger.Logger) Option {
	return func(d *Drafter) {
		if l != nil {
			d.logger = l
		}
	}
}

// Drafter produces model answers.
type Drafter struct {
	writer Writer
	logger logger.Logger
}

// New builds a Drafter.
func New(opts ...Option) *Drafter {
	d := &Drafter{logger: logger.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Draft returns the writer's answer, or an outline when the writer is missing or fails.
func (d *Drafter) Draft(ctx context.Context, req Request) (Answer, error) {
	req.Theme = strings.TrimSpace(req.Theme)
	if req.Theme == "" {
		return Answer{}, ErrEmptyTheme
	}
	if d.writer == nil {
		return Answer{Theme: req.Theme, Text: Outline(req), Source: SourceOutline}, nil
	}

	text, err := d.writer.WriteModelAnswer(ctx, req)
	if err == nil {
		if text = strings.TrimSpace(text); text == "" {
			err = ErrEmptyAnswer
		}
	}
	if err != nil {
		metrics.RecordGenerationFallback("model_answer")
		d.logger.Warn(ctx, "model answer writer failed; using outline", logger.Error(err))
		return Answer{Theme: req.Theme, Text: Outline(req), Source: SourceOutline, Notice: fallbackNotice}, nil
	}
	return Answer{Theme: req.Theme, Text: text, Source: SourceLLM}, nil
}

// Outline is the introduction, body and conclusion plan every answer should follow.
func Outline(req Request) string {
	viewpoint := "自分"
	if req.Faculty != "" {
		viewpoint = req.University + req.Faculty
	}
	return strings.Join([]string{
		fmt.Sprintf("【序論】「%s」について、%sの観点から問題を提起し、自分の立場を明確に述べる。", req.Theme, viewpoint),
		"【本論】例えば具体的な事例や統計データを挙げ、主張の根拠を示す。そのうえで反対意見に触れ、それでも自分の立場が妥当である理由を論じる。",
		"【結論】以上の議論をまとめ、現実的で実現可能な提案によって主張を締めくくる。",
	}, "\n")
}
