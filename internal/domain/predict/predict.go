// Package predict generates likely essay prompts from a department's past questions.
package predict

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ronbun/internal/domain/catalog"
	"github.com/okian/ronbun/pkg/logger"
	"github.com/okian/ronbun/pkg/metrics"
)

// DefaultTimeLimit is used when a department has no past questions, in minutes.
const DefaultTimeLimit = 90

// Prompt sources.
const (
	SourceTemplate = "template"
	SourceLLM      = "llm"
)

const fallbackNotice = "AIによる問題生成を利用できなかったため、テンプレートから作成した問題を表示しています。"

// QuestionRequest is what a Writer gets to draft a question from.
type QuestionRequest struct {
	University string
	Faculty    string
	Department string
	PastThemes []string
}

// Writer drafts a question text, typically with a language model.
type Writer interface {
	WriteQuestion(ctx context.Context, req QuestionRequest) (string, error)
}

// Rand is the subset of *rand.Rand the predictor needs.
type Rand interface {
	IntN(n int) int
}

// Prompt is a generated practice question.
type Prompt struct {
	ID          string    `json:"id"`
	Theme       string    `json:"theme"`
	TimeLimit   int       `json:"time_limit"`
	GeneratedAt time.Time `json:"generated_at"`
	BasedOn     []string  `json:"based_on"`
	University  string    `json:"university"`
	Faculty     string    `json:"faculty"`
	Department  string    `json:"department"`
	Source      string    `json:"source"`
	Notice      string    `json:"notice,omitempty"`
}

var trends = []string{
	"デジタル化",
	"AI・人工知能",
	"持続可能性",
	"グローバル化",
	"多様性と包摂",
	"少子高齢化",
	"環境問題",
	"働き方改革",
	"コロナ後の社会",
	"イノベーション",
}

// subjects is ordered so the context pool is stable for a given faculty and department.
var subjects = []struct {
	key      string
	contexts []string
}{
	{"政治", []string{"民主主義", "政策", "国際関係", "社会制度", "公共政策"}},
	{"経済", []string{"経済成長", "市場", "金融", "グローバル経済", "産業構造"}},
	{"法", []string{"法の支配", "人権", "司法制度", "国際法", "社会規範"}},
	{"文学", []string{"表現", "文化", "コミュニケーション", "芸術", "言語"}},
	{"教育", []string{"学習", "人材育成", "教育制度", "知識社会", "生涯学習"}},
	{"医学", []string{"健康", "医療技術", "予防医学", "高齢化", "医療倫理"}},
	{"工学", []string{"技術革新", "ものづくり", "環境技術", "インフラ", "デザイン"}},
	{"理学", []string{"科学技術", "研究", "発見", "自然科学", "データサイエンス"}},
}

var genericContexts = []string{"社会", "現代", "課題", "解決策", "将来"}

var templates = []string{
	"%[1]sが進む現代において、%[2]sはどのような課題に直面し、どのような解決策が考えられるか、具体例を挙げて論じなさい。",
	"%[1]sの発展が%[2]sに与える影響について、メリットとデメリットを比較検討し、今後の在り方を論じなさい。",
	"現代社会における%[1]sの重要性を踏まえ、%[2]sの分野でどのような革新が必要か、あなたの考えを述べなさい。",
	"%[1]sを背景とした社会変化の中で、%[2]sが果たすべき役割と課題について論じなさい。",
	"%[1]sと%[2]sの関係性を分析し、持続可能な社会の実現に向けた提言を行いなさい。",
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithRand sets the random source, for deterministic output in tests.
func WithRand(r Rand) Option {
	return func(p *Predictor) {
		if r != nil {
			p.rng = r
		}
	}
}

// WithClock sets the time source for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Predictor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithWriter drafts questions remotely; templates remain the fallback.
func WithWriter(w Writer) Option {
	return func(p *Predictor) {
		p.writer = w
	}
}

// WithLogger sets the logger used to report writer failures.
func WithLogger(l logger.Logger) Option {
	return func(p *Predictor) {
		if l != nil {
			p.logger = l
		}
	}
}

// Predictor builds prompts. It is safe for concurrent use.
type Predictor struct {
	mu     sync.Mutex // guards rng
	rng    Rand
	now    func() time.Time
	writer Writer
	logger logger.Logger
}

// New returns a Predictor seeded from the runtime's random source.
func New(opts ...Option) *Predictor {
	p := &Predictor{
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Predict picks a trend, a subject context and a template, and inherits the
// time limit of the first past question.
func (p *Predictor) Predict(past []catalog.PastQuestion, university, faculty, department string) Prompt {
	timeLimit := DefaultTimeLimit
	if len(past) > 0 && past[0].TimeLimit > 0 {
		timeLimit = past[0].TimeLimit
	}

	contexts := Contexts(faculty, department)
	p.mu.Lock()
	trend := trends[p.rng.IntN(len(trends))]
	subject := contexts[p.rng.IntN(len(contexts))]
	tmpl := templates[p.rng.IntN(len(templates))]
	p.mu.Unlock()

	basedOn := make([]string, len(past))
	for i, q := range past {
		basedOn[i] = q.ID
	}

	return Prompt{
		ID:          "predicted-" + uuid.NewString(),
		Theme:       fmt.Sprintf(tmpl, trend, subject),
		TimeLimit:   timeLimit,
		GeneratedAt: p.now(),
		BasedOn:     basedOn,
		University:  university,
		Faculty:     faculty,
		Department:  department,
		Source:      SourceTemplate,
	}
}

// ForSelection predicts from a resolved catalog selection.
func (p *Predictor) ForSelection(sel catalog.Selection) Prompt {
	return p.Predict(sel.PastQuestions, sel.UniversityName, sel.FacultyName, sel.DepartmentName)
}

// Generate asks the Writer for a question and falls back to a template
// prediction when there is no Writer or it fails. It never returns an error.
func (p *Predictor) Generate(ctx context.Context, sel catalog.Selection) Prompt {
	prompt := p.ForSelection(sel)
	if p.writer == nil {
		return prompt
	}

	themes := make([]string, len(sel.PastQuestions))
	for i, q := range sel.PastQuestions {
		themes[i] = q.Theme
	}
	text, err := p.writer.WriteQuestion(ctx, QuestionRequest{
		University: sel.UniversityName,
		Faculty:    sel.FacultyName,
		Department: sel.DepartmentName,
		PastThemes: themes,
	})
	if err == nil {
		if text = strings.TrimSpace(text); text == "" {
			err = ErrEmptyQuestion
		}
	}
	if err != nil {
		metrics.RecordGenerationFallback("question")
		p.logger.Warn(ctx, "question writer failed; using template", logger.Error(err))
		prompt.Notice = fallbackNotice
		return prompt
	}

	prompt.Theme = text
	prompt.Source = SourceLLM
	return prompt
}

// Contexts returns the subject keywords matching faculty or department names,
// or the generic pool when nothing matches.
func Contexts(faculty, department string) []string {
	var out []string
	for _, s := range subjects {
		if strings.Contains(faculty, s.key) || strings.Contains(department, s.key) {
			out = append(out, s.contexts...)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), genericContexts...)
	}
	return out
}
