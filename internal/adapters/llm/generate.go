package llm

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/okian/ronbun/internal/domain/answer"
	"github.com/okian/ronbun/internal/domain/predict"
	"github.com/okian/ronbun/pkg/logger"
	"github.com/okian/ronbun/pkg/metrics"
)

//go:embed generate.yaml
var defaultGeneration []byte

var (
	_ predict.Writer = (*Evaluator)(nil)
	_ answer.Writer  = (*Evaluator)(nil)
)

// Generation holds the free-text prompts for questions and model answers.
type Generation struct {
	Version     string
	question    textPrompt
	modelAnswer textPrompt
}

type textPrompt struct {
	system      string
	user        *template.Template
	maxTokens   int
	temperature float32
}

type generationFile struct {
	Version     string         `yaml:"version"`
	Question    textPromptFile `yaml:"question"`
	ModelAnswer textPromptFile `yaml:"model_answer"`
}

type textPromptFile struct {
	System      string  `yaml:"system"`
	User        string  `yaml:"user"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// DefaultGeneration returns the generation prompts compiled into the binary.
func DefaultGeneration() (*Generation, error) {
	return ParseGeneration(defaultGeneration)
}

// LoadGeneration reads generation prompts from path, or the embedded ones when path is empty.
func LoadGeneration(path string) (*Generation, error) {
	if path == "" {
		return DefaultGeneration()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read generation prompts %s: %w", path, err)
	}
	return ParseGeneration(data)
}

// ParseGeneration decodes a YAML generation document.
func ParseGeneration(data []byte) (*Generation, error) {
	var f generationFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidTemplate)
	}
	question, err := f.Question.compile(f.Version + "/question")
	if err != nil {
		return nil, err
	}
	modelAnswer, err := f.ModelAnswer.compile(f.Version + "/model_answer")
	if err != nil {
		return nil, err
	}
	return &Generation{Version: f.Version, question: question, modelAnswer: modelAnswer}, nil
}

func (f textPromptFile) compile(name string) (textPrompt, error) {
	if strings.TrimSpace(f.System) == "" || strings.TrimSpace(f.User) == "" {
		return textPrompt{}, fmt.Errorf("%w: %s needs system and user", ErrInvalidTemplate, name)
	}
	user, err := template.New(name).Option("missingkey=error").Parse(f.User)
	if err != nil {
		return textPrompt{}, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	return textPrompt{system: f.System, user: user, maxTokens: f.MaxTokens, temperature: f.Temperature}, nil
}

// WriteQuestion drafts a practice question for a department.
func (e *Evaluator) WriteQuestion(ctx context.Context, req predict.QuestionRequest) (string, error) {
	return e.complete(ctx, "question", e.gen.question, req)
}

// WriteModelAnswer drafts a model answer for a theme.
func (e *Evaluator) WriteModelAnswer(ctx context.Context, req answer.Request) (string, error) {
	return e.complete(ctx, "model_answer", e.gen.modelAnswer, req)
}

// complete runs one free-text chat completion.
func (e *Evaluator) complete(parent context.Context, kind string, p textPrompt, data any) (string, error) {
	ctx, cancel := context.WithTimeout(parent, e.cfg.Timeout)
	defer cancel()

	if err := e.limiter.Wait(ctx); err != nil {
		return "", e.failure(ctx, kind, "throttled", fmt.Errorf("llm rate limit: %w", err))
	}

	var user strings.Builder
	if err := p.user.Execute(&user, data); err != nil {
		return "", e.failure(ctx, kind, "template", fmt.Errorf("render %s prompt: %w", kind, err))
	}

	maxTokens := p.maxTokens
	if maxTokens <= 0 {
		maxTokens = e.cfg.MaxTokens
	}
	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: p.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.system},
			{Role: openai.ChatMessageRoleUser, Content: user.String()},
		},
	})
	metrics.RecordLLMLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return "", e.failure(ctx, kind, reason(err), fmt.Errorf("llm %s: %w", kind, err))
	}
	if len(resp.Choices) == 0 {
		return "", e.failure(ctx, kind, "no_choices", ErrNoChoices)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", e.failure(ctx, kind, "empty", ErrEmptyCompletion)
	}

	e.logger.Debug(ctx, "llm generated text",
		logger.String("kind", kind),
		logger.String("prompt_version", e.gen.Version),
		logger.Int("runes", len([]rune(text))),
	)
	return text, nil
}
