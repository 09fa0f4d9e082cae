// Package llm scores essays with an OpenAI-compatible chat completion endpoint.
//
// The evaluator is strict: transport errors, empty replies, unparsable JSON and
// schema mismatches all return errors so scoring.Fallback can substitute the
// heuristic result.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/okian/ronbun/internal/domain/model"
	"github.com/okian/ronbun/internal/domain/scoring"
	"github.com/okian/ronbun/pkg/logger"
	"github.com/okian/ronbun/pkg/metrics"
)

// Config defines the remote model settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	// RatePerSec throttles outgoing requests; <= 0 disables throttling.
	RatePerSec float64
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the evaluator logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTemplate replaces the embedded prompt template.
func WithTemplate(t *Template) Option {
	return func(e *Evaluator) {
		if t != nil {
			e.tmpl = t
		}
	}
}

// WithGeneration replaces the embedded question and model answer prompts.
func WithGeneration(g *Generation) Option {
	return func(e *Evaluator) {
		if g != nil {
			e.gen = g
		}
	}
}

// WithHTTPClient sets the client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Evaluator) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// Evaluator implements scoring.Evaluator against the chat completion API.
type Evaluator struct {
	client     *openai.Client
	cfg        Config
	tmpl       *Template
	gen        *Generation
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     logger.Logger
}

var _ scoring.Evaluator = (*Evaluator)(nil)

// New builds an evaluator.
func New(cfg Config, opts ...Option) (*Evaluator, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	e := &Evaluator{
		cfg:    cfg,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tmpl == nil {
		t, err := DefaultTemplate()
		if err != nil {
			return nil, err
		}
		e.tmpl = t
	}
	if e.gen == nil {
		g, err := DefaultGeneration()
		if err != nil {
			return nil, err
		}
		e.gen = g
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	e.limiter = rate.NewLimiter(limit, 1)

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if e.httpClient != nil {
		clientCfg.HTTPClient = e.httpClient
	}
	e.client = openai.NewClientWithConfig(clientCfg)
	return e, nil
}

// Evaluate sends the essay to the model and parses its JSON verdict.
func (e *Evaluator) Evaluate(parent context.Context, in scoring.Input) (model.ScoreResult, error) {
	ctx, cancel := context.WithTimeout(parent, e.cfg.Timeout)
	defer cancel()

	if err := e.limiter.Wait(ctx); err != nil {
		return e.fail(ctx, "throttled", fmt.Errorf("llm rate limit: %w", err))
	}

	user, err := e.tmpl.Render(PromptData{
		University: in.University,
		Faculty:    in.Faculty,
		Theme:      in.Theme,
		Text:       in.Text,
	})
	if err != nil {
		return e.fail(ctx, "template", err)
	}

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: e.tmpl.System()},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	metrics.RecordLLMLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return e.fail(ctx, reason(err), fmt.Errorf("llm evaluate: %w", err))
	}
	if len(resp.Choices) == 0 {
		return e.fail(ctx, "no_choices", ErrNoChoices)
	}

	r, err := parseResponse(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		if errors.Is(err, ErrSchemaMismatch) {
			return e.fail(ctx, "schema", err)
		}
		return e.fail(ctx, "malformed", err)
	}

	res := model.ScoreResult{
		Structure:   r.Structure,
		Content:     r.Content,
		Logic:       r.Logic,
		Expression:  r.Expression,
		Feedback:    r.Feedback,
		Suggestions: r.Suggestions,
		Evaluations: model.Evaluations{
			Structure:  r.StructureEvaluation,
			Content:    r.ContentEvaluation,
			Logic:      r.LogicEvaluation,
			Expression: r.ExpressionEvaluation,
		},
		Source: model.SourceLLM,
	}
	if res.Suggestions == nil {
		res.Suggestions = []string{}
	}
	res.Total = res.Sum()

	e.logger.Debug(ctx, "llm scored essay",
		logger.String("model", e.cfg.Model),
		logger.String("prompt_version", e.tmpl.Version),
		logger.Int("total", res.Total),
	)
	return res, nil
}

func (e *Evaluator) fail(ctx context.Context, why string, err error) (model.ScoreResult, error) {
	return model.ScoreResult{}, e.failure(ctx, "scoring", why, err)
}

// failure records a failed call of the given kind and returns err unchanged.
func (e *Evaluator) failure(ctx context.Context, kind, why string, err error) error {
	metrics.RecordLLMFailure(why)
	e.logger.Warn(ctx, "llm call failed",
		logger.String("kind", kind),
		logger.String("reason", why),
		logger.String("model", e.cfg.Model),
		logger.Error(err),
	)
	return err
}

// reason classifies transport errors for the failure metric.
func reason(err error) string {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &apiErr):
		if apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden {
			return "auth"
		}
		return "api"
	case errors.As(err, &reqErr):
		return "request"
	default:
		return "transport"
	}
}
