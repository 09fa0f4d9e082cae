// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/ronbun/internal/adapters/repository"
	"github.com/okian/ronbun/internal/domain/answer"
	"github.com/okian/ronbun/internal/domain/catalog"
	"github.com/okian/ronbun/internal/domain/model"
)

const defaultMaxLeaderboardLimit = 100

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ScoreDependencies
	SubmissionDependencies
	LeaderboardDependencies
	CatalogDependencies
	AnswerDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = repository.Entry

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	maxLeaderboardLimit int
}

// WithMaxLeaderboardLimit caps GET /leaderboard?limit.
func WithMaxLeaderboardLimit(n int) ServerOption {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxLeaderboardLimit = n
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	scoreHandler       *ScoreHandler
	submissionsHandler *SubmissionsHandler
	leaderboardHandler *LeaderboardHandler
	catalogHandler     *CatalogHandler
	answerHandler      *AnswerHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	o := serverOptions{maxLeaderboardLimit: defaultMaxLeaderboardLimit}
	for _, opt := range opts {
		opt(&o)
	}
	v := newValidator()
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		scoreHandler:       NewScoreHandler(deps, v),
		submissionsHandler: NewSubmissionsHandler(deps, v),
		leaderboardHandler: NewLeaderboardHandler(deps, o.maxLeaderboardLimit),
		catalogHandler:     NewCatalogHandler(deps),
		answerHandler:      NewAnswerHandler(deps, v),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/score", MetricsMiddleware(s.scoreHandler.HandlePostScore, "score"))
	mux.HandleFunc("/submissions", MetricsMiddleware(s.submissionsHandler.HandlePostSubmission, "submissions"))
	mux.HandleFunc("/submissions/{id}", MetricsMiddleware(s.submissionsHandler.HandleGetSubmission, "submission"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/catalog/universities", MetricsMiddleware(s.catalogHandler.HandleSearch, "catalog_universities"))
	mux.HandleFunc("/catalog/prompt", MetricsMiddleware(s.catalogHandler.HandlePrompt, "catalog_prompt"))
	mux.HandleFunc("/model-answer", MetricsMiddleware(s.answerHandler.HandlePostAnswer, "model_answer"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps domain sentinels to status codes.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrEssayTooLong):
		writeError(w, http.StatusRequestEntityTooLarge, "too_long", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, model.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, model.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", Wrap(op, err))
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, repository.ErrInvalidLimit), errors.Is(err, answer.ErrEmptyTheme):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
func decodeAndValidate(r *http.Request, v *validator.Validate, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return v.Struct(dst)
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}
