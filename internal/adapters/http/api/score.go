package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/ronbun/internal/domain/model"
	"github.com/okian/ronbun/internal/domain/scoring"
)

// maxBodyBytes bounds request bodies before JSON decoding.
const maxBodyBytes = 1 << 20

// ScoreDependencies grades an essay synchronously.
type ScoreDependencies interface {
	Score(ctx context.Context, in scoring.Input) (model.ScoreResult, error)
}

type scoreRequest struct {
	Text       string `json:"text" validate:"max=20000"`
	Theme      string `json:"theme" validate:"max=1000"`
	University string `json:"university,omitempty" validate:"max=200"`
	Faculty    string `json:"faculty,omitempty" validate:"max=200"`
}

// ScoreHandler handles POST /score.
type ScoreHandler struct {
	deps     ScoreDependencies
	validate *validator.Validate
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps ScoreDependencies, v *validator.Validate) *ScoreHandler {
	if v == nil {
		v = newValidator()
	}
	return &ScoreHandler{deps: deps, validate: v}
}

// HandlePostScore scores the posted essay and returns the breakdown. An empty
// essay is not an error: it scores zero with a "no content" remark.
func (h *ScoreHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req scoreRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Score(r.Context(), scoring.Input{
		Text:       req.Text,
		Theme:      req.Theme,
		University: req.University,
		Faculty:    req.Faculty,
	})
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
