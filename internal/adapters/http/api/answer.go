package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/ronbun/internal/domain/answer"
)

// AnswerDependencies drafts model answers.
type AnswerDependencies interface {
	ModelAnswer(ctx context.Context, req answer.Request) (answer.Answer, error)
}

type answerRequest struct {
	Theme      string `json:"theme" validate:"required,max=1000"`
	University string `json:"university,omitempty" validate:"max=200"`
	Faculty    string `json:"faculty,omitempty" validate:"max=200"`
}

// AnswerHandler handles POST /model-answer.
type AnswerHandler struct {
	deps     AnswerDependencies
	validate *validator.Validate
}

// NewAnswerHandler creates a new model answer handler.
func NewAnswerHandler(deps AnswerDependencies, v *validator.Validate) *AnswerHandler {
	if v == nil {
		v = newValidator()
	}
	return &AnswerHandler{deps: deps, validate: v}
}

// HandlePostAnswer drafts a model answer for the posted theme.
func (h *AnswerHandler) HandlePostAnswer(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_model_answer"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req answerRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	a, err := h.deps.ModelAnswer(r.Context(), answer.Request{
		Theme:      req.Theme,
		University: req.University,
		Faculty:    req.Faculty,
	})
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
