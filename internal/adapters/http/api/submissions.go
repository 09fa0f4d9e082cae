package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/ronbun/internal/domain/model"
)

// SubmissionDependencies accepts essays for asynchronous scoring and serves results.
type SubmissionDependencies interface {
	Submit(ctx context.Context, sub model.EssaySubmission) (string, bool, error)
	Result(ctx context.Context, id string) (model.Record, error)
	Standing(ctx context.Context, id string) (Entry, error)
}

type submissionRequest struct {
	SubmissionID   string `json:"submission_id,omitempty" validate:"omitempty,max=128"`
	Text           string `json:"text" validate:"max=20000"`
	Theme          string `json:"theme" validate:"max=1000"`
	University     string `json:"university,omitempty" validate:"max=200"`
	Faculty        string `json:"faculty,omitempty" validate:"max=200"`
	TimeLimit      int    `json:"time_limit,omitempty" validate:"gte=0,lte=600"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty" validate:"gte=0,lte=86400"`
}

// submissionResponse is a scored record with its place on the leaderboard.
type submissionResponse struct {
	model.Record
	Rank     int `json:"rank"`
	Position int `json:"position"`
}

type ackResponse struct {
	Status       string `json:"status"`
	SubmissionID string `json:"submission_id"`
	Duplicate    bool   `json:"duplicate"`
}

// SubmissionsHandler handles /submissions routes.
type SubmissionsHandler struct {
	deps     SubmissionDependencies
	validate *validator.Validate
}

// NewSubmissionsHandler creates a new submissions handler.
func NewSubmissionsHandler(deps SubmissionDependencies, v *validator.Validate) *SubmissionsHandler {
	if v == nil {
		v = newValidator()
	}
	return &SubmissionsHandler{deps: deps, validate: v}
}

// HandlePostSubmission handles POST /submissions. New submissions are
// acknowledged with 202, repeats of a known id with 200.
func (h *SubmissionsHandler) HandlePostSubmission(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_submission"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req submissionRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	id, dup, err := h.deps.Submit(r.Context(), model.EssaySubmission{
		SubmissionID: strings.TrimSpace(req.SubmissionID),
		Text:         req.Text,
		Prompt: model.EssayPrompt{
			Theme:      req.Theme,
			TimeLimit:  req.TimeLimit,
			University: req.University,
			Faculty:    req.Faculty,
		},
		ElapsedSeconds: req.ElapsedSeconds,
	})
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", SubmissionID: id, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", SubmissionID: id})
}

// HandleGetSubmission handles GET /submissions/{id}, returning the record with its
// dense rank and position. Pending and unknown ids are both 404.
func (h *SubmissionsHandler) HandleGetSubmission(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_submission"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	rec, err := h.deps.Result(r.Context(), id)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	st, err := h.deps.Standing(r.Context(), id)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, submissionResponse{Record: rec, Rank: st.Rank, Position: st.Position})
}
