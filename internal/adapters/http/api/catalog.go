package api

import (
	"context"
	"net/http"

	"github.com/okian/ronbun/internal/domain/catalog"
	"github.com/okian/ronbun/internal/domain/predict"
)

// CatalogDependencies exposes the university catalog and the question predictor.
type CatalogDependencies interface {
	Universities(query string) ([]catalog.University, error)
	PredictPrompt(ctx context.Context, universityID, facultyID, departmentID string) (predict.Prompt, error)
}

// CatalogHandler handles /catalog routes.
type CatalogHandler struct {
	deps CatalogDependencies
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(deps CatalogDependencies) *CatalogHandler {
	return &CatalogHandler{deps: deps}
}

// HandleSearch handles GET /catalog/universities?q=.
func (h *CatalogHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	const op = "api.search_universities"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	unis, err := h.deps.Universities(r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, unis)
}

// HandlePrompt handles GET /catalog/prompt?university=&faculty=&department=.
func (h *CatalogHandler) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	const op = "api.predict_prompt"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	uni, fac, dep := q.Get("university"), q.Get("faculty"), q.Get("department")
	if uni == "" || fac == "" || dep == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	p, err := h.deps.PredictPrompt(r.Context(), uni, fac, dep)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
