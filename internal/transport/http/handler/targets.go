package handler

import (
	"net/http"

	"github.com/facevote-api/internal/application/target"
	"github.com/facevote-api/internal/domain"
	"github.com/go-chi/chi/v5"
)

// TargetHandler handles elections and forms.
type TargetHandler struct {
	svc target.Service
}

func NewTargetHandler(svc target.Service) *TargetHandler { return &TargetHandler{svc: svc} }

func (h *TargetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.TargetInput
	if !decodeJSON(w, r, &in) {
		return
	}
	t, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TargetHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
