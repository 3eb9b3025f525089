package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/services"
)

type ProjectHandler struct {
	projects *services.ProjectService
	log      *zap.Logger
}

func NewProjectHandler(projects *services.ProjectService, log *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, log: log.Named("project-handler")}
}

func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	projects, err := h.projects.List(r.Context(), userID)
	if err != nil {
		respondErr(w, h.log, err)
		return
	}
	RespondJSON(w, http.StatusOK, projects)
}

type createProjectRequest struct {
	Name string `json:"name"`
}

func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := h.projects.Create(r.Context(), userID, req.Name)
	if err != nil {
		respondErr(w, h.log, err)
		return
	}
	RespondJSON(w, http.StatusCreated, p)
}

func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.projects.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		respondErr(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
