package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/davidm/taskflow/internal/activity"
	"github.com/davidm/taskflow/internal/api/middleware"
	"github.com/davidm/taskflow/internal/logger"
	"github.com/davidm/taskflow/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ProjectHandler struct {
	projectService *service.ProjectService
	activities     *activity.Log
}

func NewProjectHandler(projectService *service.ProjectService, activities *activity.Log) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		activities:     activities,
	}
}

type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Project name is required")
		return
	}

	project, err := h.projectService.Create(r.Context(), user, service.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		logger.Error().Err(err).Msg("project creation failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondSuccess(w, http.StatusCreated, "Project created successfully", map[string]interface{}{"project": project})
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project id")
		return
	}

	project, err := h.projectService.GetByID(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			respondError(w, http.StatusNotFound, "Project not found")
			return
		}
		logger.Error().Err(err).Msg("project lookup failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondSuccess(w, http.StatusOK, "", map[string]interface{}{"project": project})
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	projects, err := h.projectService.ListByOwner(r.Context(), user.ID)
	if err != nil {
		logger.Error().Err(err).Msg("project listing failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondSuccess(w, http.StatusOK, "", map[string]interface{}{"projects": projects})
}

func (h *ProjectHandler) Activities(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project id")
		return
	}

	entries, err := h.activities.ProjectActivities(r.Context(), projectID, queryLimit(r, 20))
	if err != nil {
		logger.Error().Err(err).Msg("activity lookup failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondSuccess(w, http.StatusOK, "", map[string]interface{}{"activities": entries})
}
