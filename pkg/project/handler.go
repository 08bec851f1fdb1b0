package project

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type ProjectDTO struct {
	Uid       string `json:"uid"`
	Name      string `json:"name"`
	Code      string `json:"code,omitempty"`
	Client    string `json:"client,omitempty"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type Handler struct {
	service Service
}

func NewProjectHandler(service Service) *Handler {
	return &Handler{service}
}

// ListProjects godoc
// @Summary List projects
// @Description Get all projects of the current user, active ones by default
// @Tags Project
// @Produce json
// @Param includeArchived query bool false "Include archived projects"
// @Success 200 {array} ProjectDTO
// @Failure 403 {string} string "User not found"
// @Router /api/project [get]
// @Security XUserId
func (handler *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	log.Debug("Listing projects")
	w.Header().Set("Content-Type", "application/json")

	includeArchived := r.URL.Query().Get("includeArchived") == "true"
	projects, err := handler.service.ListProjects(r.Context(), includeArchived)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	dtos := make([]ProjectDTO, 0, len(projects))
	for _, project := range projects {
		dtos = append(dtos, projectToDTO(project))
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// CreateProject godoc
// @Summary Create a new project
// @Description Create a new project with its own currency and cost plan
// @Tags Project
// @Accept json
// @Produce json
// @Param project body ProjectDTO true "Project"
// @Success 201 {object} ProjectDTO
// @Failure 400 {string} string "Bad Request"
// @Failure 403 {string} string "User not found"
// @Router /api/project [post]
// @Security XUserId
func (handler *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new project")
	w.Header().Set("Content-Type", "application/json")

	var dto ProjectDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if dto.Name == "" {
		http.Error(w, "project name is required", http.StatusBadRequest)
		return
	}

	created, err := handler.service.CreateProject(r.Context(), dtoToProject(dto))
	if err != nil {
		if errors.Is(err, ErrInvalidCurrency) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(projectToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// GetProject godoc
// @Summary Get a project
// @Tags Project
// @Produce json
// @Param projectUid path string true "Project UID"
// @Success 200 {object} ProjectDTO
// @Failure 404 {string} string "Project not found"
// @Router /api/project/{projectUid} [get]
// @Security XUserId
func (handler *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	uid := mux.Vars(r)["projectUid"]

	project, err := handler.service.GetProject(r.Context(), uid)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			http.Error(w, "project not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(projectToDTO(project)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// UpdateProject godoc
// @Summary Update a project
// @Tags Project
// @Accept json
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param project body ProjectDTO true "Project"
// @Success 200 {object} ProjectDTO
// @Failure 400 {string} string "Bad Request"
// @Failure 404 {string} string "Project not found"
// @Failure 409 {string} string "Project is archived"
// @Router /api/project/{projectUid} [put]
// @Security XUserId
func (handler *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	uid := mux.Vars(r)["projectUid"]

	var dto ProjectDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dto.Uid = uid

	updated, err := handler.service.UpdateProject(r.Context(), dtoToProject(dto))
	if err != nil {
		switch {
		case errors.Is(err, ErrProjectNotFound):
			http.Error(w, "project not found", http.StatusNotFound)
		case errors.Is(err, ErrProjectArchived):
			http.Error(w, "project is archived", http.StatusConflict)
		case errors.Is(err, ErrInvalidCurrency):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(projectToDTO(updated)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// ArchiveProject godoc
// @Summary Archive a project
// @Description Archiving replaces deletion so variations and invoices stay auditable
// @Tags Project
// @Param projectUid path string true "Project UID"
// @Success 204 {string} string "Archived"
// @Failure 404 {string} string "Project not found"
// @Router /api/project/{projectUid} [delete]
// @Security XUserId
func (handler *Handler) ArchiveProject(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["projectUid"]

	if err := handler.service.ArchiveProject(r.Context(), uid); err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			http.Error(w, "project not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreProject godoc
// @Summary Restore an archived project
// @Tags Project
// @Param projectUid path string true "Project UID"
// @Success 204 {string} string "Restored"
// @Failure 404 {string} string "Project not found"
// @Router /api/project/{projectUid}/restore [post]
// @Security XUserId
func (handler *Handler) RestoreProject(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["projectUid"]

	if err := handler.service.RestoreProject(r.Context(), uid); err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			http.Error(w, "project not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func dtoToProject(dto ProjectDTO) Project {
	return Project{
		Uid:      dto.Uid,
		Name:     dto.Name,
		Code:     dto.Code,
		Client:   dto.Client,
		Currency: dto.Currency,
		Status:   Status(dto.Status),
	}
}

func projectToDTO(project Project) ProjectDTO {
	return ProjectDTO{
		Uid:       project.Uid,
		Name:      project.Name,
		Code:      project.Code,
		Client:    project.Client,
		Currency:  project.Currency,
		Status:    string(project.Status),
		CreatedAt: project.CreatedAt.UTC().Format(time.RFC3339),
	}
}
