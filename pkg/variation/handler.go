package variation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/costwise/costwise/pkg/match"
	"github.com/costwise/costwise/pkg/money"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type VariationDTO struct {
	Uid         string  `json:"uid"`
	ProjectUid  string  `json:"projectUid"`
	CostLineUid string  `json:"costLineUid,omitempty"`
	Number      int     `json:"number"`
	Code        string  `json:"code,omitempty"`
	Title       string  `json:"title"`
	Detail      string  `json:"detail,omitempty"`
	Category    string  `json:"category"`
	Amount      int64   `json:"amount"`
	Status      string  `json:"status"`
	MatchScore  float64 `json:"matchScore,omitempty"`
	MatchMethod string  `json:"matchMethod,omitempty"`
	SubmittedAt string  `json:"submittedAt,omitempty"`
	DecidedAt   string  `json:"decidedAt,omitempty"`
	CreatedAt   string  `json:"createdAt,omitempty"`
}

type Handler struct {
	service Service
}

func NewVariationHandler(service Service) *Handler {
	return &Handler{service}
}

// ListVariations godoc
// @Summary List the variations of a project
// @Tags Variation
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param status query string false "Restrict to one status" Enums(draft, submitted, approved, rejected)
// @Success 200 {array} VariationDTO
// @Failure 403 {string} string "User not found"
// @Router /api/project/{projectUid}/variation [get]
// @Security XUserId
func (handler *Handler) ListVariations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]
	status := Status(r.URL.Query().Get("status"))

	variations, err := handler.service.ListVariations(r.Context(), projectUid, status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	dtos := make([]VariationDTO, 0, len(variations))
	for _, variation := range variations {
		dtos = append(dtos, variationToDTO(variation))
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// GetVariation godoc
// @Summary Get a variation
// @Tags Variation
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param variationUid path string true "Variation UID"
// @Success 200 {object} VariationDTO
// @Failure 404 {string} string "Variation not found"
// @Router /api/project/{projectUid}/variation/{variationUid} [get]
// @Security XUserId
func (handler *Handler) GetVariation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	uid := mux.Vars(r)["variationUid"]

	variation, err := handler.service.GetVariation(r.Context(), uid)
	if err != nil {
		if errors.Is(err, ErrVariationNotFound) {
			http.Error(w, "variation not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(variationToDTO(variation)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// CreateVariation godoc
// @Summary Raise a new variation
// @Description The variation starts as a draft and gets the next free number of the project
// @Tags Variation
// @Accept json
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param variation body VariationDTO true "Variation"
// @Success 201 {object} VariationDTO
// @Failure 400 {string} string "Bad Request"
// @Router /api/project/{projectUid}/variation [post]
// @Security XUserId
func (handler *Handler) CreateVariation(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new variation")
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]

	var dto VariationDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if dto.Title == "" {
		http.Error(w, "variation title is required", http.StatusBadRequest)
		return
	}
	dto.ProjectUid = projectUid

	created, err := handler.service.CreateVariation(r.Context(), dtoToVariation(dto))
	if err != nil {
		if errors.Is(err, ErrInvalidCategory) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(variationToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// UpdateVariation godoc
// @Summary Update a draft variation
// @Description Amount and cost line link can only change while the variation is a draft
// @Tags Variation
// @Accept json
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param variationUid path string true "Variation UID"
// @Param variation body VariationDTO true "Variation"
// @Success 200 {object} VariationDTO
// @Failure 400 {string} string "Bad Request"
// @Failure 404 {string} string "Variation not found"
// @Failure 409 {string} string "Variation is not a draft"
// @Router /api/project/{projectUid}/variation/{variationUid} [put]
// @Security XUserId
func (handler *Handler) UpdateVariation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	vars := mux.Vars(r)

	var dto VariationDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dto.Uid = vars["variationUid"]
	dto.ProjectUid = vars["projectUid"]

	updated, err := handler.service.UpdateVariation(r.Context(), dtoToVariation(dto))
	if err != nil {
		switch {
		case errors.Is(err, ErrVariationNotFound):
			http.Error(w, "variation not found", http.StatusNotFound)
		case errors.Is(err, ErrNotDraft):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, ErrInvalidCategory):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(variationToDTO(updated)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// DeleteVariation godoc
// @Summary Delete a variation
// @Description Approved variations are part of the cost record and cannot be deleted
// @Tags Variation
// @Param projectUid path string true "Project UID"
// @Param variationUid path string true "Variation UID"
// @Success 204 {string} string "Deleted"
// @Failure 404 {string} string "Variation not found"
// @Failure 409 {string} string "Variation is approved"
// @Router /api/project/{projectUid}/variation/{variationUid} [delete]
// @Security XUserId
func (handler *Handler) DeleteVariation(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["variationUid"]

	if _, err := handler.service.DeleteVariation(r.Context(), uid); err != nil {
		switch {
		case errors.Is(err, ErrVariationNotFound):
			http.Error(w, "variation not found", http.StatusNotFound)
		case errors.Is(err, ErrApprovedImmutable):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitVariation godoc
// @Summary Submit a draft variation for a decision
// @Tags Variation
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param variationUid path string true "Variation UID"
// @Success 200 {object} VariationDTO
// @Failure 404 {string} string "Variation not found"
// @Failure 409 {string} string "Invalid status transition"
// @Router /api/project/{projectUid}/variation/{variationUid}/submit [post]
// @Security XUserId
func (handler *Handler) SubmitVariation(w http.ResponseWriter, r *http.Request) {
	handler.transition(w, r, handler.service.Submit)
}

// ApproveVariation godoc
// @Summary Approve a submitted variation
// @Description Approval requires a linked cost line, the amount then feeds the line's forecast
// @Tags Variation
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param variationUid path string true "Variation UID"
// @Success 200 {object} VariationDTO
// @Failure 404 {string} string "Variation not found"
// @Failure 409 {string} string "Invalid status transition"
// @Router /api/project/{projectUid}/variation/{variationUid}/approve [post]
// @Security XUserId
func (handler *Handler) ApproveVariation(w http.ResponseWriter, r *http.Request) {
	handler.transition(w, r, handler.service.Approve)
}

// RejectVariation godoc
// @Summary Reject a submitted variation
// @Tags Variation
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param variationUid path string true "Variation UID"
// @Success 200 {object} VariationDTO
// @Failure 404 {string} string "Variation not found"
// @Failure 409 {string} string "Invalid status transition"
// @Router /api/project/{projectUid}/variation/{variationUid}/reject [post]
// @Security XUserId
func (handler *Handler) RejectVariation(w http.ResponseWriter, r *http.Request) {
	handler.transition(w, r, handler.service.Reject)
}

// ReopenVariation godoc
// @Summary Reopen a rejected variation as a draft
// @Tags Variation
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param variationUid path string true "Variation UID"
// @Success 200 {object} VariationDTO
// @Failure 404 {string} string "Variation not found"
// @Failure 409 {string} string "Invalid status transition"
// @Router /api/project/{projectUid}/variation/{variationUid}/reopen [post]
// @Security XUserId
func (handler *Handler) ReopenVariation(w http.ResponseWriter, r *http.Request) {
	handler.transition(w, r, handler.service.Reopen)
}

func (handler *Handler) transition(w http.ResponseWriter, r *http.Request, change func(ctx context.Context, uid string) (Variation, error)) {
	w.Header().Set("Content-Type", "application/json")
	uid := mux.Vars(r)["variationUid"]

	changed, err := change(r.Context(), uid)
	if err != nil {
		switch {
		case errors.Is(err, ErrVariationNotFound):
			http.Error(w, "variation not found", http.StatusNotFound)
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrUnlinked):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(variationToDTO(changed)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func dtoToVariation(dto VariationDTO) Variation {
	return Variation{
		Uid:         dto.Uid,
		ProjectUid:  dto.ProjectUid,
		CostLineUid: dto.CostLineUid,
		Title:       dto.Title,
		Detail:      dto.Detail,
		Category:    Category(dto.Category),
		Amount:      money.Cents(dto.Amount),
		MatchScore:  dto.MatchScore,
		MatchMethod: match.Method(dto.MatchMethod),
	}
}

func variationToDTO(variation Variation) VariationDTO {
	dto := VariationDTO{
		Uid:         variation.Uid,
		ProjectUid:  variation.ProjectUid,
		CostLineUid: variation.CostLineUid,
		Number:      variation.Number,
		Code:        variation.Code(),
		Title:       variation.Title,
		Detail:      variation.Detail,
		Category:    string(variation.Category),
		Amount:      int64(variation.Amount),
		Status:      string(variation.Status),
		MatchScore:  variation.MatchScore,
		MatchMethod: string(variation.MatchMethod),
		CreatedAt:   variation.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !variation.SubmittedAt.IsZero() {
		dto.SubmittedAt = variation.SubmittedAt.UTC().Format(time.RFC3339)
	}
	if !variation.DecidedAt.IsZero() {
		dto.DecidedAt = variation.DecidedAt.UTC().Format(time.RFC3339)
	}
	return dto
}
