package costplan

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/costwise/costwise/pkg/allocation"
	"github.com/costwise/costwise/pkg/money"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type CostLineDTO struct {
	Uid              string `json:"uid"`
	ProjectUid       string `json:"projectUid"`
	Section          string `json:"section"`
	Activity         string `json:"activity"`
	Budget           int64  `json:"budget"`
	ApprovedContract int64  `json:"approvedContract"`
	ContractAwarded  bool   `json:"contractAwarded"`
	Locked           bool   `json:"locked"`
	Position         int    `json:"position"`
	Note             string `json:"note,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
}

type LineFiguresDTO struct {
	ApprovedVariations  int64 `json:"approvedVariations"`
	Forecast            int64 `json:"forecast"`
	Variance            int64 `json:"variance"`
	ActualToDate        int64 `json:"actualToDate"`
	PaidToDate          int64 `json:"paidToDate"`
	RemainingCommitment int64 `json:"remainingCommitment"`
	Overrun             int64 `json:"overrun,omitempty"`
}

type LineViewDTO struct {
	CostLineDTO
	Figures LineFiguresDTO `json:"figures"`
}

type RollupDTO struct {
	Budget             int64 `json:"budget"`
	ApprovedContract   int64 `json:"approvedContract"`
	ApprovedVariations int64 `json:"approvedVariations"`
	Forecast           int64 `json:"forecast"`
	Variance           int64 `json:"variance"`
	ActualToDate       int64 `json:"actualToDate"`
	PaidToDate         int64 `json:"paidToDate"`
}

type SectionRollupDTO struct {
	Section string `json:"section"`
	RollupDTO
}

type UnlinkedTotalsDTO struct {
	ApprovedVariations int64 `json:"approvedVariations"`
	ActualToDate       int64 `json:"actualToDate"`
	PaidToDate         int64 `json:"paidToDate"`
}

type PlanViewDTO struct {
	ProjectUid string             `json:"projectUid"`
	Lines      []LineViewDTO      `json:"lines"`
	Sections   []SectionRollupDTO `json:"sections"`
	Totals     RollupDTO          `json:"totals"`
	Unlinked   UnlinkedTotalsDTO  `json:"unlinked"`
}

type MoveLineDTO struct {
	// PrecedingUid is the line to place the moved line after, empty for the
	// front of the plan.
	PrecedingUid string `json:"precedingUid"`
}

type LockLineDTO struct {
	Locked bool `json:"locked"`
}

type ApplyEstimateDTO struct {
	Total int64            `json:"total"`
	Rows  []allocation.Row `json:"rows"`
}

type Handler struct {
	service Service
}

func NewCostPlanHandler(service Service) *Handler {
	return &Handler{service}
}

// GetPlan godoc
// @Summary Get the cost plan of a project
// @Description Lines with derived figures, section rollups and project totals
// @Tags CostPlan
// @Produce json
// @Param projectUid path string true "Project UID"
// @Success 200 {object} PlanViewDTO
// @Failure 403 {string} string "User not found"
// @Router /api/project/{projectUid}/costplan [get]
// @Security XUserId
func (handler *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]

	view, err := handler.service.Plan(r.Context(), projectUid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(PlanViewToDTO(view)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// CreateLine godoc
// @Summary Add a cost line
// @Tags CostPlan
// @Accept json
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param line body CostLineDTO true "Cost line"
// @Success 201 {object} CostLineDTO
// @Failure 400 {string} string "Bad Request"
// @Router /api/project/{projectUid}/costplan/line [post]
// @Security XUserId
func (handler *Handler) CreateLine(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new cost line")
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]

	var dto CostLineDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dto.ProjectUid = projectUid

	created, err := handler.service.CreateLine(r.Context(), dtoToLine(dto))
	if err != nil {
		if errors.Is(err, ErrLineInvalid) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(lineToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// UpdateLine godoc
// @Summary Update a cost line
// @Description Position and lock state are managed through their own endpoints
// @Tags CostPlan
// @Accept json
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param lineUid path string true "Cost line UID"
// @Param line body CostLineDTO true "Cost line"
// @Success 200 {object} CostLineDTO
// @Failure 400 {string} string "Bad Request"
// @Failure 404 {string} string "Cost line not found"
// @Router /api/project/{projectUid}/costplan/line/{lineUid} [put]
// @Security XUserId
func (handler *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	vars := mux.Vars(r)

	var dto CostLineDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dto.Uid = vars["lineUid"]
	dto.ProjectUid = vars["projectUid"]

	updated, err := handler.service.UpdateLine(r.Context(), dtoToLine(dto))
	if err != nil {
		switch {
		case errors.Is(err, ErrLineNotFound):
			http.Error(w, "cost line not found", http.StatusNotFound)
		case errors.Is(err, ErrLineInvalid):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(lineToDTO(updated)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// LockLine godoc
// @Summary Lock or unlock a cost line
// @Description A locked line keeps its budget when an estimate is applied
// @Tags CostPlan
// @Accept json
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param lineUid path string true "Cost line UID"
// @Param lock body LockLineDTO true "Lock state"
// @Success 200 {object} CostLineDTO
// @Failure 404 {string} string "Cost line not found"
// @Router /api/project/{projectUid}/costplan/line/{lineUid}/lock [put]
// @Security XUserId
func (handler *Handler) LockLine(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	uid := mux.Vars(r)["lineUid"]

	var dto LockLineDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := handler.service.SetLocked(r.Context(), uid, dto.Locked)
	if err != nil {
		if errors.Is(err, ErrLineNotFound) {
			http.Error(w, "cost line not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(lineToDTO(updated)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// MoveLine godoc
// @Summary Move a cost line within the plan
// @Tags CostPlan
// @Accept json
// @Param projectUid path string true "Project UID"
// @Param lineUid path string true "Cost line UID"
// @Param move body MoveLineDTO true "New place"
// @Success 204 {string} string "Moved"
// @Failure 404 {string} string "Cost line not found"
// @Router /api/project/{projectUid}/costplan/line/{lineUid}/move [put]
// @Security XUserId
func (handler *Handler) MoveLine(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var dto MoveLineDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := handler.service.MoveLineAfter(r.Context(), vars["projectUid"], vars["lineUid"], dto.PrecedingUid)
	if err != nil {
		if errors.Is(err, ErrLineNotFound) {
			http.Error(w, "cost line not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteLine godoc
// @Summary Delete a cost line
// @Description Variations and invoices linked to the line become unlinked
// @Tags CostPlan
// @Param projectUid path string true "Project UID"
// @Param lineUid path string true "Cost line UID"
// @Success 204 {string} string "Deleted"
// @Failure 404 {string} string "Cost line not found"
// @Router /api/project/{projectUid}/costplan/line/{lineUid} [delete]
// @Security XUserId
func (handler *Handler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["lineUid"]

	if _, err := handler.service.DeleteLine(r.Context(), uid); err != nil {
		if errors.Is(err, ErrLineNotFound) {
			http.Error(w, "cost line not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyEstimate godoc
// @Summary Apply a budget estimate to the cost plan
// @Description Writes the allocation sheet back to the plan and returns the refreshed view
// @Tags CostPlan
// @Accept json
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param estimate body ApplyEstimateDTO true "Allocation sheet"
// @Success 200 {object} PlanViewDTO
// @Failure 400 {string} string "Bad Request"
// @Router /api/project/{projectUid}/costplan/apply-estimate [post]
// @Security XUserId
func (handler *Handler) ApplyEstimate(w http.ResponseWriter, r *http.Request) {
	log.Debug("Applying budget estimate")
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]

	var dto ApplyEstimateDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := handler.service.ApplyEstimate(r.Context(), projectUid, money.Cents(dto.Total), dto.Rows)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyEstimate),
			errors.Is(err, allocation.ErrUnbalancedPlan),
			errors.Is(err, allocation.ErrDuplicateKey),
			errors.Is(err, allocation.ErrShareOutOfRange):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(PlanViewToDTO(view)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func dtoToLine(dto CostLineDTO) CostLine {
	return CostLine{
		Uid:              dto.Uid,
		ProjectUid:       dto.ProjectUid,
		Section:          dto.Section,
		Activity:         dto.Activity,
		Budget:           money.Cents(dto.Budget),
		ApprovedContract: money.Cents(dto.ApprovedContract),
		ContractAwarded:  dto.ContractAwarded,
		Locked:           dto.Locked,
		Note:             dto.Note,
	}
}

func lineToDTO(line CostLine) CostLineDTO {
	return CostLineDTO{
		Uid:              line.Uid,
		ProjectUid:       line.ProjectUid,
		Section:          line.Section,
		Activity:         line.Activity,
		Budget:           int64(line.Budget),
		ApprovedContract: int64(line.ApprovedContract),
		ContractAwarded:  line.ContractAwarded,
		Locked:           line.Locked,
		Position:         line.Position,
		Note:             line.Note,
		CreatedAt:        line.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        line.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func rollupToDTO(rollup Rollup) RollupDTO {
	return RollupDTO{
		Budget:             int64(rollup.Budget),
		ApprovedContract:   int64(rollup.ApprovedContract),
		ApprovedVariations: int64(rollup.ApprovedVariations),
		Forecast:           int64(rollup.Forecast),
		Variance:           int64(rollup.Variance),
		ActualToDate:       int64(rollup.ActualToDate),
		PaidToDate:         int64(rollup.PaidToDate),
	}
}

func PlanViewToDTO(view PlanView) PlanViewDTO {
	dto := PlanViewDTO{
		ProjectUid: view.ProjectUid,
		Lines:      make([]LineViewDTO, 0, len(view.Lines)),
		Sections:   make([]SectionRollupDTO, 0, len(view.Sections)),
		Totals:     rollupToDTO(view.Totals),
		Unlinked: UnlinkedTotalsDTO{
			ApprovedVariations: int64(view.Unlinked.ApprovedVariations),
			ActualToDate:       int64(view.Unlinked.ActualToDate),
			PaidToDate:         int64(view.Unlinked.PaidToDate),
		},
	}
	for _, lineView := range view.Lines {
		dto.Lines = append(dto.Lines, LineViewDTO{
			CostLineDTO: lineToDTO(lineView.Line),
			Figures: LineFiguresDTO{
				ApprovedVariations:  int64(lineView.Figures.ApprovedVariations),
				Forecast:            int64(lineView.Figures.Forecast),
				Variance:            int64(lineView.Figures.Variance),
				ActualToDate:        int64(lineView.Figures.ActualToDate),
				PaidToDate:          int64(lineView.Figures.PaidToDate),
				RemainingCommitment: int64(lineView.Figures.RemainingCommitment),
				Overrun:             int64(lineView.Figures.Overrun),
			},
		})
	}
	for _, section := range view.Sections {
		dto.Sections = append(dto.Sections, SectionRollupDTO{
			Section:   section.Section,
			RollupDTO: rollupToDTO(section.Rollup),
		})
	}
	return dto
}
