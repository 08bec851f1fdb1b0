package report

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/costwise/costwise/pkg/costplan"
	"github.com/costwise/costwise/pkg/project"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type MonthActivityDTO struct {
	Month    string `json:"month"`
	Invoiced int64  `json:"invoiced"`
	Paid     int64  `json:"paid"`
	Invoices int    `json:"invoices"`
}

type CostReportDTO struct {
	ProjectUid  string               `json:"projectUid"`
	ProjectName string               `json:"projectName"`
	ProjectCode string               `json:"projectCode,omitempty"`
	Currency    string               `json:"currency"`
	GeneratedAt time.Time            `json:"generatedAt"`
	Plan        costplan.PlanViewDTO `json:"plan"`
	Month       MonthActivityDTO     `json:"currentMonth"`
}

type SheetExportDTO struct {
	Reference string `json:"reference"`
	Rows      int    `json:"rows"`
}

type Handler struct {
	service     Service
	csvRenderer ReportRenderer
}

func NewReportHandler(service Service, csvRenderer ReportRenderer) *Handler {
	return &Handler{service, csvRenderer}
}

// GetReport godoc
// @Summary Get the cost report of a project
// @Description Returns JSON by default; Accept: text/csv renders the same report as CSV.
// @Tags Report
// @Produce json
// @Produce text/csv
// @Param projectUid path string true "Project UID"
// @Success 200 {object} CostReportDTO
// @Failure 403 {string} string "User not found"
// @Failure 404 {string} string "Project not found"
// @Router /api/project/{projectUid}/report [get]
// @Security XUserId
func (handler *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	projectUid := mux.Vars(r)["projectUid"]

	report, err := handler.service.Report(r.Context(), projectUid)
	if err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if r.Header.Get("Accept") == "text/csv" {
		csv, err := handler.csvRenderer.RenderReport(report)
		if err != nil {
			log.Errorf("Error rendering report as csv: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(csv)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(reportToDTO(report)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ExportToSheets godoc
// @Summary Export the cost report to the user's Google spreadsheet
// @Tags Report
// @Produce json
// @Param projectUid path string true "Project UID"
// @Success 200 {object} SheetExportDTO
// @Failure 403 {string} string "User not found"
// @Failure 404 {string} string "Project not found"
// @Failure 409 {string} string "Google Sheets is not connected"
// @Router /api/project/{projectUid}/report/sheets [post]
// @Security XUserId
func (handler *Handler) ExportToSheets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]

	export, err := handler.service.ExportToSheets(r.Context(), projectUid)
	if err != nil {
		switch {
		case errors.Is(err, project.ErrProjectNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrSheetsNotConnected):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(SheetExportDTO{Reference: export.Reference, Rows: export.Rows}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func reportToDTO(report CostReport) CostReportDTO {
	return CostReportDTO{
		ProjectUid:  report.Project.Uid,
		ProjectName: report.Project.Name,
		ProjectCode: report.Project.Code,
		Currency:    report.Project.Currency,
		GeneratedAt: report.GeneratedAt,
		Plan:        costplan.PlanViewToDTO(report.Plan),
		Month: MonthActivityDTO{
			Month:    report.Month.Month,
			Invoiced: int64(report.Month.Invoiced),
			Paid:     int64(report.Month.Paid),
			Invoices: report.Month.Invoices,
		},
	}
}
