package docimport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/money"
	"github.com/costwise/costwise/pkg/user"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type ParsedLineDTO struct {
	Label       string `json:"label"`
	Detail      string `json:"detail,omitempty"`
	Amount      int64  `json:"amount"`
	Section     string `json:"section,omitempty"`
	PeriodStart string `json:"periodStart,omitempty"`
	PeriodEnd   string `json:"periodEnd,omitempty"`
}

type ParsedDocumentDTO struct {
	Kind        string          `json:"kind"`
	Supplier    string          `json:"supplier,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	PeriodStart string          `json:"periodStart,omitempty"`
	PeriodEnd   string          `json:"periodEnd,omitempty"`
	Lines       []ParsedLineDTO `json:"lines"`
}

type CreatedRecordDTO struct {
	Uid         string  `json:"uid"`
	Label       string  `json:"label"`
	CostLineUid string  `json:"costLineUid,omitempty"`
	Score       float64 `json:"score,omitempty"`
	Method      string  `json:"method"`
}

type UnmatchedLineDTO struct {
	Label     string  `json:"label"`
	BestScore float64 `json:"bestScore,omitempty"`
}

type ImportReportDTO struct {
	DocumentUid string             `json:"documentUid"`
	ProjectUid  string             `json:"projectUid"`
	Kind        string             `json:"kind"`
	Imported    int                `json:"imported"`
	AutoLinked  int                `json:"autoLinked"`
	NeedsReview int                `json:"needsReview"`
	Created     []CreatedRecordDTO `json:"created"`
	Unmatched   []UnmatchedLineDTO `json:"unmatched,omitempty"`
}

// ImportQueue hands a document to the worker instead of importing inline.
type ImportQueue interface {
	PublishImport(ctx context.Context, projectUid string, userId string, document ParsedDocumentDTO) error
}

type Handler struct {
	service Service
	queue   ImportQueue
}

// NewImportHandler builds the import endpoints. queue may be nil when no
// broker is configured; the async route then responds 503.
func NewImportHandler(service Service, queue ImportQueue) *Handler {
	return &Handler{service: service, queue: queue}
}

// ImportDocument godoc
// @Summary Import a parsed variation or invoice document into a project
// @Description Creates one record per document line, linked to the best matching cost line where the matcher is confident enough.
// @Tags Import
// @Accept json
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param document body ParsedDocumentDTO true "Parsed document"
// @Success 201 {object} ImportReportDTO
// @Failure 400 {string} string "Invalid document"
// @Failure 403 {string} string "User not found"
// @Router /api/project/{projectUid}/import [post]
// @Security XUserId
func (handler *Handler) ImportDocument(w http.ResponseWriter, r *http.Request) {
	log.Debug("Importing document")
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]

	var dto ParsedDocumentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	document, err := dto.ToDocument()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := handler.service.Import(r.Context(), projectUid, SourceApi, document)
	if err != nil {
		if IsDocumentError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(reportToDTO(report)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// QueueDocument godoc
// @Summary Queue a parsed document for import by the worker
// @Description Validates the payload and hands it to the import queue. The import itself happens asynchronously.
// @Tags Import
// @Accept json
// @Param projectUid path string true "Project UID"
// @Param document body ParsedDocumentDTO true "Parsed document"
// @Success 202 {string} string "Accepted"
// @Failure 400 {string} string "Invalid document"
// @Failure 403 {string} string "User not found"
// @Failure 503 {string} string "Import queue is not configured"
// @Router /api/project/{projectUid}/import/queue [post]
// @Security XUserId
func (handler *Handler) QueueDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]

	if handler.queue == nil {
		http.Error(w, "import queue is not configured", http.StatusServiceUnavailable)
		return
	}
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		log.Error("unable to retrieve current user: ", err)
		http.Error(w, "unable to retrieve current user", http.StatusInternalServerError)
		return
	}

	var dto ParsedDocumentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Dates are checked here so a bad payload fails the sender, not the worker.
	if _, err := dto.ToDocument(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.queue.PublishImport(r.Context(), projectUid, userId, dto); err != nil {
		log.Errorf("failed to queue import for project %s: %v", projectUid, err)
		http.Error(w, "failed to queue the document", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ToDocument converts the wire payload to the domain document. The queue
// consumer reuses it, so malformed dates fail here rather than mid-import.
func (dto ParsedDocumentDTO) ToDocument() (ParsedDocument, error) {
	document := ParsedDocument{
		Kind:      Kind(dto.Kind),
		Supplier:  dto.Supplier,
		Reference: dto.Reference,
	}
	var err error
	if document.PeriodStart, err = parseDate(dto.PeriodStart, "periodStart"); err != nil {
		return ParsedDocument{}, err
	}
	if document.PeriodEnd, err = parseDate(dto.PeriodEnd, "periodEnd"); err != nil {
		return ParsedDocument{}, err
	}
	for i, lineDTO := range dto.Lines {
		line := ParsedLine{
			Label:   lineDTO.Label,
			Detail:  lineDTO.Detail,
			Amount:  money.Cents(lineDTO.Amount),
			Section: lineDTO.Section,
		}
		if line.PeriodStart, err = parseDate(lineDTO.PeriodStart, fmt.Sprintf("line %d periodStart", i+1)); err != nil {
			return ParsedDocument{}, err
		}
		if line.PeriodEnd, err = parseDate(lineDTO.PeriodEnd, fmt.Sprintf("line %d periodEnd", i+1)); err != nil {
			return ParsedDocument{}, err
		}
		document.Lines = append(document.Lines, line)
	}
	return document, nil
}

func parseDate(value string, field string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := utils.ParseISODate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return parsed, nil
}

func reportToDTO(report ImportReport) ImportReportDTO {
	dto := ImportReportDTO{
		DocumentUid: report.DocumentUid,
		ProjectUid:  report.ProjectUid,
		Kind:        string(report.Kind),
		Imported:    report.Imported(),
		AutoLinked:  report.AutoLinked,
		NeedsReview: report.NeedsReview,
		Created:     make([]CreatedRecordDTO, 0, len(report.Created)),
	}
	for _, record := range report.Created {
		dto.Created = append(dto.Created, CreatedRecordDTO{
			Uid:         record.Uid,
			Label:       record.Label,
			CostLineUid: record.CostLineUid,
			Score:       record.Score,
			Method:      string(record.Method),
		})
	}
	for _, line := range report.Unmatched {
		dto.Unmatched = append(dto.Unmatched, UnmatchedLineDTO{Label: line.Label, BestScore: line.BestScore})
	}
	return dto
}
