package activity

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/costwise/costwise/internal/rest"
)

type EntryDTO struct {
	Uid        string          `json:"uid"`
	ProjectUid string          `json:"projectUid"`
	Kind       string          `json:"kind"`
	Summary    string          `json:"summary"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	OccurredAt string          `json:"occurredAt"`
}

type Handler struct {
	service Service
}

func NewActivityHandler(service Service) *Handler {
	return &Handler{service}
}

// ListActivity godoc
// @Summary List the recent activity of a project
// @Tags Activity
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param limit query int false "Maximum number of entries (default 50, capped at 200)"
// @Success 200 {array} EntryDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid limit"
// @Failure 403 {string} string "User not found"
// @Router /api/project/{projectUid}/activity [get]
// @Security XUserId
func (handler *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]

	limit := 0
	if limitString := r.URL.Query().Get("limit"); limitString != "" {
		parsed, err := strconv.Atoi(limitString)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			encodeErr := json.NewEncoder(w).Encode(rest.ErrorResponse{
				Error:   "Invalid limit",
				Details: "'limit' must be a number",
			})
			if encodeErr != nil {
				http.Error(w, encodeErr.Error(), http.StatusInternalServerError)
			}
			return
		}
		limit = parsed
	}

	entries, err := handler.service.ListEntries(r.Context(), projectUid, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	dtos := make([]EntryDTO, 0, len(entries))
	for _, entry := range entries {
		dtos = append(dtos, entryToDTO(entry))
	}
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		log.Errorf("failed to encode activity entries: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func entryToDTO(entry Entry) EntryDTO {
	return EntryDTO{
		Uid:        entry.Uid,
		ProjectUid: entry.ProjectUid,
		Kind:       entry.Kind,
		Summary:    entry.Summary,
		Detail:     json.RawMessage(entry.Detail),
		OccurredAt: entry.OccurredAt.Format(time.RFC3339),
	}
}
