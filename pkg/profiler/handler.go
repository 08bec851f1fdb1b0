package profiler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/costwise/costwise/pkg/allocation"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type ProfileDTO struct {
	Uid            string            `json:"uid"`
	ProjectUid     string            `json:"projectUid"`
	Class          string            `json:"class"`
	Subclass       string            `json:"subclass"`
	GrossFloorArea int               `json:"grossFloorArea"`
	Storeys        int               `json:"storeys"`
	Complexity     map[string]string `json:"complexity,omitempty"`
	UpdatedAt      string            `json:"updatedAt,omitempty"`
}

type EstimateDTO struct {
	ProjectUid     string                  `json:"projectUid"`
	Class          string                  `json:"class"`
	Subclass       string                  `json:"subclass"`
	GrossFloorArea int                     `json:"grossFloorArea"`
	Storeys        int                     `json:"storeys"`
	BaseRate       int64                   `json:"baseRate"`
	Base           int64                   `json:"base"`
	StoreyBp       int                     `json:"storeyBp"`
	ComplexityBp   map[string]int          `json:"complexityBp,omitempty"`
	Total          int64                   `json:"total"`
	Plan           allocation.Plan         `json:"plan"`
	Sections       []allocation.LineAmount `json:"sections"`
}

type CatalogSubclassDTO struct {
	Label    string `json:"label"`
	BaseRate int64  `json:"baseRate"`
}

type CatalogClassDTO struct {
	Label      string                        `json:"label"`
	Subclasses map[string]CatalogSubclassDTO `json:"subclasses"`
}

type CatalogFactorDTO struct {
	Label   string         `json:"label"`
	Options map[string]int `json:"options"`
}

type CatalogSectionDTO struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Weight int64  `json:"weight"`
}

type CatalogDTO struct {
	Classes    map[string]CatalogClassDTO  `json:"classes"`
	Complexity map[string]CatalogFactorDTO `json:"complexity"`
	Sections   []CatalogSectionDTO         `json:"sections"`
}

type Handler struct {
	service Service
}

func NewProfilerHandler(service Service) *Handler {
	return &Handler{service}
}

// GetProfile godoc
// @Summary Get the building profile of a project
// @Tags Profiler
// @Produce json
// @Param projectUid path string true "Project UID"
// @Success 200 {object} ProfileDTO
// @Failure 404 {string} string "Profile not found"
// @Router /api/project/{projectUid}/profile [get]
// @Security XUserId
func (handler *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]

	profile, err := handler.service.GetProfile(r.Context(), projectUid)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			http.Error(w, "building profile not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(profileToDTO(profile)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// UpsertProfile godoc
// @Summary Create or replace the building profile of a project
// @Description Class, subclass and complexity selections must exist in the rate catalog
// @Tags Profiler
// @Accept json
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param profile body ProfileDTO true "Building profile"
// @Success 200 {object} ProfileDTO
// @Failure 400 {string} string "Bad Request"
// @Router /api/project/{projectUid}/profile [put]
// @Security XUserId
func (handler *Handler) UpsertProfile(w http.ResponseWriter, r *http.Request) {
	log.Debug("Upserting building profile")
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]

	var dto ProfileDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dto.ProjectUid = projectUid

	saved, err := handler.service.UpsertProfile(r.Context(), dtoToProfile(dto))
	if err != nil {
		if isValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(profileToDTO(saved)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// GetEstimate godoc
// @Summary Cost estimate for the project's building profile
// @Description Returns the estimated total and the catalog's default section split, ready for the apply-estimate flow
// @Tags Profiler
// @Produce json
// @Param projectUid path string true "Project UID"
// @Success 200 {object} EstimateDTO
// @Failure 400 {string} string "Profile no longer matches the catalog"
// @Failure 404 {string} string "Profile not found"
// @Router /api/project/{projectUid}/profile/estimate [get]
// @Security XUserId
func (handler *Handler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]

	estimate, err := handler.service.Estimate(r.Context(), projectUid)
	if err != nil {
		switch {
		case errors.Is(err, ErrProfileNotFound):
			http.Error(w, "building profile not found", http.StatusNotFound)
		case isValidationError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(estimateToDTO(estimate)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// GetCatalog godoc
// @Summary The building rate catalog
// @Description Classes, complexity factors and default section weights for the profile form
// @Tags Profiler
// @Produce json
// @Success 200 {object} CatalogDTO
// @Router /api/profiler/catalog [get]
// @Security XUserId
func (handler *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(catalogToDTO(handler.service.Catalog())); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrProfileInvalid) ||
		errors.Is(err, ErrUnknownClass) ||
		errors.Is(err, ErrUnknownSubclass) ||
		errors.Is(err, ErrUnknownFactor) ||
		errors.Is(err, ErrUnknownOption)
}

func dtoToProfile(dto ProfileDTO) Profile {
	return Profile{
		Uid:            dto.Uid,
		ProjectUid:     dto.ProjectUid,
		Class:          dto.Class,
		Subclass:       dto.Subclass,
		GrossFloorArea: dto.GrossFloorArea,
		Storeys:        dto.Storeys,
		Complexity:     dto.Complexity,
	}
}

func profileToDTO(profile Profile) ProfileDTO {
	return ProfileDTO{
		Uid:            profile.Uid,
		ProjectUid:     profile.ProjectUid,
		Class:          profile.Class,
		Subclass:       profile.Subclass,
		GrossFloorArea: profile.GrossFloorArea,
		Storeys:        profile.Storeys,
		Complexity:     profile.Complexity,
		UpdatedAt:      profile.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func estimateToDTO(estimate Estimate) EstimateDTO {
	return EstimateDTO{
		ProjectUid:     estimate.ProjectUid,
		Class:          estimate.Class,
		Subclass:       estimate.Subclass,
		GrossFloorArea: estimate.GrossFloorArea,
		Storeys:        estimate.Storeys,
		BaseRate:       int64(estimate.BaseRate),
		Base:           int64(estimate.Base),
		StoreyBp:       estimate.StoreyBp,
		ComplexityBp:   estimate.ComplexityBp,
		Total:          int64(estimate.Total),
		Plan:           estimate.Plan,
		Sections:       estimate.Sections,
	}
}

func catalogToDTO(catalog Catalog) CatalogDTO {
	dto := CatalogDTO{
		Classes:    make(map[string]CatalogClassDTO, len(catalog.Classes)),
		Complexity: make(map[string]CatalogFactorDTO, len(catalog.Complexity)),
		Sections:   make([]CatalogSectionDTO, 0, len(catalog.Sections)),
	}
	for key, class := range catalog.Classes {
		subclasses := make(map[string]CatalogSubclassDTO, len(class.Subclasses))
		for subKey, subclass := range class.Subclasses {
			subclasses[subKey] = CatalogSubclassDTO{Label: subclass.Label, BaseRate: int64(subclass.BaseRate)}
		}
		dto.Classes[key] = CatalogClassDTO{Label: class.Label, Subclasses: subclasses}
	}
	for key, factor := range catalog.Complexity {
		dto.Complexity[key] = CatalogFactorDTO{Label: factor.Label, Options: factor.Options}
	}
	for _, section := range catalog.Sections {
		dto.Sections = append(dto.Sections, CatalogSectionDTO{Key: section.Key, Label: section.Label, Weight: section.Weight})
	}
	return dto
}
