package allocation

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/costwise/costwise/pkg/money"
)

// The allocation endpoints are stateless. The worksheet being edited lives in
// the client and travels with every request until it is applied to the cost
// plan, so every submitted plan must already be balanced.

type SplitRequest struct {
	Rows []Row `json:"rows"`
	// Weights are optional. Without them the split is even.
	Weights []int64 `json:"weights,omitempty"`
}

type PercentRequest struct {
	Plan   Plan   `json:"plan"`
	Key    string `json:"key"`
	Tenths int    `json:"tenths"`
}

type LockRequest struct {
	Plan   Plan   `json:"plan"`
	Key    string `json:"key"`
	Locked bool   `json:"locked"`
}

type RemoveRequest struct {
	Plan Plan   `json:"plan"`
	Key  string `json:"key"`
}

type AggregateRequest struct {
	Plan  Plan     `json:"plan"`
	Keys  []string `json:"keys"`
	Key   string   `json:"key"`
	Label string   `json:"label"`
}

type AmountsRequest struct {
	Plan  Plan  `json:"plan"`
	Total int64 `json:"total"`
}

type Handler struct{}

func NewAllocationHandler() *Handler {
	return &Handler{}
}

// Split godoc
// @Summary Build an initial allocation plan
// @Description Splits 100.0% across the rows, evenly or proportionally to the given weights
// @Tags Allocation
// @Accept json
// @Produce json
// @Param request body SplitRequest true "Rows and optional weights"
// @Success 200 {object} Plan
// @Failure 400 {string} string "Bad Request"
// @Router /api/allocation/split [post]
// @Security XUserId
func (handler *Handler) Split(w http.ResponseWriter, r *http.Request) {
	var request SplitRequest
	if !decode(w, r, &request) {
		return
	}
	if request.Weights == nil {
		respond(w, EvenSplit(request.Rows))
		return
	}
	plan, err := WeightedSplit(request.Rows, request.Weights)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respond(w, plan)
}

// SetRowPercent godoc
// @Summary Change one row's share
// @Description The difference is redistributed across the other unlocked rows so the plan keeps summing to 100.0%
// @Tags Allocation
// @Accept json
// @Produce json
// @Param request body PercentRequest true "Plan, row key and the new share in tenths of a percent"
// @Success 200 {object} Plan
// @Failure 400 {string} string "Bad Request"
// @Router /api/allocation/percent [post]
// @Security XUserId
func (handler *Handler) SetRowPercent(w http.ResponseWriter, r *http.Request) {
	var request PercentRequest
	if !decode(w, r, &request) {
		return
	}
	handler.edit(w, request.Plan, func() (Plan, error) {
		return SetPercent(request.Plan, request.Key, request.Tenths)
	})
}

// LockRow godoc
// @Summary Lock or unlock a row
// @Description A locked row keeps its share during redistribution
// @Tags Allocation
// @Accept json
// @Produce json
// @Param request body LockRequest true "Plan, row key and the lock state"
// @Success 200 {object} Plan
// @Failure 400 {string} string "Bad Request"
// @Router /api/allocation/lock [post]
// @Security XUserId
func (handler *Handler) LockRow(w http.ResponseWriter, r *http.Request) {
	var request LockRequest
	if !decode(w, r, &request) {
		return
	}
	handler.edit(w, request.Plan, func() (Plan, error) {
		return SetLocked(request.Plan, request.Key, request.Locked)
	})
}

// RemoveRow godoc
// @Summary Remove a row from the plan
// @Description The freed share goes to the remaining unlocked rows
// @Tags Allocation
// @Accept json
// @Produce json
// @Param request body RemoveRequest true "Plan and the row key to remove"
// @Success 200 {object} Plan
// @Failure 400 {string} string "Bad Request"
// @Router /api/allocation/remove [post]
// @Security XUserId
func (handler *Handler) RemoveRow(w http.ResponseWriter, r *http.Request) {
	var request RemoveRequest
	if !decode(w, r, &request) {
		return
	}
	handler.edit(w, request.Plan, func() (Plan, error) {
		return Remove(request.Plan, request.Key)
	})
}

// AggregateRows godoc
// @Summary Merge rows into one
// @Description The merged row carries the summed share and sits where the first named row was
// @Tags Allocation
// @Accept json
// @Produce json
// @Param request body AggregateRequest true "Plan, the keys to merge and the merged row's key and label"
// @Success 200 {object} Plan
// @Failure 400 {string} string "Bad Request"
// @Router /api/allocation/aggregate [post]
// @Security XUserId
func (handler *Handler) AggregateRows(w http.ResponseWriter, r *http.Request) {
	var request AggregateRequest
	if !decode(w, r, &request) {
		return
	}
	handler.edit(w, request.Plan, func() (Plan, error) {
		return Aggregate(request.Plan, request.Keys, request.Key, request.Label)
	})
}

// PlanAmounts godoc
// @Summary Monetary amounts for a plan
// @Description Splits the total into cents per row, summing to exactly the total
// @Tags Allocation
// @Accept json
// @Produce json
// @Param request body AmountsRequest true "Plan and the total in cents"
// @Success 200 {array} LineAmount
// @Failure 400 {string} string "Bad Request"
// @Router /api/allocation/amounts [post]
// @Security XUserId
func (handler *Handler) PlanAmounts(w http.ResponseWriter, r *http.Request) {
	var request AmountsRequest
	if !decode(w, r, &request) {
		return
	}
	amounts, err := Amounts(request.Plan, money.Cents(request.Total))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respond(w, amounts)
}

func (handler *Handler) edit(w http.ResponseWriter, plan Plan, op func() (Plan, error)) {
	if err := Validate(plan); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	changed, err := op()
	if err != nil {
		if isPlanError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respond(w, changed)
}

func isPlanError(err error) bool {
	return errors.Is(err, ErrRowNotFound) ||
		errors.Is(err, ErrRowLocked) ||
		errors.Is(err, ErrNoUnlockedRows) ||
		errors.Is(err, ErrInsufficientUnlocked) ||
		errors.Is(err, ErrShareOutOfRange) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrAggregateTooFew)
}

func decode(w http.ResponseWriter, r *http.Request, request any) bool {
	if err := json.NewDecoder(r.Body).Decode(request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func respond(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("failed to encode allocation response: %v", err)
	}
}
