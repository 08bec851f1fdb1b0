package allocation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, handle http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/allocation", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handle(w, req)
	return w
}

func decodePlan(t *testing.T, w *httptest.ResponseRecorder) Plan {
	t.Helper()
	var plan Plan
	require.NoError(t, json.NewDecoder(w.Body).Decode(&plan))
	return plan
}

func balancedPlan() Plan {
	return Plan{Rows: []Row{
		{Key: "a", Label: "Substructure", Tenths: 500},
		{Key: "b", Label: "Superstructure", Tenths: 300},
		{Key: "c", Label: "Services", Tenths: 200},
	}}
}

func TestHandler_Split(t *testing.T) {
	handler := NewAllocationHandler()

	t.Run("should split evenly without weights", func(t *testing.T) {
		w := post(t, handler.Split, SplitRequest{
			Rows: []Row{{Key: "a"}, {Key: "b"}, {Key: "c"}},
		})

		assert.Equal(t, http.StatusOK, w.Code)
		plan := decodePlan(t, w)
		assert.Equal(t, 334, plan.Rows[0].Tenths)
		assert.Equal(t, 1000, sumTenths(plan))
	})

	t.Run("should split proportionally to the weights", func(t *testing.T) {
		w := post(t, handler.Split, SplitRequest{
			Rows:    []Row{{Key: "a"}, {Key: "b"}},
			Weights: []int64{3, 1},
		})

		assert.Equal(t, http.StatusOK, w.Code)
		plan := decodePlan(t, w)
		assert.Equal(t, 750, plan.Rows[0].Tenths)
		assert.Equal(t, 250, plan.Rows[1].Tenths)
	})

	t.Run("should reject mismatched weights", func(t *testing.T) {
		w := post(t, handler.Split, SplitRequest{
			Rows:    []Row{{Key: "a"}, {Key: "b"}},
			Weights: []int64{1},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), ErrWeightMismatch.Error())
	})

	t.Run("should reject a malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/allocation/split", strings.NewReader("{not json"))
		w := httptest.NewRecorder()

		handler.Split(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_SetRowPercent(t *testing.T) {
	handler := NewAllocationHandler()

	t.Run("should redistribute the difference and return the new plan", func(t *testing.T) {
		w := post(t, handler.SetRowPercent, PercentRequest{Plan: balancedPlan(), Key: "a", Tenths: 600})

		assert.Equal(t, http.StatusOK, w.Code)
		plan := decodePlan(t, w)
		assert.Equal(t, 600, plan.Rows[0].Tenths)
		assert.Equal(t, 240, plan.Rows[1].Tenths)
		assert.Equal(t, 160, plan.Rows[2].Tenths)
	})

	t.Run("should reject an unbalanced submitted plan", func(t *testing.T) {
		unbalanced := Plan{Rows: []Row{{Key: "a", Tenths: 600}, {Key: "b", Tenths: 500}}}

		w := post(t, handler.SetRowPercent, PercentRequest{Plan: unbalanced, Key: "a", Tenths: 500})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), ErrUnbalancedPlan.Error())
	})

	t.Run("should reject edits of a locked row", func(t *testing.T) {
		plan := balancedPlan()
		plan.Rows[0].Locked = true

		w := post(t, handler.SetRowPercent, PercentRequest{Plan: plan, Key: "a", Tenths: 600})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), ErrRowLocked.Error())
	})
}

func TestHandler_LockRow(t *testing.T) {
	handler := NewAllocationHandler()

	w := post(t, handler.LockRow, LockRequest{Plan: balancedPlan(), Key: "b", Locked: true})

	assert.Equal(t, http.StatusOK, w.Code)
	plan := decodePlan(t, w)
	assert.True(t, plan.Rows[1].Locked)
	assert.Equal(t, 300, plan.Rows[1].Tenths)
}

func TestHandler_RemoveRow(t *testing.T) {
	handler := NewAllocationHandler()

	w := post(t, handler.RemoveRow, RemoveRequest{Plan: balancedPlan(), Key: "a"})

	assert.Equal(t, http.StatusOK, w.Code)
	plan := decodePlan(t, w)
	require.Len(t, plan.Rows, 2)
	assert.Equal(t, 600, plan.Rows[0].Tenths)
	assert.Equal(t, 400, plan.Rows[1].Tenths)
}

func TestHandler_AggregateRows(t *testing.T) {
	handler := NewAllocationHandler()

	t.Run("should merge the named rows", func(t *testing.T) {
		w := post(t, handler.AggregateRows, AggregateRequest{
			Plan:  balancedPlan(),
			Keys:  []string{"b", "c"},
			Key:   "bc",
			Label: "Shell & Services",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		plan := decodePlan(t, w)
		require.Len(t, plan.Rows, 2)
		assert.Equal(t, "bc", plan.Rows[1].Key)
		assert.Equal(t, 500, plan.Rows[1].Tenths)
	})

	t.Run("should reject fewer than two rows", func(t *testing.T) {
		w := post(t, handler.AggregateRows, AggregateRequest{Plan: balancedPlan(), Keys: []string{"b"}, Key: "x"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), ErrAggregateTooFew.Error())
	})
}

func TestHandler_PlanAmounts(t *testing.T) {
	handler := NewAllocationHandler()

	t.Run("should return amounts summing to exactly the total", func(t *testing.T) {
		w := post(t, handler.PlanAmounts, AmountsRequest{Plan: balancedPlan(), Total: 100001})

		assert.Equal(t, http.StatusOK, w.Code)
		var amounts []LineAmount
		require.NoError(t, json.NewDecoder(w.Body).Decode(&amounts))
		require.Len(t, amounts, 3)
		var sum int64
		for _, la := range amounts {
			sum += int64(la.Amount)
		}
		assert.Equal(t, int64(100001), sum)
	})

	t.Run("should reject an unbalanced plan", func(t *testing.T) {
		unbalanced := Plan{Rows: []Row{{Key: "a", Tenths: 999}}}

		w := post(t, handler.PlanAmounts, AmountsRequest{Plan: unbalanced, Total: 1000})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), ErrUnbalancedPlan.Error())
	})
}
