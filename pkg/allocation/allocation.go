// Package allocation implements the percent-based budget allocation engine
// behind the "Apply Budget Estimate" flow.
//
// A Plan holds one Row per cost-plan line. Shares are kept as integer tenths
// of a percent (1000 == 100.0%), so every operation is exact and the
// one-decimal presentation never drifts. Operations return a new Plan and
// leave their input untouched.
package allocation

import (
	"errors"
	"math/big"
	"sort"

	"github.com/costwise/costwise/pkg/money"
)

var (
	ErrRowNotFound         = errors.New("allocation row not found")
	ErrRowLocked           = errors.New("allocation row is locked")
	ErrNoUnlockedRows      = errors.New("no unlocked rows to absorb the change")
	ErrInsufficientUnlocked = errors.New("unlocked rows hold less than the requested change")
	ErrShareOutOfRange     = errors.New("share must be between 0 and 1000 tenths")
	ErrDuplicateKey        = errors.New("duplicate allocation row key")
	ErrAggregateTooFew     = errors.New("aggregate needs at least two rows")
	ErrUnbalancedPlan      = errors.New("allocation shares do not sum to 100.0%")
	ErrWeightMismatch      = errors.New("weights do not match rows")
)

// Row is one line of an allocation sheet. Tenths is the row's share in tenths
// of a percent. A locked row keeps its share during redistribution; only a
// direct edit can change it, and direct edits of locked rows are rejected.
type Row struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Tenths int    `json:"tenths"`
	Locked bool   `json:"locked"`
}

// Plan is an ordered allocation sheet. A non-empty valid plan's shares sum to
// exactly 1000 tenths.
type Plan struct {
	Rows []Row `json:"rows"`
}

// LineAmount is a row's monetary slice of an allocated total.
type LineAmount struct {
	Key    string      `json:"key"`
	Amount money.Cents `json:"amount"`
}

// Validate checks the plan invariants: unique keys, shares in range, and a
// total of exactly 1000 tenths for non-empty plans.
func Validate(p Plan) error {
	if len(p.Rows) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(p.Rows))
	sum := 0
	for _, row := range p.Rows {
		if _, ok := seen[row.Key]; ok {
			return ErrDuplicateKey
		}
		seen[row.Key] = struct{}{}
		if row.Tenths < 0 || row.Tenths > 1000 {
			return ErrShareOutOfRange
		}
		sum += row.Tenths
	}
	if sum != 1000 {
		return ErrUnbalancedPlan
	}
	return nil
}

// EvenSplit returns a plan giving every row an equal share. Incoming Tenths
// values are ignored; Locked flags and order are preserved. The leftover
// tenths that do not divide evenly go to the first rows.
func EvenSplit(rows []Row) Plan {
	if len(rows) == 0 {
		return Plan{}
	}
	weights := make([]int64, len(rows))
	for i := range weights {
		weights[i] = 1
	}
	shares := apportion(1000, weights)
	out := clone(rows)
	for i := range out {
		out[i].Tenths = int(shares[i])
	}
	return Plan{Rows: out}
}

// WeightedSplit returns a plan whose shares are proportional to the given
// weights, corrected by largest remainder so they sum to exactly 1000.
// All-zero weights fall back to an even split.
func WeightedSplit(rows []Row, weights []int64) (Plan, error) {
	if len(weights) != len(rows) {
		return Plan{}, ErrWeightMismatch
	}
	for _, w := range weights {
		if w < 0 {
			return Plan{}, ErrWeightMismatch
		}
	}
	if len(rows) == 0 {
		return Plan{}, nil
	}
	shares := apportion(1000, weights)
	out := clone(rows)
	for i := range out {
		out[i].Tenths = int(shares[i])
	}
	return Plan{Rows: out}, nil
}

// SetPercent sets the share of one row and redistributes the difference
// across the other unlocked rows, proportionally to their current shares.
// Rows are clamped at zero: a row never goes negative to fund an increase
// elsewhere. Locked rows are never touched.
func SetPercent(p Plan, key string, tenths int) (Plan, error) {
	if tenths < 0 || tenths > 1000 {
		return Plan{}, ErrShareOutOfRange
	}
	idx := find(p.Rows, key)
	if idx == -1 {
		return Plan{}, ErrRowNotFound
	}
	if p.Rows[idx].Locked {
		return Plan{}, ErrRowLocked
	}
	delta := tenths - p.Rows[idx].Tenths
	out := Plan{Rows: clone(p.Rows)}
	if delta == 0 {
		return out, nil
	}

	var others []int
	for i, row := range out.Rows {
		if i != idx && !row.Locked {
			others = append(others, i)
		}
	}
	if len(others) == 0 {
		return Plan{}, ErrNoUnlockedRows
	}

	if delta > 0 {
		avail := 0
		for _, i := range others {
			avail += out.Rows[i].Tenths
		}
		if avail < delta {
			return Plan{}, ErrInsufficientUnlocked
		}
		takeProportional(out.Rows, others, delta)
	} else {
		addProportional(out.Rows, others, -delta)
	}
	out.Rows[idx].Tenths = tenths
	return out, nil
}

// SetLocked toggles a row's lock. Locking never changes shares.
func SetLocked(p Plan, key string, locked bool) (Plan, error) {
	idx := find(p.Rows, key)
	if idx == -1 {
		return Plan{}, ErrRowNotFound
	}
	out := Plan{Rows: clone(p.Rows)}
	out.Rows[idx].Locked = locked
	return out, nil
}

// Remove drops a row and hands its share to the remaining unlocked rows,
// proportionally to their current shares (evenly when they are all at zero).
// Removing the last row yields an empty plan. Removing a row with a non-zero
// share fails when every remaining row is locked.
func Remove(p Plan, key string) (Plan, error) {
	idx := find(p.Rows, key)
	if idx == -1 {
		return Plan{}, ErrRowNotFound
	}
	freed := p.Rows[idx].Tenths
	rest := make([]Row, 0, len(p.Rows)-1)
	rest = append(rest, p.Rows[:idx]...)
	rest = append(rest, p.Rows[idx+1:]...)
	rest = clone(rest)
	if len(rest) == 0 {
		return Plan{}, nil
	}
	if freed > 0 {
		var unlocked []int
		for i, row := range rest {
			if !row.Locked {
				unlocked = append(unlocked, i)
			}
		}
		if len(unlocked) == 0 {
			return Plan{}, ErrNoUnlockedRows
		}
		addProportional(rest, unlocked, freed)
	}
	return Plan{Rows: rest}, nil
}

// Aggregate merges two or more rows into a single row carrying the summed
// share. The merged row sits where the first named row was, and is locked
// only when every merged row was locked.
func Aggregate(p Plan, keys []string, key, label string) (Plan, error) {
	if len(keys) < 2 {
		return Plan{}, ErrAggregateTooFew
	}
	merging := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if find(p.Rows, k) == -1 {
			return Plan{}, ErrRowNotFound
		}
		if _, ok := merging[k]; ok {
			return Plan{}, ErrDuplicateKey
		}
		merging[k] = struct{}{}
	}
	for _, row := range p.Rows {
		if _, merged := merging[row.Key]; !merged && row.Key == key {
			return Plan{}, ErrDuplicateKey
		}
	}

	mergedRow := Row{Key: key, Label: label, Locked: true}
	out := make([]Row, 0, len(p.Rows)-len(keys)+1)
	slot := -1
	for _, row := range p.Rows {
		if _, merged := merging[row.Key]; merged {
			mergedRow.Tenths += row.Tenths
			if !row.Locked {
				mergedRow.Locked = false
			}
			if slot == -1 {
				slot = len(out)
				out = append(out, Row{})
			}
			continue
		}
		out = append(out, row)
	}
	out[slot] = mergedRow
	return Plan{Rows: out}, nil
}

// Amounts turns a valid plan into per-row monetary amounts that sum to
// exactly the given total. Rounding residue goes to the rows with the
// largest remainders. Negative totals (deductions) apportion symmetrically.
func Amounts(p Plan, total money.Cents) ([]LineAmount, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	if len(p.Rows) == 0 {
		return nil, nil
	}
	weights := make([]int64, len(p.Rows))
	for i, row := range p.Rows {
		weights[i] = int64(row.Tenths)
	}
	shares := apportion(int64(total), weights)
	out := make([]LineAmount, len(p.Rows))
	for i, row := range p.Rows {
		out[i] = LineAmount{Key: row.Key, Amount: money.Cents(shares[i])}
	}
	return out, nil
}

func find(rows []Row, key string) int {
	for i, row := range rows {
		if row.Key == key {
			return i
		}
	}
	return -1
}

func clone(rows []Row) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}

// addProportional grows the rows at the given indices by amount in total,
// split proportionally to their current shares (evenly when all are zero).
func addProportional(rows []Row, indices []int, amount int) {
	weights := make([]int64, len(indices))
	for i, idx := range indices {
		weights[i] = int64(rows[idx].Tenths)
	}
	shares := apportion(int64(amount), weights)
	for i, idx := range indices {
		rows[idx].Tenths += int(shares[i])
	}
}

// takeProportional shrinks the rows at the given indices by amount in total,
// proportionally to their current shares and clamped at zero. Rows clamped to
// zero drop out and the shortfall is retaken from the rest. The caller must
// ensure the rows hold at least amount between them.
func takeProportional(rows []Row, indices []int, amount int) {
	pool := append([]int(nil), indices...)
	for amount > 0 && len(pool) > 0 {
		weights := make([]int64, len(pool))
		for i, idx := range pool {
			weights[i] = int64(rows[idx].Tenths)
		}
		shares := apportion(int64(amount), weights)

		clamped := false
		var next []int
		for i, idx := range pool {
			share := int(shares[i])
			if share > rows[idx].Tenths {
				amount -= rows[idx].Tenths
				rows[idx].Tenths = 0
				clamped = true
				continue
			}
			next = append(next, idx)
		}
		if !clamped {
			for i, idx := range pool {
				rows[idx].Tenths -= int(shares[i])
			}
			return
		}
		pool = next
	}
}

// apportion splits total into len(weights) integer parts proportional to the
// weights, corrected by largest remainder so the parts sum to exactly total.
// All-zero weights split evenly. Products are computed in big integers so
// cent totals apportioned by cent weights cannot overflow.
func apportion(total int64, weights []int64) []int64 {
	n := len(weights)
	if n == 0 {
		return nil
	}
	if total < 0 {
		flipped := apportion(-total, weights)
		for i := range flipped {
			flipped[i] = -flipped[i]
		}
		return flipped
	}

	var sum int64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum == 0 {
		weights = make([]int64, n)
		for i := range weights {
			weights[i] = 1
		}
		sum = int64(n)
	}

	shares := make([]int64, n)
	type leftover struct {
		idx int
		rem int64
	}
	rems := make([]leftover, 0, n)
	var assigned int64
	sumBig := big.NewInt(sum)
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		product := new(big.Int).Mul(big.NewInt(total), big.NewInt(w))
		quo, rem := new(big.Int).QuoRem(product, sumBig, new(big.Int))
		shares[i] = quo.Int64()
		assigned += shares[i]
		rems = append(rems, leftover{idx: i, rem: rem.Int64()})
	}

	sort.SliceStable(rems, func(a, b int) bool {
		return rems[a].rem > rems[b].rem
	})
	for i := int64(0); i < total-assigned; i++ {
		shares[rems[i].idx]++
	}
	return shares
}
