package costplan

import (
	"context"
	"sort"
	"time"

	"github.com/costwise/costwise/pkg/money"
)

// RepositoryStub is an in-memory Repository for service tests.
type RepositoryStub struct {
	lines map[string]CostLine
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{lines: make(map[string]CostLine)}
}

func (r *RepositoryStub) Cleanup() {
	r.lines = make(map[string]CostLine)
}

func (r *RepositoryStub) CreateLine(_ context.Context, _ string, line CostLine) (CostLine, error) {
	r.lines[line.Uid] = line
	return line, nil
}

func (r *RepositoryStub) GetLine(_ context.Context, _ string, uid string) (CostLine, error) {
	line, ok := r.lines[uid]
	if !ok {
		return CostLine{}, ErrLineNotFound
	}
	return line, nil
}

func (r *RepositoryStub) ListLines(_ context.Context, _ string, projectUid string) ([]CostLine, error) {
	lines := make([]CostLine, 0)
	for _, line := range r.lines {
		if line.ProjectUid == projectUid {
			lines = append(lines, line)
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Position != lines[j].Position {
			return lines[i].Position < lines[j].Position
		}
		return lines[i].Uid < lines[j].Uid
	})
	return lines, nil
}

func (r *RepositoryStub) UpdateLine(_ context.Context, _ string, line CostLine) (CostLine, error) {
	current, ok := r.lines[line.Uid]
	if !ok {
		return CostLine{}, ErrLineNotFound
	}
	current.Section = line.Section
	current.Activity = line.Activity
	current.Budget = line.Budget
	current.ApprovedContract = line.ApprovedContract
	current.ContractAwarded = line.ContractAwarded
	current.Note = line.Note
	current.UpdatedAt = line.UpdatedAt
	r.lines[line.Uid] = current
	return current, nil
}

func (r *RepositoryStub) UpdateLinePosition(_ context.Context, _ string, uid string, position int) error {
	line, ok := r.lines[uid]
	if !ok {
		return ErrLineNotFound
	}
	line.Position = position
	r.lines[uid] = line
	return nil
}

func (r *RepositoryStub) SetLocked(_ context.Context, _ string, uid string, locked bool, updatedAt time.Time) error {
	line, ok := r.lines[uid]
	if !ok {
		return ErrLineNotFound
	}
	line.Locked = locked
	line.UpdatedAt = updatedAt
	r.lines[uid] = line
	return nil
}

func (r *RepositoryStub) DeleteLine(_ context.Context, _ string, uid string) (bool, error) {
	if _, ok := r.lines[uid]; !ok {
		return false, nil
	}
	delete(r.lines, uid)
	return true, nil
}

func (r *RepositoryStub) ApplyBudgets(_ context.Context, _ string, updates []BudgetUpdate, inserts []CostLine) error {
	for _, update := range updates {
		line, ok := r.lines[update.Uid]
		if !ok {
			return ErrLineNotFound
		}
		line.Budget = update.Budget
		line.UpdatedAt = update.UpdatedAt
		r.lines[update.Uid] = line
	}
	for _, line := range inserts {
		r.lines[line.Uid] = line
	}
	return nil
}

// VariationTotalsStub serves fixed approved totals in service tests.
type VariationTotalsStub struct {
	Totals map[string]money.Cents
}

func (s *VariationTotalsStub) ApprovedTotalsByLine(_ context.Context, _ string, _ string) (map[string]money.Cents, error) {
	return s.Totals, nil
}

// InvoiceTotalsStub serves fixed invoice totals in service tests.
type InvoiceTotalsStub struct {
	Totals map[string]InvoiceTotal
}

func (s *InvoiceTotalsStub) InvoicedTotalsByLine(_ context.Context, _ string, _ string) (map[string]InvoiceTotal, error) {
	return s.Totals, nil
}
