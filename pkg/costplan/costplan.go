// Package costplan manages the cost-plan lines of a project and the
// monetary figures derived from linked variations and invoices.
package costplan

import (
	"errors"
	"time"

	"github.com/costwise/costwise/pkg/money"
)

var (
	ErrLineNotFound  = errors.New("cost line not found")
	ErrLineInvalid   = errors.New("cost line needs a section and an activity")
	ErrEmptyEstimate = errors.New("estimate has no sections")
)

// CostLine is a single row of a project's cost plan. Budget and
// ApprovedContract are amounts in the project currency. A locked line keeps
// its budget when an estimate is applied over the plan.
type CostLine struct {
	Uid              string
	ProjectUid       string
	Section          string
	Activity         string
	Budget           money.Cents
	ApprovedContract money.Cents
	// ContractAwarded switches the forecast base from Budget to
	// ApprovedContract. A zero contract amount counts as awarded at zero.
	ContractAwarded bool
	Locked          bool
	Position        int
	Note            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LineFigures are the figures derived for one cost line from its approved
// variations and linked invoices. They are computed on read, never stored.
type LineFigures struct {
	ApprovedVariations money.Cents
	Forecast           money.Cents
	Variance           money.Cents
	ActualToDate       money.Cents
	PaidToDate         money.Cents
	// RemainingCommitment is floored at zero. When invoicing exceeds the
	// forecast the excess is reported as Overrun instead.
	RemainingCommitment money.Cents
	Overrun             money.Cents
}

// FiguresFor derives the figures for a line. The forecast follows the
// approved contract once it is awarded, otherwise the budget, plus approved
// variations in both cases.
func FiguresFor(line CostLine, approvedVariations, invoiced, paid money.Cents) LineFigures {
	base := line.Budget
	if line.ContractAwarded {
		base = line.ApprovedContract
	}
	forecast := base + approvedVariations
	remaining := forecast - invoiced
	var overrun money.Cents
	if remaining < 0 {
		overrun = -remaining
		remaining = 0
	}
	return LineFigures{
		ApprovedVariations:  approvedVariations,
		Forecast:            forecast,
		Variance:            line.Budget - forecast,
		ActualToDate:        invoiced,
		PaidToDate:          paid,
		RemainingCommitment: remaining,
		Overrun:             overrun,
	}
}

// LineView pairs a cost line with its derived figures.
type LineView struct {
	Line    CostLine
	Figures LineFigures
}

// Rollup aggregates figures over a section or a whole plan. ApprovedContract
// only sums lines whose contract is awarded.
type Rollup struct {
	Budget             money.Cents
	ApprovedContract   money.Cents
	ApprovedVariations money.Cents
	Forecast           money.Cents
	Variance           money.Cents
	ActualToDate       money.Cents
	PaidToDate         money.Cents
}

func (r *Rollup) add(line CostLine, figures LineFigures) {
	r.Budget += line.Budget
	if line.ContractAwarded {
		r.ApprovedContract += line.ApprovedContract
	}
	r.ApprovedVariations += figures.ApprovedVariations
	r.Forecast += figures.Forecast
	r.Variance += figures.Variance
	r.ActualToDate += figures.ActualToDate
	r.PaidToDate += figures.PaidToDate
}

type SectionRollup struct {
	Section string
	Rollup
}

// UnlinkedTotals carries project amounts that are not linked to any cost
// line, for example invoices imported before a line match was confirmed.
type UnlinkedTotals struct {
	ApprovedVariations money.Cents
	ActualToDate       money.Cents
	PaidToDate         money.Cents
}

// PlanView is the full cost plan of a project with per-line figures, section
// rollups in plan order and project totals. Unlinked amounts count toward
// the totals but toward no line.
type PlanView struct {
	ProjectUid string
	Lines      []LineView
	Sections   []SectionRollup
	Totals     Rollup
	Unlinked   UnlinkedTotals
}
