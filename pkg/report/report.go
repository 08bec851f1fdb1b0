// Package report assembles the cost report of a project: the plan figures
// per line, section and project, plus the invoice activity of the current
// month. The same report renders as JSON, CSV or a spreadsheet export.
package report

import (
	"context"
	"errors"
	"time"

	"github.com/costwise/costwise/pkg/costplan"
	"github.com/costwise/costwise/pkg/money"
	"github.com/costwise/costwise/pkg/project"
)

var ErrSheetsNotConnected = errors.New("no Google Sheets connection for this user")

// MonthActivity sums the invoice movement of one calendar month. Invoiced
// follows the billing period end, Paid follows the payment date.
type MonthActivity struct {
	Month    string
	Invoiced money.Cents
	Paid     money.Cents
	Invoices int
}

// CostReport is a cost plan snapshot ready for rendering.
type CostReport struct {
	Project     project.Project
	GeneratedAt time.Time
	Plan        costplan.PlanView
	Month       MonthActivity
}

// ReportRenderer turns a report into one flat document.
type ReportRenderer interface {
	RenderReport(report CostReport) (string, error)
}

// RowWriter receives the report as a grid of rows. The Sheets adapter writes
// them to a spreadsheet tab; tests use an in-memory writer. It returns a
// reference to where the rows ended up.
type RowWriter interface {
	WriteRows(ctx context.Context, title string, rows [][]any) (string, error)
}

// SheetExport tells the caller where an export landed.
type SheetExport struct {
	Reference string
	Rows      int
}
