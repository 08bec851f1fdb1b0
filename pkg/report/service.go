package report

import (
	"context"
	"fmt"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/costplan"
	"github.com/costwise/costwise/pkg/invoice"
	"github.com/costwise/costwise/pkg/project"
	log "github.com/sirupsen/logrus"
)

type Service interface {
	Report(ctx context.Context, projectUid string) (CostReport, error)
	ExportToSheets(ctx context.Context, projectUid string) (SheetExport, error)
}

type ServiceImpl struct {
	projects project.Service
	plans    costplan.Service
	invoices invoice.Service
	rows     RowWriter
	clock    utils.Clock
}

// NewReportService creates a report service. rows may be nil when no
// spreadsheet integration is configured; exports then fail cleanly.
func NewReportService(
	projects project.Service,
	plans costplan.Service,
	invoices invoice.Service,
	rows RowWriter,
	clock utils.Clock,
) *ServiceImpl {
	return &ServiceImpl{
		projects: projects,
		plans:    plans,
		invoices: invoices,
		rows:     rows,
		clock:    clock,
	}
}

func (s *ServiceImpl) Report(ctx context.Context, projectUid string) (CostReport, error) {
	proj, err := s.projects.GetProject(ctx, projectUid)
	if err != nil {
		return CostReport{}, err
	}
	plan, err := s.plans.Plan(ctx, projectUid)
	if err != nil {
		return CostReport{}, fmt.Errorf("failed to read the cost plan: %w", err)
	}
	month, err := s.monthActivity(ctx, projectUid)
	if err != nil {
		return CostReport{}, err
	}
	return CostReport{
		Project:     proj,
		GeneratedAt: s.clock.Now(),
		Plan:        plan,
		Month:       month,
	}, nil
}

func (s *ServiceImpl) ExportToSheets(ctx context.Context, projectUid string) (SheetExport, error) {
	if s.rows == nil {
		return SheetExport{}, ErrSheetsNotConnected
	}
	report, err := s.Report(ctx, projectUid)
	if err != nil {
		return SheetExport{}, err
	}
	rows := sheetRows(report)
	title := report.Project.Name + " cost report"
	reference, err := s.rows.WriteRows(ctx, title, rows)
	if err != nil {
		return SheetExport{}, fmt.Errorf("failed to write the report rows: %w", err)
	}
	log.Debugf("Exported cost report of project %s to %s", projectUid, reference)
	return SheetExport{Reference: reference, Rows: len(rows)}, nil
}

// monthActivity sums the project's invoices for the month the clock is in.
func (s *ServiceImpl) monthActivity(ctx context.Context, projectUid string) (MonthActivity, error) {
	key := utils.MonthKey(s.clock.Now())
	stored, err := s.invoices.ListInvoices(ctx, projectUid)
	if err != nil {
		return MonthActivity{}, fmt.Errorf("failed to read invoices: %w", err)
	}
	activity := MonthActivity{Month: key}
	for _, inv := range stored {
		if utils.MonthKey(inv.PeriodEnd) == key {
			activity.Invoiced += inv.Amount
			activity.Invoices++
		}
		if inv.Paid && utils.MonthKey(inv.PaidAt) == key {
			activity.Paid += inv.Amount
		}
	}
	return activity, nil
}

// sheetRows lays the report out as one grid. Money cells are major units so
// the spreadsheet can keep calculating with them.
func sheetRows(report CostReport) [][]any {
	rows := [][]any{
		{"Project", report.Project.Name, "Code", report.Project.Code, "Currency", report.Project.Currency, "Generated", utils.FormatISODate(report.GeneratedAt)},
		{"Section", "Activity", "Budget", "Contract", "Variations", "Forecast", "Variance", "Invoiced", "Paid"},
	}
	for _, line := range report.Plan.Lines {
		var contract any = ""
		if line.Line.ContractAwarded {
			contract = line.Line.ApprovedContract.Units()
		}
		rows = append(rows, []any{
			line.Line.Section,
			line.Line.Activity,
			line.Line.Budget.Units(),
			contract,
			line.Figures.ApprovedVariations.Units(),
			line.Figures.Forecast.Units(),
			line.Figures.Variance.Units(),
			line.Figures.ActualToDate.Units(),
			line.Figures.PaidToDate.Units(),
		})
	}
	for _, section := range report.Plan.Sections {
		rows = append(rows, []any{
			section.Section,
			"Section total",
			section.Budget.Units(),
			section.ApprovedContract.Units(),
			section.ApprovedVariations.Units(),
			section.Forecast.Units(),
			section.Variance.Units(),
			section.ActualToDate.Units(),
			section.PaidToDate.Units(),
		})
	}
	unlinked := report.Plan.Unlinked
	rows = append(rows, []any{"", "Unlinked", "", "", unlinked.ApprovedVariations.Units(), "", "", unlinked.ActualToDate.Units(), unlinked.PaidToDate.Units()})
	totals := report.Plan.Totals
	rows = append(rows, []any{
		"",
		"Project total",
		totals.Budget.Units(),
		totals.ApprovedContract.Units(),
		totals.ApprovedVariations.Units(),
		totals.Forecast.Units(),
		totals.Variance.Units(),
		totals.ActualToDate.Units(),
		totals.PaidToDate.Units(),
	})
	rows = append(rows, []any{"", "Invoiced in " + report.Month.Month, "", "", "", "", "", report.Month.Invoiced.Units(), report.Month.Paid.Units()})
	return rows
}
