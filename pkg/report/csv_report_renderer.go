package report

import (
	"bytes"
	"encoding/csv"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/money"
	log "github.com/sirupsen/logrus"
)

type CsvReportRendererImpl struct {
}

func NewCsvReportRenderer() *CsvReportRendererImpl {
	return &CsvReportRendererImpl{}
}

// RenderReport writes the report grid as CSV. Amounts carry the currency
// code and grouped thousands, the way they appear in the client.
func (t *CsvReportRendererImpl) RenderReport(report CostReport) (string, error) {
	formatter, err := money.NewFormatter(report.Project.Currency)
	if err != nil {
		return "", err
	}

	data := make([][]string, 0, len(report.Plan.Lines)+len(report.Plan.Sections)+5)
	data = append(data, []string{"Project", report.Project.Name, "Code", report.Project.Code, "Currency", report.Project.Currency, "Generated", utils.FormatISODate(report.GeneratedAt)})
	data = append(data, []string{"Section", "Activity", "Budget", "Contract", "Variations", "Forecast", "Variance", "Invoiced", "Paid"})

	for _, line := range report.Plan.Lines {
		contract := ""
		if line.Line.ContractAwarded {
			contract = formatter.Format(line.Line.ApprovedContract)
		}
		data = append(data, []string{
			line.Line.Section,
			line.Line.Activity,
			formatter.Format(line.Line.Budget),
			contract,
			formatter.Format(line.Figures.ApprovedVariations),
			formatter.Format(line.Figures.Forecast),
			formatter.Format(line.Figures.Variance),
			formatter.Format(line.Figures.ActualToDate),
			formatter.Format(line.Figures.PaidToDate),
		})
	}

	for _, section := range report.Plan.Sections {
		data = append(data, []string{
			section.Section,
			"Section total",
			formatter.Format(section.Budget),
			formatter.Format(section.ApprovedContract),
			formatter.Format(section.ApprovedVariations),
			formatter.Format(section.Forecast),
			formatter.Format(section.Variance),
			formatter.Format(section.ActualToDate),
			formatter.Format(section.PaidToDate),
		})
	}

	unlinked := report.Plan.Unlinked
	data = append(data, []string{"", "Unlinked", "", "", formatter.Format(unlinked.ApprovedVariations), "", "", formatter.Format(unlinked.ActualToDate), formatter.Format(unlinked.PaidToDate)})

	totals := report.Plan.Totals
	data = append(data, []string{
		"",
		"Project total",
		formatter.Format(totals.Budget),
		formatter.Format(totals.ApprovedContract),
		formatter.Format(totals.ApprovedVariations),
		formatter.Format(totals.Forecast),
		formatter.Format(totals.Variance),
		formatter.Format(totals.ActualToDate),
		formatter.Format(totals.PaidToDate),
	})

	data = append(data, []string{"", "Invoiced in " + report.Month.Month, "", "", "", "", "", formatter.Format(report.Month.Invoiced), formatter.Format(report.Month.Paid)})

	var b bytes.Buffer
	writer := csv.NewWriter(&b)
	for _, row := range data {
		err := writer.Write(row)
		if err != nil {
			log.Errorf("Error writing to csv: %v", err)
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Errorf("Error writing to csv: %v", err)
		return "", err
	}

	return b.String(), nil
}
