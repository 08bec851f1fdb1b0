package google

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/costwise/costwise/pkg/report"
	"github.com/costwise/costwise/pkg/user"
)

// SheetsWriter exports report grids to a fresh Google spreadsheet using the
// current user's stored OAuth token.
type SheetsWriter struct {
	auth *GoogleAuth
}

var _ report.RowWriter = (*SheetsWriter)(nil)

func NewSheetsWriter(auth *GoogleAuth) *SheetsWriter {
	return &SheetsWriter{auth: auth}
}

func (sw *SheetsWriter) WriteRows(ctx context.Context, title string, rows [][]any) (string, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	source, err := sw.auth.tokenSource(ctx, userId)
	if err != nil {
		return "", err
	}
	if source == nil {
		return "", report.ErrSheetsNotConnected
	}

	service, err := sheets.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return "", fmt.Errorf("could not build the Sheets client: %w", err)
	}

	spreadsheet, err := service.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("could not create the spreadsheet: %w", err)
	}

	valueRange := &sheets.ValueRange{Values: rows}
	_, err = service.Spreadsheets.Values.Update(spreadsheet.SpreadsheetId, "A1", valueRange).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("could not write the report rows: %w", err)
	}

	log.Debugf("Wrote %d rows to spreadsheet %s", len(rows), spreadsheet.SpreadsheetId)
	return spreadsheet.SpreadsheetUrl, nil
}
