// Package invoice records supplier invoices against a project and, when
// linked, against a single cost line. Invoiced and paid sums feed the cost
// plan's actual-to-date figures.
package invoice

import (
	"errors"
	"time"

	"github.com/costwise/costwise/pkg/match"
	"github.com/costwise/costwise/pkg/money"
)

var ErrInvoiceNotFound = errors.New("invoice not found")
var ErrInvoiceInvalid = errors.New("invoice needs a supplier and a reference")
var ErrInvalidPeriod = errors.New("invoice period must be a valid date range")

// Invoice is one supplier claim. PeriodStart and PeriodEnd are calendar
// dates bounding the work the claim covers. An empty CostLineUid means the
// invoice counts toward project actuals without a line.
type Invoice struct {
	Uid         string
	ProjectUid  string
	CostLineUid string
	Supplier    string
	Reference   string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Amount      money.Cents
	Paid        bool
	PaidAt      time.Time
	MatchScore  float64
	MatchMethod match.Method
	CreatedAt   time.Time
}
