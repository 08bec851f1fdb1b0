// Event payloads exchanged between feature packages. The event type strings
// used at publish and subscribe sites are:
//
//	"costplan.estimate.applied"  -> EstimateApplied
//	"variation.status.changed"   -> VariationStatusChanged
//	"invoice.payment.changed"    -> InvoicePaymentChanged
//	"docimport.completed"        -> DocumentImportCompleted
package event_bus

import "github.com/costwise/costwise/pkg/money"

// EstimateApplied is published after an allocation sheet has been written
// back to a project's cost plan.
type EstimateApplied struct {
	ProjectUid string
	// Total is the estimate that was allocated across the plan.
	Total money.Cents
	// LinesUpdated counts cost lines whose budget changed.
	LinesUpdated int
}

// VariationStatusChanged is published on every variation status transition.
// Statuses travel as plain strings so subscribers do not need the variation
// package.
type VariationStatusChanged struct {
	Uid         string
	ProjectUid  string
	CostLineUid string
	Number      string
	Amount      money.Cents
	OldStatus   string
	NewStatus   string
}

// InvoicePaymentChanged is published when an invoice is marked paid or unpaid.
type InvoicePaymentChanged struct {
	Uid         string
	ProjectUid  string
	CostLineUid string
	Reference   string
	Amount      money.Cents
	Paid        bool
}

// DocumentImportCompleted is published after a document import finished,
// whether it came in through the REST API or the worker queue.
type DocumentImportCompleted struct {
	ProjectUid   string
	DocumentType string
	Source       string
	Imported     int
	AutoLinked   int
	NeedsReview  int
	Unmatched    int
}
