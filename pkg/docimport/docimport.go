// Package docimport turns parsed variation and invoice documents into
// records linked to the project's cost plan. Parsing itself happens outside,
// payloads arrive here through the REST API or the import queue.
package docimport

import (
	"errors"
	"time"

	"github.com/costwise/costwise/pkg/match"
	"github.com/costwise/costwise/pkg/money"
)

type Kind string

const (
	KindVariation Kind = "variation"
	KindInvoice   Kind = "invoice"
)

// Sources a document can arrive from, recorded on the completion event.
const (
	SourceApi   = "api"
	SourceQueue = "queue"
)

var ErrInvalidKind = errors.New("document kind must be variation or invoice")
var ErrEmptyDocument = errors.New("document has no lines")
var ErrMissingPeriod = errors.New("invoice import needs a valid period for every line")
var ErrMissingSupplier = errors.New("invoice import needs a supplier and a reference")

// IsDocumentError reports whether err is a problem with the document itself
// rather than with the system processing it. Such imports will not succeed on
// a retry.
func IsDocumentError(err error) bool {
	return errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrEmptyDocument) ||
		errors.Is(err, ErrMissingPeriod) ||
		errors.Is(err, ErrMissingSupplier)
}

// ParsedLine is one line of a parsed document. Period fields only matter for
// invoices and fall back to the document's period when zero.
type ParsedLine struct {
	Label       string
	Detail      string
	Amount      money.Cents
	Section     string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// ParsedDocument is the payload produced by the document parser pipeline.
type ParsedDocument struct {
	Kind        Kind
	Supplier    string
	Reference   string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Lines       []ParsedLine
}

// CreatedRecord reports one variation or invoice made by an import. An empty
// CostLineUid means the record was created but left unlinked.
type CreatedRecord struct {
	Uid         string
	Label       string
	CostLineUid string
	Score       float64
	Method      match.Method
}

// UnmatchedLine reports a line with no plausible cost-plan candidate.
// BestScore is the best score seen, kept for tuning the thresholds.
type UnmatchedLine struct {
	Label     string
	BestScore float64
}

// ImportReport summarises an import run. Every document line yields exactly
// one entry in Created; AutoLinked, NeedsReview and the Unmatched list
// partition them by how the matcher fared.
type ImportReport struct {
	DocumentUid string
	ProjectUid  string
	Kind        Kind
	Created     []CreatedRecord
	Unmatched   []UnmatchedLine
	AutoLinked  int
	NeedsReview int
}

func (r ImportReport) Imported() int {
	return len(r.Created)
}
