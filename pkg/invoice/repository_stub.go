package invoice

import (
	"context"
	"sort"

	"github.com/costwise/costwise/pkg/costplan"
)

// RepositoryStub is an in-memory Repository for service tests.
type RepositoryStub struct {
	invoices map[string]Invoice
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{invoices: make(map[string]Invoice)}
}

func (r *RepositoryStub) Cleanup() {
	r.invoices = make(map[string]Invoice)
}

func (r *RepositoryStub) CreateInvoice(_ context.Context, _ string, invoice Invoice) (Invoice, error) {
	r.invoices[invoice.Uid] = invoice
	return invoice, nil
}

func (r *RepositoryStub) GetInvoice(_ context.Context, _ string, uid string) (Invoice, error) {
	invoice, ok := r.invoices[uid]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return invoice, nil
}

func (r *RepositoryStub) ListInvoices(_ context.Context, _ string, projectUid string) ([]Invoice, error) {
	invoices := make([]Invoice, 0)
	for _, invoice := range r.invoices {
		if invoice.ProjectUid == projectUid {
			invoices = append(invoices, invoice)
		}
	}
	sort.Slice(invoices, func(i, j int) bool {
		if !invoices[i].PeriodStart.Equal(invoices[j].PeriodStart) {
			return invoices[i].PeriodStart.Before(invoices[j].PeriodStart)
		}
		return invoices[i].Reference < invoices[j].Reference
	})
	return invoices, nil
}

func (r *RepositoryStub) UpdateInvoice(_ context.Context, _ string, invoice Invoice) (Invoice, error) {
	current, ok := r.invoices[invoice.Uid]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	current.CostLineUid = invoice.CostLineUid
	current.Supplier = invoice.Supplier
	current.Reference = invoice.Reference
	current.PeriodStart = invoice.PeriodStart
	current.PeriodEnd = invoice.PeriodEnd
	current.Amount = invoice.Amount
	current.MatchScore = invoice.MatchScore
	current.MatchMethod = invoice.MatchMethod
	r.invoices[invoice.Uid] = current
	return current, nil
}

func (r *RepositoryStub) SetPaid(_ context.Context, _ string, invoice Invoice) error {
	current, ok := r.invoices[invoice.Uid]
	if !ok {
		return ErrInvoiceNotFound
	}
	current.Paid = invoice.Paid
	current.PaidAt = invoice.PaidAt
	r.invoices[invoice.Uid] = current
	return nil
}

func (r *RepositoryStub) DeleteInvoice(_ context.Context, _ string, uid string) (bool, error) {
	if _, ok := r.invoices[uid]; !ok {
		return false, nil
	}
	delete(r.invoices, uid)
	return true, nil
}

func (r *RepositoryStub) InvoicedTotalsByLine(_ context.Context, _ string, projectUid string) (map[string]costplan.InvoiceTotal, error) {
	totals := make(map[string]costplan.InvoiceTotal)
	for _, invoice := range r.invoices {
		if invoice.ProjectUid != projectUid {
			continue
		}
		total := totals[invoice.CostLineUid]
		total.Invoiced += invoice.Amount
		if invoice.Paid {
			total.Paid += invoice.Amount
		}
		totals[invoice.CostLineUid] = total
	}
	return totals, nil
}
