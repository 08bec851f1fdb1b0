package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/match"
	"github.com/costwise/costwise/pkg/money"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type InvoiceDTO struct {
	Uid         string  `json:"uid"`
	ProjectUid  string  `json:"projectUid"`
	CostLineUid string  `json:"costLineUid,omitempty"`
	Supplier    string  `json:"supplier"`
	Reference   string  `json:"reference"`
	PeriodStart string  `json:"periodStart"`
	PeriodEnd   string  `json:"periodEnd"`
	Amount      int64   `json:"amount"`
	Paid        bool    `json:"paid"`
	PaidAt      string  `json:"paidAt,omitempty"`
	MatchScore  float64 `json:"matchScore,omitempty"`
	MatchMethod string  `json:"matchMethod,omitempty"`
	CreatedAt   string  `json:"createdAt,omitempty"`
}

type Handler struct {
	service Service
}

func NewInvoiceHandler(service Service) *Handler {
	return &Handler{service}
}

// ListInvoices godoc
// @Summary List the invoices of a project
// @Tags Invoice
// @Produce json
// @Param projectUid path string true "Project UID"
// @Success 200 {array} InvoiceDTO
// @Failure 403 {string} string "User not found"
// @Router /api/project/{projectUid}/invoice [get]
// @Security XUserId
func (handler *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]

	invoices, err := handler.service.ListInvoices(r.Context(), projectUid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	dtos := make([]InvoiceDTO, 0, len(invoices))
	for _, invoice := range invoices {
		dtos = append(dtos, invoiceToDTO(invoice))
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// GetInvoice godoc
// @Summary Get an invoice
// @Tags Invoice
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param invoiceUid path string true "Invoice UID"
// @Success 200 {object} InvoiceDTO
// @Failure 404 {string} string "Invoice not found"
// @Router /api/project/{projectUid}/invoice/{invoiceUid} [get]
// @Security XUserId
func (handler *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	uid := mux.Vars(r)["invoiceUid"]

	invoice, err := handler.service.GetInvoice(r.Context(), uid)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			http.Error(w, "invoice not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(invoiceToDTO(invoice)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// CreateInvoice godoc
// @Summary Record a new invoice
// @Description The invoice starts unpaid, use the pay endpoint to settle it
// @Tags Invoice
// @Accept json
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param invoice body InvoiceDTO true "Invoice"
// @Success 201 {object} InvoiceDTO
// @Failure 400 {string} string "Bad Request"
// @Router /api/project/{projectUid}/invoice [post]
// @Security XUserId
func (handler *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new invoice")
	w.Header().Set("Content-Type", "application/json")
	projectUid := mux.Vars(r)["projectUid"]

	var dto InvoiceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dto.ProjectUid = projectUid

	invoice, err := dtoToInvoice(dto)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := handler.service.CreateInvoice(r.Context(), invoice)
	if err != nil {
		if errors.Is(err, ErrInvoiceInvalid) || errors.Is(err, ErrInvalidPeriod) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(invoiceToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// UpdateInvoice godoc
// @Summary Update an invoice
// @Description The paid flag is ignored here, payment changes go through the pay and unpay endpoints
// @Tags Invoice
// @Accept json
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param invoiceUid path string true "Invoice UID"
// @Param invoice body InvoiceDTO true "Invoice"
// @Success 200 {object} InvoiceDTO
// @Failure 400 {string} string "Bad Request"
// @Failure 404 {string} string "Invoice not found"
// @Router /api/project/{projectUid}/invoice/{invoiceUid} [put]
// @Security XUserId
func (handler *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	vars := mux.Vars(r)

	var dto InvoiceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dto.Uid = vars["invoiceUid"]
	dto.ProjectUid = vars["projectUid"]

	invoice, err := dtoToInvoice(dto)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := handler.service.UpdateInvoice(r.Context(), invoice)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvoiceNotFound):
			http.Error(w, "invoice not found", http.StatusNotFound)
		case errors.Is(err, ErrInvoiceInvalid), errors.Is(err, ErrInvalidPeriod):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(invoiceToDTO(updated)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// DeleteInvoice godoc
// @Summary Delete an invoice
// @Tags Invoice
// @Param projectUid path string true "Project UID"
// @Param invoiceUid path string true "Invoice UID"
// @Success 204 {string} string "Deleted"
// @Failure 404 {string} string "Invoice not found"
// @Router /api/project/{projectUid}/invoice/{invoiceUid} [delete]
// @Security XUserId
func (handler *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["invoiceUid"]

	if _, err := handler.service.DeleteInvoice(r.Context(), uid); err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			http.Error(w, "invoice not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkPaid godoc
// @Summary Mark an invoice as paid
// @Tags Invoice
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param invoiceUid path string true "Invoice UID"
// @Success 200 {object} InvoiceDTO
// @Failure 404 {string} string "Invoice not found"
// @Router /api/project/{projectUid}/invoice/{invoiceUid}/pay [post]
// @Security XUserId
func (handler *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	handler.payment(w, r, handler.service.MarkPaid)
}

// MarkUnpaid godoc
// @Summary Mark an invoice as unpaid again
// @Tags Invoice
// @Produce json
// @Param projectUid path string true "Project UID"
// @Param invoiceUid path string true "Invoice UID"
// @Success 200 {object} InvoiceDTO
// @Failure 404 {string} string "Invoice not found"
// @Router /api/project/{projectUid}/invoice/{invoiceUid}/unpay [post]
// @Security XUserId
func (handler *Handler) MarkUnpaid(w http.ResponseWriter, r *http.Request) {
	handler.payment(w, r, handler.service.MarkUnpaid)
}

func (handler *Handler) payment(w http.ResponseWriter, r *http.Request, change func(ctx context.Context, uid string) (Invoice, error)) {
	w.Header().Set("Content-Type", "application/json")
	uid := mux.Vars(r)["invoiceUid"]

	changed, err := change(r.Context(), uid)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			http.Error(w, "invoice not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(invoiceToDTO(changed)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func dtoToInvoice(dto InvoiceDTO) (Invoice, error) {
	invoice := Invoice{
		Uid:         dto.Uid,
		ProjectUid:  dto.ProjectUid,
		CostLineUid: dto.CostLineUid,
		Supplier:    dto.Supplier,
		Reference:   dto.Reference,
		Amount:      money.Cents(dto.Amount),
		MatchScore:  dto.MatchScore,
		MatchMethod: match.Method(dto.MatchMethod),
	}
	var err error
	if dto.PeriodStart != "" {
		if invoice.PeriodStart, err = utils.ParseISODate(dto.PeriodStart); err != nil {
			return Invoice{}, fmt.Errorf("invalid periodStart: %w", err)
		}
	}
	if dto.PeriodEnd != "" {
		if invoice.PeriodEnd, err = utils.ParseISODate(dto.PeriodEnd); err != nil {
			return Invoice{}, fmt.Errorf("invalid periodEnd: %w", err)
		}
	}
	return invoice, nil
}

func invoiceToDTO(invoice Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		Uid:         invoice.Uid,
		ProjectUid:  invoice.ProjectUid,
		CostLineUid: invoice.CostLineUid,
		Supplier:    invoice.Supplier,
		Reference:   invoice.Reference,
		PeriodStart: utils.FormatISODate(invoice.PeriodStart),
		PeriodEnd:   utils.FormatISODate(invoice.PeriodEnd),
		Amount:      int64(invoice.Amount),
		Paid:        invoice.Paid,
		MatchScore:  invoice.MatchScore,
		MatchMethod: string(invoice.MatchMethod),
		CreatedAt:   invoice.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !invoice.PaidAt.IsZero() {
		dto.PaidAt = invoice.PaidAt.UTC().Format(time.RFC3339)
	}
	return dto
}
