package invoice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/costplan"
	"github.com/costwise/costwise/pkg/money"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	CreateInvoice(ctx context.Context, userId string, invoice Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, userId string, uid string) (Invoice, error)
	// ListInvoices returns the project's invoices ordered by period start,
	// then reference.
	ListInvoices(ctx context.Context, userId string, projectUid string) ([]Invoice, error)
	UpdateInvoice(ctx context.Context, userId string, invoice Invoice) (Invoice, error)
	SetPaid(ctx context.Context, userId string, invoice Invoice) error
	DeleteInvoice(ctx context.Context, userId string, uid string) (bool, error)
	InvoicedTotalsByLine(ctx context.Context, userId string, projectUid string) (map[string]costplan.InvoiceTotal, error)
}

type RepositoryImpl struct {
	db *sql.DB
}

func NewInvoiceRepo(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const invoiceColumns = `uid, project_uid, cost_line_uid, supplier, reference, period_start,
			period_end, amount, paid, paid_at, match_score, match_method, created_at`

func (r *RepositoryImpl) CreateInvoice(ctx context.Context, userId string, invoice Invoice) (Invoice, error) {
	query := `INSERT INTO invoices (uid, user_id, project_uid, cost_line_uid, supplier, reference,
					period_start, period_end, amount, paid, paid_at, match_score, match_method, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.ExecContext(ctx, query,
		invoice.Uid,
		userId,
		invoice.ProjectUid,
		nullableUid(invoice.CostLineUid),
		invoice.Supplier,
		invoice.Reference,
		utils.FormatISODate(invoice.PeriodStart),
		utils.FormatISODate(invoice.PeriodEnd),
		int64(invoice.Amount),
		invoice.Paid,
		nullableTime(invoice.PaidAt),
		invoice.MatchScore,
		invoice.MatchMethod,
		invoice.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		err := fmt.Errorf("could not insert invoice: %w", err)
		log.Error(err)
		return Invoice{}, err
	}
	return invoice, nil
}

func (r *RepositoryImpl) GetInvoice(ctx context.Context, userId string, uid string) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE user_id = $1 AND uid = $2`
	invoice, err := scanInvoice(r.db.QueryRowContext(ctx, query, userId, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	} else if err != nil {
		log.Errorf("failed to get invoice %s: %v", uid, err)
		return Invoice{}, err
	}
	return invoice, nil
}

func (r *RepositoryImpl) ListInvoices(ctx context.Context, userId string, projectUid string) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
				WHERE user_id = $1 AND project_uid = $2
				ORDER BY period_start, reference`
	rows, err := r.db.QueryContext(ctx, query, userId, projectUid)
	if err != nil {
		err := fmt.Errorf("could not query invoices: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	invoices := make([]Invoice, 0)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			log.Errorf("failed to scan invoice: %v", err)
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *RepositoryImpl) UpdateInvoice(ctx context.Context, userId string, invoice Invoice) (Invoice, error) {
	query := `UPDATE invoices SET cost_line_uid = $1, supplier = $2, reference = $3,
					period_start = $4, period_end = $5, amount = $6, match_score = $7, match_method = $8
				WHERE user_id = $9 AND uid = $10`
	result, err := r.db.ExecContext(ctx, query,
		nullableUid(invoice.CostLineUid),
		invoice.Supplier,
		invoice.Reference,
		utils.FormatISODate(invoice.PeriodStart),
		utils.FormatISODate(invoice.PeriodEnd),
		int64(invoice.Amount),
		invoice.MatchScore,
		invoice.MatchMethod,
		userId,
		invoice.Uid,
	)
	if err != nil {
		log.Errorf("failed to update invoice %s: %v", invoice.Uid, err)
		return Invoice{}, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return Invoice{}, err
	}
	if rowsAffected == 0 {
		return Invoice{}, ErrInvoiceNotFound
	}
	return r.GetInvoice(ctx, userId, invoice.Uid)
}

func (r *RepositoryImpl) SetPaid(ctx context.Context, userId string, invoice Invoice) error {
	query := `UPDATE invoices SET paid = $1, paid_at = $2 WHERE user_id = $3 AND uid = $4`
	result, err := r.db.ExecContext(ctx, query,
		invoice.Paid,
		nullableTime(invoice.PaidAt),
		userId,
		invoice.Uid,
	)
	if err != nil {
		log.Errorf("failed to update invoice %s payment: %v", invoice.Uid, err)
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *RepositoryImpl) DeleteInvoice(ctx context.Context, userId string, uid string) (bool, error) {
	query := `DELETE FROM invoices WHERE user_id = $1 AND uid = $2`
	result, err := r.db.ExecContext(ctx, query, userId, uid)
	if err != nil {
		log.Errorf("failed to delete invoice %s: %v", uid, err)
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// InvoicedTotalsByLine sums invoiced and paid amounts per cost line. The
// empty key collects invoices without a line, including invoices whose line
// has been deleted.
func (r *RepositoryImpl) InvoicedTotalsByLine(ctx context.Context, userId string, projectUid string) (map[string]costplan.InvoiceTotal, error) {
	query := `SELECT COALESCE(cost_line_uid, ''), SUM(amount),
					SUM(CASE WHEN paid THEN amount ELSE 0 END)
				FROM invoices
				WHERE user_id = $1 AND project_uid = $2
				GROUP BY COALESCE(cost_line_uid, '')`
	rows, err := r.db.QueryContext(ctx, query, userId, projectUid)
	if err != nil {
		err := fmt.Errorf("could not query invoice totals: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]costplan.InvoiceTotal)
	for rows.Next() {
		var lineUid string
		var invoiced, paid int64
		if err := rows.Scan(&lineUid, &invoiced, &paid); err != nil {
			return nil, err
		}
		totals[lineUid] = costplan.InvoiceTotal{
			Invoiced: money.Cents(invoiced),
			Paid:     money.Cents(paid),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func nullableUid(uid string) any {
	if uid == "" {
		return nil
	}
	return uid
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (Invoice, error) {
	var invoice Invoice
	var costLineUid, paidAt sql.NullString
	var periodStart, periodEnd, createdAt string
	var amount int64
	err := row.Scan(
		&invoice.Uid,
		&invoice.ProjectUid,
		&costLineUid,
		&invoice.Supplier,
		&invoice.Reference,
		&periodStart,
		&periodEnd,
		&amount,
		&invoice.Paid,
		&paidAt,
		&invoice.MatchScore,
		&invoice.MatchMethod,
		&createdAt,
	)
	if err != nil {
		return Invoice{}, err
	}
	invoice.CostLineUid = costLineUid.String
	invoice.Amount = money.Cents(amount)
	if invoice.PeriodStart, err = utils.ParseISODate(periodStart); err != nil {
		return Invoice{}, fmt.Errorf("invalid period_start %q: %w", periodStart, err)
	}
	if invoice.PeriodEnd, err = utils.ParseISODate(periodEnd); err != nil {
		return Invoice{}, fmt.Errorf("invalid period_end %q: %w", periodEnd, err)
	}
	if paidAt.Valid {
		if invoice.PaidAt, err = time.Parse(time.RFC3339, paidAt.String); err != nil {
			return Invoice{}, fmt.Errorf("invalid paid_at %q: %w", paidAt.String, err)
		}
	}
	if invoice.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Invoice{}, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	return invoice, nil
}
