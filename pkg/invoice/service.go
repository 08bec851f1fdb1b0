package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/costwise/costwise/internal/event_bus"
	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/match"
	"github.com/costwise/costwise/pkg/user"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type Service interface {
	ListInvoices(ctx context.Context, projectUid string) ([]Invoice, error)
	GetInvoice(ctx context.Context, uid string) (Invoice, error)
	CreateInvoice(ctx context.Context, invoice Invoice) (Invoice, error)
	UpdateInvoice(ctx context.Context, invoice Invoice) (Invoice, error)
	DeleteInvoice(ctx context.Context, uid string) (bool, error)
	MarkPaid(ctx context.Context, uid string) (Invoice, error)
	MarkUnpaid(ctx context.Context, uid string) (Invoice, error)
}

type ServiceImpl struct {
	repo     Repository
	eventBus *event_bus.EventBus
	clock    utils.Clock
}

func NewInvoiceService(repo Repository, eventBus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, eventBus: eventBus, clock: clock}
}

func (s *ServiceImpl) ListInvoices(ctx context.Context, projectUid string) ([]Invoice, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.ListInvoices(ctx, userId, projectUid)
}

func (s *ServiceImpl) GetInvoice(ctx context.Context, uid string) (Invoice, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Invoice{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.GetInvoice(ctx, userId, uid)
}

func (s *ServiceImpl) CreateInvoice(ctx context.Context, invoice Invoice) (Invoice, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Invoice{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if err := validate(invoice); err != nil {
		return Invoice{}, err
	}

	invoice.Uid = uuid.New().String()
	if invoice.MatchMethod == "" {
		invoice.MatchMethod = match.MethodNone
	}
	// Payment state only changes through MarkPaid and MarkUnpaid.
	invoice.Paid = false
	invoice.PaidAt = time.Time{}
	invoice.CreatedAt = s.clock.Now()
	return s.repo.CreateInvoice(ctx, userId, invoice)
}

// UpdateInvoice edits supplier, reference, period, amount and the cost line
// link. A link changed by hand is recorded as a manual match.
func (s *ServiceImpl) UpdateInvoice(ctx context.Context, invoice Invoice) (Invoice, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Invoice{}, fmt.Errorf("failed to get current user: %w", err)
	}
	current, err := s.repo.GetInvoice(ctx, userId, invoice.Uid)
	if err != nil {
		return Invoice{}, err
	}
	if err := validate(invoice); err != nil {
		return Invoice{}, err
	}

	invoice.MatchScore = current.MatchScore
	invoice.MatchMethod = current.MatchMethod
	if invoice.CostLineUid != current.CostLineUid {
		invoice.MatchScore = 0
		invoice.MatchMethod = match.MethodManual
	}
	return s.repo.UpdateInvoice(ctx, userId, invoice)
}

func (s *ServiceImpl) DeleteInvoice(ctx context.Context, uid string) (bool, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get current user: %w", err)
	}
	deleted, err := s.repo.DeleteInvoice(ctx, userId, uid)
	if err != nil {
		return false, err
	}
	if !deleted {
		log.Warnf("invoice not deleted, probably because it does not exist (%s) or the user (%s) is not the owner", uid, userId)
		return false, ErrInvoiceNotFound
	}
	return true, nil
}

func (s *ServiceImpl) MarkPaid(ctx context.Context, uid string) (Invoice, error) {
	return s.setPaid(ctx, uid, true)
}

func (s *ServiceImpl) MarkUnpaid(ctx context.Context, uid string) (Invoice, error) {
	return s.setPaid(ctx, uid, false)
}

// setPaid is idempotent. Repeating the current payment state writes nothing
// and publishes nothing.
func (s *ServiceImpl) setPaid(ctx context.Context, uid string, paid bool) (Invoice, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Invoice{}, fmt.Errorf("failed to get current user: %w", err)
	}
	current, err := s.repo.GetInvoice(ctx, userId, uid)
	if err != nil {
		return Invoice{}, err
	}
	if current.Paid == paid {
		return current, nil
	}

	current.Paid = paid
	if paid {
		current.PaidAt = s.clock.Now()
	} else {
		current.PaidAt = time.Time{}
	}
	if err := s.repo.SetPaid(ctx, userId, current); err != nil {
		return Invoice{}, err
	}

	err = s.eventBus.Publish(event_bus.NewEvent(
		ctx,
		"invoice.payment.changed",
		event_bus.InvoicePaymentChanged{
			Uid:         current.Uid,
			ProjectUid:  current.ProjectUid,
			CostLineUid: current.CostLineUid,
			Reference:   current.Reference,
			Amount:      current.Amount,
			Paid:        current.Paid,
		},
	))
	if err != nil {
		log.Errorf("failed to publish invoice payment event: %v", err)
		return Invoice{}, err
	}
	return current, nil
}

func validate(invoice Invoice) error {
	if invoice.Supplier == "" || invoice.Reference == "" {
		return ErrInvoiceInvalid
	}
	if invoice.PeriodStart.IsZero() || invoice.PeriodEnd.IsZero() || invoice.PeriodEnd.Before(invoice.PeriodStart) {
		return ErrInvalidPeriod
	}
	return nil
}
