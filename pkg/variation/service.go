package variation

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
	ListVariations(ctx context.Context, projectUid string, status Status) ([]Variation, error)
	GetVariation(ctx context.Context, uid string) (Variation, error)
	CreateVariation(ctx context.Context, variation Variation) (Variation, error)
	UpdateVariation(ctx context.Context, variation Variation) (Variation, error)
	DeleteVariation(ctx context.Context, uid string) (bool, error)
	Submit(ctx context.Context, uid string) (Variation, error)
	Approve(ctx context.Context, uid string) (Variation, error)
	Reject(ctx context.Context, uid string) (Variation, error)
	Reopen(ctx context.Context, uid string) (Variation, error)
}

type ServiceImpl struct {
	repo     Repository
	eventBus *event_bus.EventBus
	clock    utils.Clock
}

func NewVariationService(repo Repository, eventBus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, eventBus: eventBus, clock: clock}
}

func (s *ServiceImpl) ListVariations(ctx context.Context, projectUid string, status Status) ([]Variation, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.ListVariations(ctx, userId, projectUid, status)
}

func (s *ServiceImpl) GetVariation(ctx context.Context, uid string) (Variation, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Variation{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.GetVariation(ctx, userId, uid)
}

func (s *ServiceImpl) CreateVariation(ctx context.Context, variation Variation) (Variation, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Variation{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if variation.Category == "" {
		variation.Category = CategoryOther
	}
	if !validCategory(variation.Category) {
		return Variation{}, fmt.Errorf("%w: %s", ErrInvalidCategory, variation.Category)
	}

	number, err := s.repo.NextNumber(ctx, userId, variation.ProjectUid)
	if err != nil {
		return Variation{}, err
	}

	variation.Uid = uuid.New().String()
	variation.Number = number
	variation.Status = StatusDraft
	if variation.MatchMethod == "" {
		variation.MatchMethod = match.MethodNone
	}
	variation.SubmittedAt = time.Time{}
	variation.DecidedAt = time.Time{}
	variation.CreatedAt = s.clock.Now()
	return s.repo.CreateVariation(ctx, userId, variation)
}

// UpdateVariation edits title, detail, category, amount and the cost line
// link. Edits are only allowed while the variation is a draft. A link changed
// by hand is recorded as a manual match.
func (s *ServiceImpl) UpdateVariation(ctx context.Context, variation Variation) (Variation, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Variation{}, fmt.Errorf("failed to get current user: %w", err)
	}
	current, err := s.repo.GetVariation(ctx, userId, variation.Uid)
	if err != nil {
		return Variation{}, err
	}
	if current.Status != StatusDraft {
		return Variation{}, ErrNotDraft
	}
	if variation.Category == "" {
		variation.Category = current.Category
	}
	if !validCategory(variation.Category) {
		return Variation{}, fmt.Errorf("%w: %s", ErrInvalidCategory, variation.Category)
	}

	variation.MatchScore = current.MatchScore
	variation.MatchMethod = current.MatchMethod
	if variation.CostLineUid != current.CostLineUid {
		variation.MatchScore = 0
		variation.MatchMethod = match.MethodManual
	}
	return s.repo.UpdateVariation(ctx, userId, variation)
}

func (s *ServiceImpl) DeleteVariation(ctx context.Context, uid string) (bool, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get current user: %w", err)
	}
	current, err := s.repo.GetVariation(ctx, userId, uid)
	if err != nil {
		return false, err
	}
	if current.Status == StatusApproved {
		return false, ErrApprovedImmutable
	}
	deleted, err := s.repo.DeleteVariation(ctx, userId, uid)
	if err != nil {
		return false, err
	}
	if !deleted {
		log.Warnf("variation not deleted, probably because it does not exist (%s) or the user (%s) is not the owner", uid, userId)
		return false, ErrVariationNotFound
	}
	return true, nil
}

func (s *ServiceImpl) Submit(ctx context.Context, uid string) (Variation, error) {
	return s.transition(ctx, uid, StatusSubmitted)
}

func (s *ServiceImpl) Approve(ctx context.Context, uid string) (Variation, error) {
	return s.transition(ctx, uid, StatusApproved)
}

func (s *ServiceImpl) Reject(ctx context.Context, uid string) (Variation, error) {
	return s.transition(ctx, uid, StatusRejected)
}

// Reopen turns a rejected variation back into a draft so it can be revised
// and resubmitted.
func (s *ServiceImpl) Reopen(ctx context.Context, uid string) (Variation, error) {
	return s.transition(ctx, uid, StatusDraft)
}

func (s *ServiceImpl) transition(ctx context.Context, uid string, to Status) (Variation, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Variation{}, fmt.Errorf("failed to get current user: %w", err)
	}
	current, err := s.repo.GetVariation(ctx, userId, uid)
	if err != nil {
		return Variation{}, err
	}
	if !canTransition(current.Status, to) {
		return Variation{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
	}
	if to == StatusApproved && current.CostLineUid == "" {
		return Variation{}, ErrUnlinked
	}

	from := current.Status
	now := s.clock.Now()
	current.Status = to
	switch to {
	case StatusSubmitted:
		current.SubmittedAt = now
	case StatusApproved, StatusRejected:
		current.DecidedAt = now
	case StatusDraft:
		current.SubmittedAt = time.Time{}
		current.DecidedAt = time.Time{}
	}

	if err := s.repo.UpdateStatus(ctx, userId, current); err != nil {
		return Variation{}, err
	}

	err = s.eventBus.Publish(event_bus.NewEvent(
		ctx,
		"variation.status.changed",
		event_bus.VariationStatusChanged{
			Uid:         current.Uid,
			ProjectUid:  current.ProjectUid,
			CostLineUid: current.CostLineUid,
			Number:      current.Code(),
			Amount:      current.Amount,
			OldStatus:   string(from),
			NewStatus:   string(to),
		},
	))
	if err != nil {
		log.Errorf("failed to publish variation status event: %v", err)
		return Variation{}, err
	}
	return current, nil
}
