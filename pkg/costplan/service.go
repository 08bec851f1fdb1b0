package costplan

import (
	"context"
	"fmt"

	"github.com/costwise/costwise/internal/event_bus"
	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/allocation"
	"github.com/costwise/costwise/pkg/money"
	"github.com/costwise/costwise/pkg/user"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// positionGap leaves room between neighbouring lines so a move usually needs
// a single position write.
const positionGap = 100

// VariationTotals supplies the approved variation sum per cost line uid.
// The empty key carries amounts not linked to any line.
type VariationTotals interface {
	ApprovedTotalsByLine(ctx context.Context, userId string, projectUid string) (map[string]money.Cents, error)
}

type InvoiceTotal struct {
	Invoiced money.Cents
	Paid     money.Cents
}

// InvoiceTotals supplies invoiced and paid sums per cost line uid. The empty
// key carries amounts not linked to any line.
type InvoiceTotals interface {
	InvoicedTotalsByLine(ctx context.Context, userId string, projectUid string) (map[string]InvoiceTotal, error)
}

type Service interface {
	ListLines(ctx context.Context, projectUid string) ([]CostLine, error)
	GetLine(ctx context.Context, uid string) (CostLine, error)
	CreateLine(ctx context.Context, line CostLine) (CostLine, error)
	UpdateLine(ctx context.Context, line CostLine) (CostLine, error)
	SetLocked(ctx context.Context, uid string, locked bool) (CostLine, error)
	DeleteLine(ctx context.Context, uid string) (bool, error)
	MoveLineAfter(ctx context.Context, projectUid string, uid string, precedingUid string) error
	Plan(ctx context.Context, projectUid string) (PlanView, error)
	ApplyEstimate(ctx context.Context, projectUid string, total money.Cents, rows []allocation.Row) (PlanView, error)
}

type ServiceImpl struct {
	repo       Repository
	variations VariationTotals
	invoices   InvoiceTotals
	eventBus   *event_bus.EventBus
	clock      utils.Clock
}

func NewCostPlanService(
	repo Repository,
	variations VariationTotals,
	invoices InvoiceTotals,
	eventBus *event_bus.EventBus,
	clock utils.Clock,
) *ServiceImpl {
	return &ServiceImpl{
		repo:       repo,
		variations: variations,
		invoices:   invoices,
		eventBus:   eventBus,
		clock:      clock,
	}
}

func (s *ServiceImpl) ListLines(ctx context.Context, projectUid string) ([]CostLine, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.ListLines(ctx, userId, projectUid)
}

func (s *ServiceImpl) GetLine(ctx context.Context, uid string) (CostLine, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return CostLine{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.GetLine(ctx, userId, uid)
}

func (s *ServiceImpl) CreateLine(ctx context.Context, line CostLine) (CostLine, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return CostLine{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if line.Section == "" || line.Activity == "" {
		return CostLine{}, ErrLineInvalid
	}

	lines, err := s.repo.ListLines(ctx, userId, line.ProjectUid)
	if err != nil {
		return CostLine{}, err
	}

	now := s.clock.Now()
	line.Uid = uuid.New().String()
	line.Position = maxPosition(lines) + positionGap
	line.CreatedAt = now
	line.UpdatedAt = now
	return s.repo.CreateLine(ctx, userId, line)
}

func (s *ServiceImpl) UpdateLine(ctx context.Context, line CostLine) (CostLine, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return CostLine{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if line.Section == "" || line.Activity == "" {
		return CostLine{}, ErrLineInvalid
	}
	line.UpdatedAt = s.clock.Now()
	return s.repo.UpdateLine(ctx, userId, line)
}

func (s *ServiceImpl) SetLocked(ctx context.Context, uid string, locked bool) (CostLine, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return CostLine{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if err := s.repo.SetLocked(ctx, userId, uid, locked, s.clock.Now()); err != nil {
		return CostLine{}, err
	}
	return s.repo.GetLine(ctx, userId, uid)
}

func (s *ServiceImpl) DeleteLine(ctx context.Context, uid string) (bool, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get current user: %w", err)
	}
	deleted, err := s.repo.DeleteLine(ctx, userId, uid)
	if err != nil {
		return false, err
	}
	if !deleted {
		log.Warnf("cost line not deleted, probably because it does not exist (%s) or the user (%s) is not the owner", uid, userId)
		return false, ErrLineNotFound
	}
	return true, nil
}

// MoveLineAfter places a line directly after the line precedingUid, or at the
// front of the plan when precedingUid is empty. It slots the line into the
// position gap between its new neighbours and renumbers the whole plan only
// when no gap is left.
func (s *ServiceImpl) MoveLineAfter(ctx context.Context, projectUid string, uid string, precedingUid string) error {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}
	lines, err := s.repo.ListLines(ctx, userId, projectUid)
	if err != nil {
		return err
	}

	idx := findLine(uid, lines)
	if idx == -1 {
		return ErrLineNotFound
	}
	if precedingUid != "" && findLine(precedingUid, lines) == -1 {
		return ErrLineNotFound
	}
	if uid == precedingUid {
		return nil
	}

	prevPos, nextPos := neighbourPositions(precedingUid, lines)
	if nextPos == -1 {
		return s.repo.UpdateLinePosition(ctx, userId, uid, prevPos+positionGap)
	}
	if nextPos-prevPos > 1 {
		return s.repo.UpdateLinePosition(ctx, userId, uid, prevPos+(nextPos-prevPos)/2)
	}

	// No space between the new neighbours, renumber everything.
	reordered := make([]CostLine, 0, len(lines))
	for _, line := range lines {
		if line.Uid != uid {
			reordered = append(reordered, line)
		}
	}
	insertAt := 0
	for i, line := range reordered {
		if line.Uid == precedingUid {
			insertAt = i + 1
			break
		}
	}
	reordered = append(reordered[:insertAt], append([]CostLine{lines[idx]}, reordered[insertAt:]...)...)
	for i, line := range reordered {
		if err := s.repo.UpdateLinePosition(ctx, userId, line.Uid, (i+1)*positionGap); err != nil {
			return err
		}
	}
	return nil
}

// Plan assembles the cost plan view with derived figures, section rollups
// and project totals.
func (s *ServiceImpl) Plan(ctx context.Context, projectUid string) (PlanView, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return PlanView{}, fmt.Errorf("failed to get current user: %w", err)
	}
	lines, err := s.repo.ListLines(ctx, userId, projectUid)
	if err != nil {
		return PlanView{}, err
	}
	varTotals, err := s.variations.ApprovedTotalsByLine(ctx, userId, projectUid)
	if err != nil {
		return PlanView{}, fmt.Errorf("failed to read variation totals: %w", err)
	}
	invTotals, err := s.invoices.InvoicedTotalsByLine(ctx, userId, projectUid)
	if err != nil {
		return PlanView{}, fmt.Errorf("failed to read invoice totals: %w", err)
	}

	view := PlanView{
		ProjectUid: projectUid,
		Lines:      make([]LineView, 0, len(lines)),
		Sections:   make([]SectionRollup, 0),
	}
	sectionIdx := make(map[string]int)
	for _, line := range lines {
		figures := FiguresFor(line, varTotals[line.Uid], invTotals[line.Uid].Invoiced, invTotals[line.Uid].Paid)
		view.Lines = append(view.Lines, LineView{Line: line, Figures: figures})

		i, ok := sectionIdx[line.Section]
		if !ok {
			i = len(view.Sections)
			sectionIdx[line.Section] = i
			view.Sections = append(view.Sections, SectionRollup{Section: line.Section})
		}
		view.Sections[i].add(line, figures)
		view.Totals.add(line, figures)
	}

	// Unlinked amounts count toward the project, not toward any line. An
	// approved variation loses its line when that line is deleted.
	view.Unlinked = UnlinkedTotals{
		ApprovedVariations: varTotals[""],
		ActualToDate:       invTotals[""].Invoiced,
		PaidToDate:         invTotals[""].Paid,
	}
	view.Totals.ApprovedVariations += view.Unlinked.ApprovedVariations
	view.Totals.Forecast += view.Unlinked.ApprovedVariations
	view.Totals.Variance -= view.Unlinked.ApprovedVariations
	view.Totals.ActualToDate += view.Unlinked.ActualToDate
	view.Totals.PaidToDate += view.Unlinked.PaidToDate
	return view, nil
}

// ApplyEstimate writes an allocation sheet back to the cost plan. Each
// section amount is spread over the section's lines in proportion to their
// current budgets, evenly when all budgets are zero. Locked lines keep their
// budget and their total is carved out of the section amount first. Sections
// without any line get a new one carrying the whole section amount.
func (s *ServiceImpl) ApplyEstimate(ctx context.Context, projectUid string, total money.Cents, rows []allocation.Row) (PlanView, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return PlanView{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if len(rows) == 0 {
		return PlanView{}, ErrEmptyEstimate
	}
	amounts, err := allocation.Amounts(allocation.Plan{Rows: rows}, total)
	if err != nil {
		return PlanView{}, err
	}
	labels := make(map[string]string, len(rows))
	for _, row := range rows {
		labels[row.Key] = row.Label
	}

	lines, err := s.repo.ListLines(ctx, userId, projectUid)
	if err != nil {
		return PlanView{}, err
	}
	bySection := make(map[string][]CostLine)
	for _, line := range lines {
		bySection[line.Section] = append(bySection[line.Section], line)
	}

	now := s.clock.Now()
	nextPos := maxPosition(lines)
	updates := make([]BudgetUpdate, 0)
	inserts := make([]CostLine, 0)
	for _, sectionAmount := range amounts {
		sectionLines := bySection[sectionAmount.Key]
		if len(sectionLines) == 0 {
			activity := labels[sectionAmount.Key]
			if activity == "" {
				activity = sectionAmount.Key
			}
			nextPos += positionGap
			inserts = append(inserts, CostLine{
				Uid:        uuid.New().String(),
				ProjectUid: projectUid,
				Section:    sectionAmount.Key,
				Activity:   activity,
				Budget:     sectionAmount.Amount,
				Position:   nextPos,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			continue
		}

		available := sectionAmount.Amount
		unlocked := make([]CostLine, 0, len(sectionLines))
		for _, line := range sectionLines {
			if line.Locked {
				available -= line.Budget
			} else {
				unlocked = append(unlocked, line)
			}
		}
		if len(unlocked) == 0 {
			// Every line locked, the section keeps its budgets.
			continue
		}
		if available < 0 {
			available = 0
		}

		splitRows := make([]allocation.Row, len(unlocked))
		weights := make([]int64, len(unlocked))
		for i, line := range unlocked {
			splitRows[i] = allocation.Row{Key: line.Uid}
			weights[i] = int64(line.Budget)
			if weights[i] < 0 {
				weights[i] = 0
			}
		}
		split, err := allocation.WeightedSplit(splitRows, weights)
		if err != nil {
			return PlanView{}, err
		}
		lineAmounts, err := allocation.Amounts(split, available)
		if err != nil {
			return PlanView{}, err
		}
		for i, lineAmount := range lineAmounts {
			if unlocked[i].Budget == lineAmount.Amount {
				continue
			}
			updates = append(updates, BudgetUpdate{Uid: lineAmount.Key, Budget: lineAmount.Amount, UpdatedAt: now})
		}
	}

	if err := s.repo.ApplyBudgets(ctx, userId, updates, inserts); err != nil {
		return PlanView{}, err
	}

	err = s.eventBus.Publish(event_bus.NewEvent(
		ctx,
		"costplan.estimate.applied",
		event_bus.EstimateApplied{
			ProjectUid:   projectUid,
			Total:        total,
			LinesUpdated: len(updates) + len(inserts),
		},
	))
	if err != nil {
		log.Errorf("failed to publish estimate applied event: %v", err)
		return PlanView{}, err
	}

	return s.Plan(ctx, projectUid)
}

func maxPosition(lines []CostLine) int {
	pos := 0
	for _, line := range lines {
		if line.Position > pos {
			pos = line.Position
		}
	}
	return pos
}

func findLine(uid string, lines []CostLine) int {
	for idx, line := range lines {
		if line.Uid == uid {
			return idx
		}
	}
	return -1
}

func neighbourPositions(precedingUid string, lines []CostLine) (int, int) {
	precedingIdx := findLine(precedingUid, lines)
	if precedingIdx == -1 { // move to the front
		return 0, lines[0].Position
	}
	precedingPos := lines[precedingIdx].Position
	if precedingIdx == len(lines)-1 { // it is the last one
		return precedingPos, -1
	}
	return precedingPos, lines[precedingIdx+1].Position
}
