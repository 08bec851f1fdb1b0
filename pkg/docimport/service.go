package docimport

import (
	"context"
	"fmt"
	"time"

	"github.com/costwise/costwise/internal/event_bus"
	"github.com/costwise/costwise/pkg/costplan"
	"github.com/costwise/costwise/pkg/invoice"
	"github.com/costwise/costwise/pkg/match"
	"github.com/costwise/costwise/pkg/variation"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// resolveParallelism caps concurrent resolver calls for one document.
const resolveParallelism = 4

// shortlistLimit is how many candidates a review-tier line sends to the resolver.
const shortlistLimit = 5

type Service interface {
	Import(ctx context.Context, projectUid string, source string, document ParsedDocument) (ImportReport, error)
}

type ServiceImpl struct {
	plan       costplan.Service
	variations variation.Service
	invoices   invoice.Service
	resolver   match.Resolver
	eventBus   *event_bus.EventBus
}

// NewImportService creates an import service. The resolver may be nil,
// in which case review-tier lines are left unlinked for manual review.
func NewImportService(
	plan costplan.Service,
	variations variation.Service,
	invoices invoice.Service,
	resolver match.Resolver,
	eventBus *event_bus.EventBus,
) *ServiceImpl {
	return &ServiceImpl{
		plan:       plan,
		variations: variations,
		invoices:   invoices,
		resolver:   resolver,
		eventBus:   eventBus,
	}
}

// lineMatch is the matching outcome for one document line before records are created.
type lineMatch struct {
	query       match.Query
	ranked      []match.Match
	best        float64
	costLineUid string
	score       float64
	method      match.Method
	review      bool
}

func (s *ServiceImpl) Import(ctx context.Context, projectUid string, source string, document ParsedDocument) (ImportReport, error) {
	if document.Kind != KindVariation && document.Kind != KindInvoice {
		return ImportReport{}, ErrInvalidKind
	}
	if len(document.Lines) == 0 {
		return ImportReport{}, ErrEmptyDocument
	}
	if document.Kind == KindInvoice {
		if document.Supplier == "" || document.Reference == "" {
			return ImportReport{}, ErrMissingSupplier
		}
		if err := checkPeriods(document); err != nil {
			return ImportReport{}, err
		}
	}

	lines, err := s.plan.ListLines(ctx, projectUid)
	if err != nil {
		return ImportReport{}, err
	}
	candidates := make([]match.Candidate, 0, len(lines))
	for _, line := range lines {
		candidates = append(candidates, match.Candidate{Key: line.Uid, Label: line.Activity, Section: line.Section})
	}

	matches := s.matchLines(ctx, document, candidates)

	report := ImportReport{
		DocumentUid: uuid.New().String(),
		ProjectUid:  projectUid,
		Kind:        document.Kind,
	}
	// Records are created in document order so variation numbers follow the source.
	for i := range document.Lines {
		uid, err := s.createRecord(ctx, projectUid, document, i, matches[i])
		if err != nil {
			return ImportReport{}, err
		}
		report.Created = append(report.Created, CreatedRecord{
			Uid:         uid,
			Label:       document.Lines[i].Label,
			CostLineUid: matches[i].costLineUid,
			Score:       matches[i].score,
			Method:      matches[i].method,
		})
		switch {
		case matches[i].costLineUid != "":
			report.AutoLinked++
		case matches[i].review:
			report.NeedsReview++
		default:
			report.Unmatched = append(report.Unmatched, UnmatchedLine{
				Label:     document.Lines[i].Label,
				BestScore: matches[i].best,
			})
		}
	}

	err = s.eventBus.Publish(event_bus.NewEvent(ctx, "docimport.completed", event_bus.DocumentImportCompleted{
		ProjectUid:   projectUid,
		DocumentType: string(document.Kind),
		Source:       source,
		Imported:     report.Imported(),
		AutoLinked:   report.AutoLinked,
		NeedsReview:  report.NeedsReview,
		Unmatched:    len(report.Unmatched),
	}))
	if err != nil {
		log.Errorf("Error publishing event: %v", err)
		return ImportReport{}, err
	}
	return report, nil
}

// matchLines ranks every document line against the plan's cost lines and
// settles review-tier lines through the resolver when one is configured.
func (s *ServiceImpl) matchLines(ctx context.Context, document ParsedDocument, candidates []match.Candidate) []lineMatch {
	matches := make([]lineMatch, len(document.Lines))
	for i, line := range document.Lines {
		query := match.Query{Text: line.Label, Section: line.Section}
		ranked := match.Rank(query, candidates)
		m := lineMatch{query: query, ranked: ranked, method: match.MethodNone}
		if len(ranked) > 0 {
			m.best = ranked[0].Score
			switch ranked[0].Confidence {
			case match.ConfidenceAuto:
				m.costLineUid = ranked[0].Key
				m.score = ranked[0].Score
				m.method = match.MethodFuzzy
			case match.ConfidenceReview:
				m.score = ranked[0].Score
				m.method = match.MethodFuzzy
				m.review = true
			}
		}
		matches[i] = m
	}
	s.resolveReviews(ctx, document, matches)
	return matches
}

// resolveReviews asks the resolver to pick a cost line for each review-tier
// line. A resolver failure keeps the fuzzy result instead of failing the import.
func (s *ServiceImpl) resolveReviews(ctx context.Context, document ParsedDocument, matches []lineMatch) {
	if s.resolver == nil {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveParallelism)
	for i := range matches {
		if !matches[i].review {
			continue
		}
		g.Go(func() error {
			m := &matches[i]
			shortlist := match.Shortlist(m.ranked, shortlistLimit)
			decision, err := s.resolver.Resolve(gctx, m.query, shortlist)
			if err != nil {
				log.Warnf("Match resolver failed for %q, keeping the fuzzy result: %v", document.Lines[i].Label, err)
				return nil
			}
			if decision.Key == "" {
				return nil
			}
			for _, candidate := range shortlist {
				if candidate.Key == decision.Key {
					m.costLineUid = candidate.Key
					m.score = candidate.Score
					m.method = match.MethodAI
					m.review = false
					break
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *ServiceImpl) createRecord(ctx context.Context, projectUid string, document ParsedDocument, i int, m lineMatch) (string, error) {
	line := document.Lines[i]
	if document.Kind == KindVariation {
		created, err := s.variations.CreateVariation(ctx, variation.Variation{
			ProjectUid:  projectUid,
			CostLineUid: m.costLineUid,
			Title:       line.Label,
			Detail:      line.Detail,
			Amount:      line.Amount,
			MatchScore:  m.score,
			MatchMethod: m.method,
		})
		if err != nil {
			return "", fmt.Errorf("could not create variation %q: %w", line.Label, err)
		}
		return created.Uid, nil
	}

	start, end := effectivePeriod(document, line)
	created, err := s.invoices.CreateInvoice(ctx, invoice.Invoice{
		ProjectUid:  projectUid,
		CostLineUid: m.costLineUid,
		Supplier:    document.Supplier,
		Reference:   lineReference(document, i),
		PeriodStart: start,
		PeriodEnd:   end,
		Amount:      line.Amount,
		MatchScore:  m.score,
		MatchMethod: m.method,
	})
	if err != nil {
		return "", fmt.Errorf("could not create invoice %q: %w", line.Label, err)
	}
	return created.Uid, nil
}

// lineReference keeps each record of a multi-line document traceable to its source line.
func lineReference(document ParsedDocument, i int) string {
	if len(document.Lines) == 1 {
		return document.Reference
	}
	return fmt.Sprintf("%s/%d", document.Reference, i+1)
}

func checkPeriods(document ParsedDocument) error {
	for i, line := range document.Lines {
		start, end := effectivePeriod(document, line)
		if start.IsZero() || end.IsZero() || end.Before(start) {
			return fmt.Errorf("%w: line %d (%s)", ErrMissingPeriod, i+1, line.Label)
		}
	}
	return nil
}

// effectivePeriod falls back to the document's period when a line has none of its own.
func effectivePeriod(document ParsedDocument, line ParsedLine) (time.Time, time.Time) {
	start := line.PeriodStart
	end := line.PeriodEnd
	if start.IsZero() {
		start = document.PeriodStart
	}
	if end.IsZero() {
		end = document.PeriodEnd
	}
	return start, end
}
