package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/costwise/costwise/internal/event_bus"
	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/user"
)

// Recorder turns bus events into stored activity entries. The bus is
// synchronous, so a failed insert surfaces to the publisher.
type Recorder struct {
	repo  Repository
	clock utils.Clock
}

func NewRecorder(repo Repository, clock utils.Clock) *Recorder {
	return &Recorder{repo: repo, clock: clock}
}

// Register subscribes the recorder to every event type the feed covers.
func (rec *Recorder) Register(eventBus *event_bus.EventBus) {
	event_bus.SubscribeTyped(eventBus, "costplan.estimate.applied",
		func(e event_bus.EventT[event_bus.EstimateApplied]) error {
			summary := fmt.Sprintf("Estimate applied across %d cost lines", e.Data.LinesUpdated)
			return rec.record(e.Context(), e.Data.ProjectUid, string(e.Type), summary, e.Data)
		})
	event_bus.SubscribeTyped(eventBus, "variation.status.changed",
		func(e event_bus.EventT[event_bus.VariationStatusChanged]) error {
			summary := fmt.Sprintf("Variation %s moved from %s to %s", e.Data.Number, e.Data.OldStatus, e.Data.NewStatus)
			return rec.record(e.Context(), e.Data.ProjectUid, string(e.Type), summary, e.Data)
		})
	event_bus.SubscribeTyped(eventBus, "invoice.payment.changed",
		func(e event_bus.EventT[event_bus.InvoicePaymentChanged]) error {
			state := "unpaid"
			if e.Data.Paid {
				state = "paid"
			}
			summary := fmt.Sprintf("Invoice %s marked %s", e.Data.Reference, state)
			return rec.record(e.Context(), e.Data.ProjectUid, string(e.Type), summary, e.Data)
		})
	event_bus.SubscribeTyped(eventBus, "docimport.completed",
		func(e event_bus.EventT[event_bus.DocumentImportCompleted]) error {
			summary := fmt.Sprintf("Imported %d lines from a %s document", e.Data.Imported, e.Data.DocumentType)
			if e.Data.NeedsReview > 0 {
				summary = fmt.Sprintf("%s, %d need review", summary, e.Data.NeedsReview)
			}
			return rec.record(e.Context(), e.Data.ProjectUid, string(e.Type), summary, e.Data)
		})
}

func (rec *Recorder) record(ctx context.Context, projectUid string, kind string, summary string, payload any) error {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}
	detail, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not encode activity detail: %w", err)
	}
	entry := Entry{
		Uid:        uuid.New().String(),
		ProjectUid: projectUid,
		Kind:       kind,
		Summary:    summary,
		Detail:     string(detail),
		OccurredAt: rec.clock.Now(),
	}
	if _, err := rec.repo.CreateEntry(ctx, userId, entry); err != nil {
		return fmt.Errorf("could not record activity: %w", err)
	}
	log.Tracef("Recorded activity %s for project %s", kind, projectUid)
	return nil
}
