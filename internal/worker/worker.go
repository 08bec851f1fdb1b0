// Package worker drains the import queue. Each message carries a parsed
// document and the id of the user who sent it; the import runs under that
// user's context exactly like a REST import would.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/costwise/costwise/internal/amqp"
	"github.com/costwise/costwise/pkg/docimport"
	"github.com/costwise/costwise/pkg/user"
)

type Worker struct {
	users    user.Service
	importer docimport.Service
}

func NewWorker(users user.Service, importer docimport.Service) *Worker {
	return &Worker{users: users, importer: importer}
}

// Run consumes deliveries until the context is cancelled or the channel
// closes. Malformed messages and documents that can never import are
// dropped; other failures are requeued once.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp091.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			log.Infof("Stopping import consumption: %v", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.handle(ctx, delivery)
		}
	}
}

func (w *Worker) handle(ctx context.Context, delivery amqp091.Delivery) {
	var msg amqp.ImportDocumentMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		log.Errorf("Dropping malformed import message: %v", err)
		w.nack(delivery, false)
		return
	}

	document, err := msg.Document.ToDocument()
	if err != nil {
		log.Errorf("Dropping import message with an invalid document for project %s: %v", msg.ProjectUid, err)
		w.nack(delivery, false)
		return
	}

	if err := w.process(ctx, msg, document); err != nil {
		if docimport.IsDocumentError(err) {
			log.Errorf("Dropping unimportable document for project %s: %v", msg.ProjectUid, err)
			w.nack(delivery, false)
			return
		}
		log.Errorf("Failed to import document for project %s: %v", msg.ProjectUid, err)
		// One redelivery, then the message is dropped instead of looping.
		w.nack(delivery, !delivery.Redelivered)
		return
	}

	if err := delivery.Ack(false); err != nil {
		log.Errorf("failed to ack import message: %v", err)
	}
}

func (w *Worker) process(ctx context.Context, msg amqp.ImportDocumentMessage, document docimport.ParsedDocument) error {
	sender, err := w.users.GetUser(ctx, msg.UserId)
	if err != nil {
		return fmt.Errorf("could not resolve sending user %s: %w", msg.UserId, err)
	}

	userCtx := user.WithUser(ctx, sender)
	report, err := w.importer.Import(userCtx, msg.ProjectUid, docimport.SourceQueue, document)
	if err != nil {
		return err
	}

	log.Infof("Imported %d lines for project %s (%d auto-linked, %d need review)",
		report.Imported(), msg.ProjectUid, report.AutoLinked, report.NeedsReview)
	return nil
}

func (w *Worker) nack(delivery amqp091.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		log.Errorf("failed to nack import message: %v", err)
	}
}
