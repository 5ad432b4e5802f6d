// Package services orchestrates writes to the remote transaction API and
// the change events that follow them.
package services

import (
	"context"
	"fmt"

	"txadmin/internal/amqp"
	"txadmin/internal/core"
	"txadmin/internal/log"
)

// TransactionAPI is the token-bound slice of the API client the service
// writes through. Handlers pass the client bound to the caller's session.
type TransactionAPI interface {
	CreateTransaction(ctx context.Context, p core.TransactionPayload) (core.Record, error)
	UpdateTransaction(ctx context.Context, id core.ID, p core.TransactionPayload) (core.Record, error)
	DeleteTransaction(ctx context.Context, id core.ID) error
}

// Observer receives write outcomes; *metrics.Metrics satisfies it.
type Observer interface {
	DraftSubmitted(mode, outcome string)
	EventPublished(action, outcome string)
}

type nopObserver struct{}

func (nopObserver) DraftSubmitted(string, string) {}
func (nopObserver) EventPublished(string, string) {}

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// TransactionService saves drafts and deletes rows, then announces the change.
type TransactionService struct {
	publisher amqp.Publisher
	observer  Observer
	logger    *log.Logger
	sl        *log.StructuredLogger
}

func NewTransactionService(publisher amqp.Publisher, observer Observer, logger *log.Logger) *TransactionService {
	if publisher == nil {
		publisher = amqp.NoopPublisher{}
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentDraft)
	return &TransactionService{
		publisher: publisher,
		observer:  observer,
		logger:    logger,
		sl:        log.NewStructuredLogger(logger),
	}
}

// SaveDraft serializes d and creates or updates it depending on its mode.
// API errors come back wrapped so errors.Is and errors.As still see them.
func (s *TransactionService) SaveDraft(ctx context.Context, tx TransactionAPI, d *core.Draft, actor string) (core.Record, error) {
	p := d.Serialize()
	mode := d.Mode.String()

	var (
		rec    core.Record
		err    error
		action amqp.EventAction
	)
	switch d.Mode {
	case core.EditMode:
		action = amqp.ActionUpdated
		rec, err = tx.UpdateTransaction(ctx, d.RecordID, p)
		if err != nil {
			err = fmt.Errorf("update transaction %s: %w", d.RecordID, err)
		}
	default:
		action = amqp.ActionCreated
		rec, err = tx.CreateTransaction(ctx, p)
		if err != nil {
			err = fmt.Errorf("create transaction: %w", err)
		}
	}
	if err != nil {
		s.observer.DraftSubmitted(mode, OutcomeFailure)
		return core.Record{}, err
	}
	s.observer.DraftSubmitted(mode, OutcomeSuccess)

	id := rec.ID
	if id == "" {
		id = d.RecordID
	}
	s.sl.LogTransactionSaved(ctx, mode, id.String(), p.Code, len(p.Details))

	if id == "" {
		s.logger.WarnContext(ctx, "API returned no transaction id, skipping event", log.FieldTxCode, p.Code)
		s.observer.EventPublished(string(action), OutcomeSkipped)
		return rec, nil
	}
	s.publish(ctx, amqp.NewTransactionEvent(action, id, p, actor))
	return rec, nil
}

// DeleteRow deletes the list row with the given detail id. The remote
// endpoint is addressed by the row's detail id, not its transaction id.
func (s *TransactionService) DeleteRow(ctx context.Context, tx TransactionAPI, detailID core.ID, actor string) error {
	if err := tx.DeleteTransaction(ctx, detailID); err != nil {
		return fmt.Errorf("delete transaction detail %s: %w", detailID, err)
	}
	s.logger.InfoContext(ctx, "Transaction deleted", log.FieldDetailID, detailID)
	s.publish(ctx, amqp.NewDeleteEvent(detailID, actor))
	return nil
}

// publish never fails the caller: the write already happened remotely.
func (s *TransactionService) publish(ctx context.Context, ev *amqp.TransactionEvent) {
	if err := s.publisher.PublishTransactionEvent(ctx, ev); err != nil {
		fields := log.NewFields()
		fields[log.FieldEventAction] = string(ev.Action)
		if ev.TransactionID != "" {
			fields[log.FieldTxID] = ev.TransactionID.String()
		}
		if ev.DetailID != "" {
			fields[log.FieldDetailID] = ev.DetailID.String()
		}
		s.sl.LogError(ctx, "Failed to publish transaction event", err, log.ComponentAMQP, log.OpPublish, fields)
		s.observer.EventPublished(string(ev.Action), OutcomeFailure)
		return
	}
	s.observer.EventPublished(string(ev.Action), OutcomeSuccess)
}

// Close releases the publisher.
func (s *TransactionService) Close() error {
	if err := s.publisher.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}
	return nil
}
