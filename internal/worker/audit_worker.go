// Package worker turns transaction events into audit sheet rows.
package worker

import (
	"context"
	"fmt"

	"txadmin/internal/amqp"
	"txadmin/internal/log"
	"txadmin/internal/sheets"
)

// Observer records how many rows each append wrote.
type Observer interface {
	AuditRowsAppended(outcome string, n int)
}

type nopObserver struct{}

func (nopObserver) AuditRowsAppended(string, int) {}

// AuditWorker mirrors transaction events into an audit sheet.
type AuditWorker struct {
	sheets   sheets.AuditWriter
	observer Observer
	logger   *log.Logger
}

func NewAuditWorker(w sheets.AuditWriter, observer Observer, logger *log.Logger) *AuditWorker {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &AuditWorker{
		sheets:   w,
		observer: observer,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent appends the rows of one event. Its signature matches
// amqp.Handler: an error requeues the message.
func (w *AuditWorker) HandleEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	rows := RowsFromEvent(ev)
	w.logger.InfoContext(ctx, "Processing transaction event",
		log.FieldEventAction, ev.Action,
		log.FieldTxID, ev.TransactionID,
		log.FieldDetailID, ev.DetailID,
		log.FieldDetailCount, len(ev.Details))

	rng, err := w.sheets.AppendAuditRows(ctx, rows)
	if err != nil {
		w.observer.AuditRowsAppended("failure", len(rows))
		return fmt.Errorf("append audit rows for %s %s: %w", ev.Action, eventRef(ev), err)
	}
	w.observer.AuditRowsAppended("success", len(rows))
	w.logger.InfoContext(ctx, "Transaction event mirrored",
		log.FieldTxID, ev.TransactionID,
		log.FieldDetailID, ev.DetailID,
		log.FieldSheetsRange, rng)
	return nil
}

// eventRef names the record an event is about: the detail id for deletes,
// the transaction id otherwise.
func eventRef(ev *amqp.TransactionEvent) string {
	if ev.Action == amqp.ActionDeleted {
		return "detail " + ev.DetailID.String()
	}
	return ev.TransactionID.String()
}

// RowsFromEvent yields one row per detail, or a single row when the event
// has none (deletes).
func RowsFromEvent(ev *amqp.TransactionEvent) []sheets.AuditRow {
	base := sheets.AuditRow{
		Timestamp:     ev.Timestamp,
		Action:        string(ev.Action),
		TransactionID: ev.TransactionID.String(),
		DetailID:      ev.DetailID.String(),
		Code:          ev.Code,
		DatePaid:      ev.DatePaid,
		Actor:         ev.Actor,
	}
	if ev.Action != amqp.ActionDeleted {
		base.RateEuro = ev.RateEuro.String()
	}
	if len(ev.Details) == 0 {
		return []sheets.AuditRow{base}
	}
	rows := make([]sheets.AuditRow, 0, len(ev.Details))
	for _, d := range ev.Details {
		r := base
		r.Category = d.CategoryID.String()
		r.Name = d.Name
		r.ValueIDR = d.ValueIDR.String()
		rows = append(rows, r)
	}
	return rows
}
