package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"txadmin/internal/core"
)

// EventAction names what happened to a transaction.
type EventAction string

const (
	ActionCreated EventAction = "created"
	ActionUpdated EventAction = "updated"
	ActionDeleted EventAction = "deleted"
)

func (a EventAction) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return true
	}
	return false
}

var ErrInvalidEvent = errors.New("invalid transaction event")

// TransactionEvent is published after a successful write to the remote API.
// Delete events only carry the detail id of the deleted list row; list rows
// do not expose the full record.
type TransactionEvent struct {
	Action        EventAction   `json:"action"`
	TransactionID core.ID       `json:"transaction_id,omitempty"`
	DetailID      core.ID       `json:"detail_id,omitempty"`
	Code          string        `json:"code,omitempty"`
	DatePaid      string        `json:"date_paid,omitempty"`
	RateEuro      core.Amount   `json:"rate_euro"`
	Details       []core.Detail `json:"details,omitempty"`
	Actor         string        `json:"actor,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// NewTransactionEvent builds an event from the payload that was sent.
func NewTransactionEvent(action EventAction, id core.ID, p core.TransactionPayload, actor string) *TransactionEvent {
	return &TransactionEvent{
		Action:        action,
		TransactionID: id,
		Code:          p.Code,
		DatePaid:      p.DatePaid,
		RateEuro:      p.RateEuro,
		Details:       p.Details,
		Actor:         actor,
		Timestamp:     time.Now().UTC(),
	}
}

// NewDeleteEvent builds the event for a deleted list row.
func NewDeleteEvent(detailID core.ID, actor string) *TransactionEvent {
	return &TransactionEvent{
		Action:    ActionDeleted,
		DetailID:  detailID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
	}
}

func (e *TransactionEvent) Validate() error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEvent, e.Action)
	}
	if e.Action == ActionDeleted {
		if e.DetailID == "" {
			return fmt.Errorf("%w: missing detail id", ErrInvalidEvent)
		}
		return nil
	}
	if e.TransactionID == "" {
		return fmt.Errorf("%w: missing transaction id", ErrInvalidEvent)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates a message body.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var ev TransactionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
