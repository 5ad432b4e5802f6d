package sheets

import (
	"context"
	"time"
)

// AuditRow is one line of the audit sheet. A delete event produces a
// single row with only the deleted row's DetailID.
type AuditRow struct {
	Timestamp     time.Time
	Action        string
	TransactionID string
	Code          string
	DatePaid      string
	RateEuro      string
	Category      string
	Name          string
	ValueIDR      string
	Actor         string
	DetailID      string
}

// AuditHeader names the columns in the order Values writes them.
var AuditHeader = []string{
	"Timestamp", "Action", "Transaction ID", "Code", "Date Paid",
	"Rate EUR", "Category", "Name", "Value IDR", "Actor", "Detail ID",
}

// Ports for outbound adapters.
type (
	AuditWriter interface {
		// AppendAuditRows appends rows after the last filled row and returns
		// the range that was written.
		AppendAuditRows(ctx context.Context, rows []AuditRow) (updatedRange string, err error)
	}

	AuditReader interface {
		ListAuditRows(ctx context.Context, year int) ([]AuditRow, error)
	}
)
