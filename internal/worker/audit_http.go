package worker

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"txadmin/internal/log"
	"txadmin/internal/sheets"
)

type auditRowJSON struct {
	Timestamp     string `json:"timestamp"`
	Action        string `json:"action"`
	TransactionID string `json:"transaction_id,omitempty"`
	Code          string `json:"code,omitempty"`
	DatePaid      string `json:"date_paid,omitempty"`
	RateEuro      string `json:"rate_euro,omitempty"`
	Category      string `json:"category,omitempty"`
	Name          string `json:"name,omitempty"`
	ValueIDR      string `json:"value_idr,omitempty"`
	Actor         string `json:"actor,omitempty"`
	DetailID      string `json:"detail_id,omitempty"`
}

// AuditRoutes mounts GET /audit/{year}, which lists the mirrored rows of
// one year's sheet.
func AuditRoutes(r chi.Router, reader sheets.AuditReader, logger *log.Logger) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentWorker)

	r.Get("/audit/{year}", func(w http.ResponseWriter, req *http.Request) {
		year, err := strconv.Atoi(chi.URLParam(req, "year"))
		if err != nil || year < 1970 || year > 9999 {
			http.Error(w, "invalid year", http.StatusBadRequest)
			return
		}
		rows, err := reader.ListAuditRows(req.Context(), year)
		if err != nil {
			logger.ErrorContext(req.Context(), "Failed to list audit rows", "year", year, "error", err)
			http.Error(w, "failed to list audit rows", http.StatusBadGateway)
			return
		}

		out := make([]auditRowJSON, 0, len(rows))
		for _, row := range rows {
			out = append(out, auditRowJSON{
				Timestamp:     row.Timestamp.UTC().Format(time.RFC3339),
				Action:        row.Action,
				TransactionID: row.TransactionID,
				Code:          row.Code,
				DatePaid:      row.DatePaid,
				RateEuro:      row.RateEuro,
				Category:      row.Category,
				Name:          row.Name,
				ValueIDR:      row.ValueIDR,
				Actor:         row.Actor,
				DetailID:      row.DetailID,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"year": year, "data": out})
	})
}
