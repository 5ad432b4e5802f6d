package services

import (
	"encoding/csv"
	"fmt"
	"io"

	"txadmin/internal/core"
)

var recapHeader = []string{"No", "Tanggal", "Kategori", "Nilai (IDR)"}

// WriteRecapCSV writes one recap page. offset is the row number before the
// first row, so numbering matches the table on screen.
func WriteRecapCSV(w io.Writer, rows []core.RecapRow, offset int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(recapHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, r := range rows {
		rec := []string{
			fmt.Sprint(offset + i + 1),
			core.SanitizeCell(r.Date),
			core.SanitizeCell(r.Category),
			r.ValueIDR.String(),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
