package http

import (
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"txadmin/internal/core"
)

var strictPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup and control characters from free text. The
// policy escapes entities; they are unescaped again because templates
// escape on output.
func sanitizeText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

var monthsID = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// formatDateID renders a date as "2 Januari 2024". Values that are not a
// date are returned unchanged.
func formatDateID(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%d %s %d", t.Day(), monthsID[t.Month()-1], t.Year())
}

// formatIDR renders an amount the Indonesian way: "." between thousands,
// "," before at most three decimals ("5.000.000", "17.250,5").
func formatIDR(a core.Amount) string {
	d := a.Decimal.Round(3)
	neg := d.IsNegative()
	s := d.Abs().String()
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	if frac = strings.TrimRight(frac, "0"); frac != "" {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return b.String()
}

// sortIndicator is the arrow shown next to the active sort column.
func sortIndicator(q core.ListQuery, field string) string {
	if q.Sort.Field != field {
		return ""
	}
	if q.Sort.Dir == core.Asc {
		return "▲"
	}
	return "▼"
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"idr":       formatIDR,
		"tanggal":   formatDateID,
		"itemField": itemFieldName,
		"kindField": kindFieldName,
		"kinds":     core.CategoryKinds,
		"sortIcon":  sortIndicator,
		"pageSizes": func() []int { return core.PageSizes },
		"rowNo":     func(offset, i int) int { return offset + i + 1 },
		"add":       func(a, b int) int { return a + b },
	}
}
