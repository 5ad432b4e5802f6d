// This file turns posted forms into draft edits and table parameters.

package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"txadmin/internal/core"
)

// Form field names of the draft partial. Item fields carry the group's
// local id and the item index so a whole-form post can be replayed onto
// the draft.
func itemFieldName(group core.LocalID, index int, field string) string {
	return fmt.Sprintf("item.%s.%d.%s", group, index, field)
}

func kindFieldName(group core.LocalID) string {
	return "kind." + string(group)
}

var headerFields = []string{core.FieldCode, core.FieldDescription, core.FieldRateEuro, core.FieldDatePaid}

// SyncDraft copies every posted header and item field into d. Fields that
// are absent from the form are left untouched. Group kinds are not synced:
// they change only through the kind operation.
func SyncDraft(d *core.Draft, form url.Values) {
	for _, f := range headerFields {
		vals, ok := form[f]
		if !ok || len(vals) == 0 {
			continue
		}
		v := vals[0]
		if f == core.FieldCode || f == core.FieldDescription {
			v = sanitizeText(v)
		}
		d.SetField(f, v)
	}
	for _, g := range d.Groups {
		for i := range g.Items {
			if vals, ok := form[itemFieldName(g.ID, i, core.ItemName)]; ok && len(vals) > 0 {
				d.SetLineItemField(g.ID, i, core.ItemName, sanitizeText(vals[0]))
			}
			if vals, ok := form[itemFieldName(g.ID, i, core.ItemAmount)]; ok && len(vals) > 0 {
				d.SetLineItemField(g.ID, i, core.ItemAmount, vals[0])
			}
		}
	}
}

// ParseKind reads the kind select of a group. A plain "kind" field is
// accepted too so the operation can be driven without the whole form.
func ParseKind(form url.Values, group core.LocalID) (core.CategoryKind, error) {
	v := form.Get(kindFieldName(group))
	if v == "" {
		v = form.Get("kind")
	}
	return core.ParseCategoryKind(v)
}

// ParseFilters reads the filter bar of a table. Malformed dates and
// unknown categories are dropped rather than sent to the API.
func ParseFilters(form url.Values) core.Filters {
	f := core.Filters{
		DateStart: parseDate(form.Get("start_date")),
		DateEnd:   parseDate(form.Get("end_date")),
		Search:    sanitizeText(form.Get("search")),
	}
	if k, err := core.ParseCategoryKind(form.Get("category")); err == nil {
		f.Category = k.String()
	}
	return f
}

// parseDate returns s when it is a YYYY-MM-DD date and "" otherwise.
func parseDate(s string) string {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return ""
	}
	return s
}

// parseInt reads a positive integer field.
func parseInt(form url.Values, key string) (int, error) {
	v := strings.TrimSpace(form.Get(key))
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid %s %d: must be positive", key, n)
	}
	return n, nil
}

// ParseFormOrFail parses the request form and returns an error response on
// failure, nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Format permintaan tidak valid")
	}
	return nil
}
