package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txadmin/internal/core"
)

func TestFieldNames(t *testing.T) {
	assert.Equal(t, "item.g3.1.amount", itemFieldName("g3", 1, core.ItemAmount))
	assert.Equal(t, "kind.g3", kindFieldName("g3"))
}

func TestSyncDraft(t *testing.T) {
	d := core.NewDraft()
	g2 := d.AddGroup()
	d.AddLineItem(g2)

	SyncDraft(d, url.Values{
		"code":             {"  TX-1 "},
		"description":      {"<script>alert(1)</script>Gaji & bonus"},
		"rate_euro":        {"17.250,5"},
		"date_paid":        {"2024-01-02 10:00:00"},
		"item.g1.0.name":   {"Gaji"},
		"item.g1.0.amount": {"5.000.000"},
		"item.g2.1.name":   {"Sewa"},
		"item.g9.0.name":   {"unknown group"},
		"kind.g2":          {"Expense"},
	})

	assert.Equal(t, "TX-1", d.Code)
	assert.Equal(t, "Gaji & bonus", d.Description)
	assert.Equal(t, "17250.5", d.RateEuro)
	assert.Equal(t, "2024-01-02", d.DatePaid)

	g1, _ := d.Group("g1")
	assert.Equal(t, "Gaji", g1.Items[0].Name)
	assert.Equal(t, "5000000", g1.Items[0].Amount)

	g, _ := d.Group(g2)
	assert.Equal(t, "", g.Items[0].Name, "absent fields stay untouched")
	assert.Equal(t, "Sewa", g.Items[1].Name)
	assert.Equal(t, core.Income, g.Kind, "kinds change only through the kind operation")
}

func TestSyncDraftKeepsAbsentHeaderFields(t *testing.T) {
	d := core.NewDraft()
	d.SetField(core.FieldCode, "TX-1")

	SyncDraft(d, url.Values{"description": {"x"}})

	assert.Equal(t, "TX-1", d.Code)
	assert.Equal(t, "x", d.Description)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		name    string
		form    url.Values
		want    core.CategoryKind
		wantErr bool
	}{
		{"group field by name", url.Values{"kind.g1": {"Expense"}}, core.Expense, false},
		{"group field by id", url.Values{"kind.g1": {"1"}}, core.Income, false},
		{"plain field", url.Values{"kind": {"2"}}, core.Expense, false},
		{"group field wins", url.Values{"kind.g1": {"1"}, "kind": {"2"}}, core.Income, false},
		{"unknown kind", url.Values{"kind.g1": {"Transfer"}}, 0, true},
		{"missing", url.Values{}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKind(tt.form, "g1")
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrInvalidCategoryKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilters(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want core.Filters
	}{
		{
			name: "all fields",
			form: url.Values{"start_date": {"2024-01-01"}, "end_date": {"2024-01-31"}, "category": {"income"}, "search": {" gaji "}},
			want: core.Filters{DateStart: "2024-01-01", DateEnd: "2024-01-31", Category: "Income", Search: "gaji"},
		},
		{
			name: "malformed date dropped",
			form: url.Values{"start_date": {"01/02/2024"}, "end_date": {"2024-13-01"}},
			want: core.Filters{},
		},
		{
			name: "category by id",
			form: url.Values{"category": {"2"}},
			want: core.Filters{Category: "Expense"},
		},
		{
			name: "unknown category dropped",
			form: url.Values{"category": {"Transfer"}},
			want: core.Filters{},
		},
		{
			name: "markup stripped from search",
			form: url.Values{"search": {"<b>sewa</b>"}},
			want: core.Filters{Search: "sewa"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFilters(tt.form))
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		value   string
		want    int
		wantErr bool
	}{
		{"3", 3, false},
		{" 20 ", 20, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"x", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseInt(url.Values{"page": {tt.value}}, "page")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFormOrFail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Nil(t, ParseFormOrFail(req))
	assert.Equal(t, "1", req.PostForm.Get("a"))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := ParseFormOrFail(req)
	require.NotNil(t, resp)

	rr := httptest.NewRecorder()
	resp.Write(rr)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
