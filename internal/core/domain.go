// Package core holds the transaction domain model and the two view-state
// controllers of the admin: the nested draft form and the paginated table.
package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CategoryKind is the Income/Expense classification. Its value is the
// transaction_category_id the remote API expects.
type CategoryKind int

const (
	Income  CategoryKind = 1
	Expense CategoryKind = 2
)

var ErrInvalidCategoryKind = errors.New("invalid category kind")

func (k CategoryKind) String() string {
	switch k {
	case Income:
		return "Income"
	case Expense:
		return "Expense"
	default:
		return fmt.Sprintf("CategoryKind(%d)", int(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k CategoryKind) Valid() bool {
	return k == Income || k == Expense
}

// ParseCategoryKind accepts the numeric id ("1", "2") or the name.
func ParseCategoryKind(s string) (CategoryKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "income":
		return Income, nil
	case "2", "expense":
		return Expense, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCategoryKind, s)
}

// CategoryKinds lists the kinds in display order.
func CategoryKinds() []CategoryKind {
	return []CategoryKind{Income, Expense}
}

// Amount is a decimal that travels over JSON as a bare number.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount { return Amount{Decimal: d} }

// ParseAmount parses a raw numeric string. An empty string yields zero.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{Decimal: decimal.Zero}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{Decimal: d}, nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	s := string(b)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	if strings.TrimSpace(s) == "" {
		a.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("amount %s: %w", string(b), err)
	}
	a.Decimal = d
	return nil
}

// ID is a server identifier that may arrive as a JSON number or string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	*id = ID(string(b))
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// Detail is one flat line item as the API stores it.
type Detail struct {
	CategoryID CategoryKind `json:"transaction_category_id"`
	Name       string       `json:"name"`
	ValueIDR   Amount       `json:"value_idr"`
}

// Record is a fetched transaction.
type Record struct {
	ID          ID       `json:"id,omitempty"`
	Code        string   `json:"code"`
	Description string   `json:"description"`
	RateEuro    Amount   `json:"rate_euro"`
	DatePaid    string   `json:"date_paid"`
	Details     []Detail `json:"details"`
}

// TransactionPayload is the body of create and update calls.
type TransactionPayload struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	RateEuro    Amount   `json:"rate_euro"`
	DatePaid    string   `json:"date_paid"`
	Details     []Detail `json:"details"`
}

// TransactionRow is one row of the transaction list. Each row is a detail
// joined with its parent transaction.
type TransactionRow struct {
	ID           ID     `json:"id"`
	DetailID     ID     `json:"detail_id"`
	Code         string `json:"code"`
	Description  string `json:"description"`
	RateEuro     Amount `json:"rate_euro"`
	DatePaid     string `json:"date_paid"`
	CategoryName string `json:"category_name"`
	Name         string `json:"name"`
	ValueIDR     Amount `json:"value_idr"`
}

// RecapRow is one aggregated row of the recap listing.
type RecapRow struct {
	Date     string `json:"date"`
	Category string `json:"category"`
	ValueIDR Amount `json:"value_idr"`
}

// Meta is the pagination block of list responses.
type Meta struct {
	Total int `json:"total"`
	Limit int `json:"limit"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

// Page is a list response.
type Page[T any] struct {
	Rows []T  `json:"data"`
	Meta Meta `json:"meta"`
}

// User is the authenticated account returned by login.
type User struct {
	ID    ID     `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// DisplayName falls back to the email when the name is empty.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// NormalizeNumeric keeps the raw numeric value of a user input: digits and
// at most one decimal point. A separator that repeats is a thousands
// separator ("5.000.000"). When both appear, the last one is the decimal
// separator. Any other character is dropped.
func NormalizeNumeric(s string) string {
	s = strings.TrimSpace(s)
	dots, commas := strings.Count(s, "."), strings.Count(s, ",")
	switch {
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case dots == 1 && commas == 1:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	}
	var b strings.Builder
	dot := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !dot:
			dot = true
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "." {
		return ""
	}
	return out
}
