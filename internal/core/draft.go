package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DraftMode tells whether a draft creates a new transaction or edits a
// fetched one.
type DraftMode int

const (
	CreateMode DraftMode = iota
	EditMode
)

func (m DraftMode) String() string {
	if m == EditMode {
		return "edit"
	}
	return "create"
}

// LocalID identifies a group while the draft is being edited. It is minted
// by the draft and never sent to the API.
type LocalID string

// Header field names accepted by SetField.
const (
	FieldCode        = "code"
	FieldDescription = "description"
	FieldRateEuro    = "rate_euro"
	FieldDatePaid    = "date_paid"
)

// Line item field names accepted by SetLineItemField.
const (
	ItemName   = "name"
	ItemAmount = "amount"
)

// LineItem is one named amount inside a group. Amount holds the raw numeric
// value; empty means not entered. KindRef is the category the item was
// stored with, nil for items added in create mode.
type LineItem struct {
	Name    string
	Amount  string
	KindRef *CategoryKind
}

// CategoryGroup is a set of line items sharing one kind.
type CategoryGroup struct {
	ID          LocalID
	Kind        CategoryKind
	KindChanged bool
	Items       []LineItem
}

// Draft is the server-side state of the nested transaction form. Groups and
// their items never drop below one entry.
type Draft struct {
	Mode        DraftMode
	RecordID    ID
	Code        string
	Description string
	RateEuro    string
	DatePaid    string
	Groups      []CategoryGroup

	next int
}

// NewDraft returns a create-mode draft with one Income group holding one
// empty item.
func NewDraft() *Draft {
	d := &Draft{Mode: CreateMode}
	d.AddGroup()
	return d
}

// NewEditDraft returns a draft hydrated from a fetched record.
func NewEditDraft(id ID, rec Record) *Draft {
	d := &Draft{}
	d.Hydrate(id, rec)
	return d
}

func (d *Draft) mint() LocalID {
	d.next++
	return LocalID(fmt.Sprintf("g%d", d.next))
}

func (d *Draft) group(id LocalID) *CategoryGroup {
	for i := range d.Groups {
		if d.Groups[i].ID == id {
			return &d.Groups[i]
		}
	}
	return nil
}

// Group returns a copy of the group with the given id.
func (d *Draft) Group(id LocalID) (CategoryGroup, bool) {
	g := d.group(id)
	if g == nil {
		return CategoryGroup{}, false
	}
	return *g, true
}

// AddGroup appends an Income group with one empty item and returns its id.
func (d *Draft) AddGroup() LocalID {
	g := CategoryGroup{ID: d.mint(), Kind: Income}
	g.Items = []LineItem{d.newItem(Income)}
	d.Groups = append(d.Groups, g)
	return g.ID
}

func (d *Draft) newItem(kind CategoryKind) LineItem {
	if d.Mode == EditMode {
		k := kind
		return LineItem{KindRef: &k}
	}
	return LineItem{}
}

// RemoveGroup removes a group unless it is the last one.
func (d *Draft) RemoveGroup(id LocalID) {
	if len(d.Groups) <= 1 {
		return
	}
	for i := range d.Groups {
		if d.Groups[i].ID == id {
			d.Groups = append(d.Groups[:i], d.Groups[i+1:]...)
			return
		}
	}
}

// SetGroupKind changes the kind of a group. Item kind refs are left alone;
// Serialize resolves them.
func (d *Draft) SetGroupKind(id LocalID, kind CategoryKind) {
	g := d.group(id)
	if g == nil || !kind.Valid() || g.Kind == kind {
		return
	}
	g.Kind = kind
	g.KindChanged = true
}

// AddLineItem appends an empty item to a group. In edit mode the item is
// tagged with the group's current kind.
func (d *Draft) AddLineItem(id LocalID) {
	g := d.group(id)
	if g == nil {
		return
	}
	g.Items = append(g.Items, d.newItem(g.Kind))
}

// RemoveLineItem removes an item unless it is the last one of its group.
func (d *Draft) RemoveLineItem(id LocalID, index int) {
	g := d.group(id)
	if g == nil || len(g.Items) <= 1 || index < 0 || index >= len(g.Items) {
		return
	}
	g.Items = append(g.Items[:index], g.Items[index+1:]...)
}

// SetLineItemField updates the name or amount of an item in place.
func (d *Draft) SetLineItemField(id LocalID, index int, field, value string) {
	g := d.group(id)
	if g == nil || index < 0 || index >= len(g.Items) {
		return
	}
	switch field {
	case ItemName:
		g.Items[index].Name = value
	case ItemAmount:
		g.Items[index].Amount = NormalizeNumeric(value)
	}
}

// SetField updates a header field. Unknown fields are ignored.
func (d *Draft) SetField(field, value string) {
	switch field {
	case FieldCode:
		d.Code = value
	case FieldDescription:
		d.Description = value
	case FieldRateEuro:
		d.RateEuro = NormalizeNumeric(value)
	case FieldDatePaid:
		d.DatePaid = datePart(value)
	}
}

// ItemCount is the number of line items across all groups.
func (d *Draft) ItemCount() int {
	n := 0
	for _, g := range d.Groups {
		n += len(g.Items)
	}
	return n
}

// Hydrate replaces the draft with a fetched record in edit mode. Details
// are grouped per category id in ascending id order, items keep record
// order and their own kind ref. The id counter keeps running so ids are
// never reused.
func (d *Draft) Hydrate(id ID, rec Record) {
	d.Mode = EditMode
	d.RecordID = id
	d.Code = rec.Code
	d.Description = rec.Description
	d.RateEuro = decimalInput(rec.RateEuro.Decimal)
	d.DatePaid = datePart(rec.DatePaid)
	d.Groups = nil

	byKind := make(map[CategoryKind][]LineItem)
	var kinds []CategoryKind
	for _, det := range rec.Details {
		k := det.CategoryID
		if _, ok := byKind[k]; !ok {
			kinds = append(kinds, k)
		}
		ref := k
		byKind[k] = append(byKind[k], LineItem{
			Name:    det.Name,
			Amount:  decimalInput(det.ValueIDR.Decimal),
			KindRef: &ref,
		})
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		d.Groups = append(d.Groups, CategoryGroup{ID: d.mint(), Kind: k, Items: byKind[k]})
	}
	if len(d.Groups) == 0 {
		d.AddGroup()
	}
}

// Serialize flattens the draft into the API payload. In create mode every
// item takes its group's kind and items with an empty name or amount are
// dropped. In edit mode every item is sent with its own kind ref, unless
// the group kind was changed, in which case the group kind wins.
func (d *Draft) Serialize() TransactionPayload {
	p := TransactionPayload{
		Code:        d.Code,
		Description: d.Description,
		RateEuro:    amountOrZero(d.RateEuro),
		DatePaid:    d.DatePaid,
		Details:     make([]Detail, 0, d.ItemCount()),
	}
	for _, g := range d.Groups {
		for _, it := range g.Items {
			kind := g.Kind
			if d.Mode == CreateMode {
				if strings.TrimSpace(it.Name) == "" || it.Amount == "" {
					continue
				}
			} else if it.KindRef != nil && !g.KindChanged {
				kind = *it.KindRef
			}
			p.Details = append(p.Details, Detail{
				CategoryID: kind,
				Name:       it.Name,
				ValueIDR:   amountOrZero(it.Amount),
			})
		}
	}
	return p
}

func amountOrZero(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		return Amount{Decimal: decimal.Zero}
	}
	return a
}

func decimalInput(d decimal.Decimal) string {
	if d.IsZero() {
		return "0"
	}
	return d.String()
}

// datePart cuts a datetime to its date ("2024-01-02 00:00:00" becomes
// "2024-01-02").
func datePart(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " T"); i > 0 {
		return s[:i]
	}
	return s
}
