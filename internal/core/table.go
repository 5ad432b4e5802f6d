package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"sync"
)

var (
	ErrInvalidPageSize  = errors.New("invalid page size")
	ErrInvalidSortField = errors.New("invalid sort field")
)

// PageSizes are the page sizes a table accepts.
var PageSizes = []int{10, 20, 50}

// pageWindow is how many page links are shown on each side of the current one.
const pageWindow = 3

type SortDir string

const (
	Asc  SortDir = "asc"
	Desc SortDir = "desc"
)

type Sort struct {
	Field string
	Dir   SortDir
}

// Filters are the optional criteria of a listing. Dates are YYYY-MM-DD.
type Filters struct {
	DateStart string
	DateEnd   string
	Category  string
	Search    string
}

func (f Filters) IsZero() bool { return f == Filters{} }

// ListQuery is the full parameter set of one remote listing.
type ListQuery struct {
	Filters  Filters
	Sort     Sort
	Page     int
	PageSize int
}

// DefaultListQuery sorts by date, newest first, ten rows per page.
func DefaultListQuery() ListQuery {
	return ListQuery{
		Sort:     Sort{Field: "date", Dir: Desc},
		Page:     1,
		PageSize: PageSizes[0],
	}
}

// Values renders the query in the parameter names of the remote API.
func (q ListQuery) Values() url.Values {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(q.PageSize))
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("order_by", q.Sort.Field)
	v.Set("order_dir", string(q.Sort.Dir))
	if q.Filters.Search != "" {
		v.Set("search", q.Filters.Search)
	}
	if q.Filters.DateStart != "" {
		v.Set("start_date", q.Filters.DateStart)
	}
	if q.Filters.DateEnd != "" {
		v.Set("end_date", q.Filters.DateEnd)
	}
	if q.Filters.Category != "" {
		v.Set("category", q.Filters.Category)
	}
	return v
}

// Fetcher loads one page of rows.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, q ListQuery) (Page[T], error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc[T any] func(ctx context.Context, q ListQuery) (Page[T], error)

func (f FetchFunc[T]) Fetch(ctx context.Context, q ListQuery) (Page[T], error) {
	return f(ctx, q)
}

// DeleteFunc deletes one row by id.
type DeleteFunc func(ctx context.Context, id ID) error

// Table is the state of a remote-backed listing. Every parameter change
// issues exactly one fetch. Fetches may overlap. A response is applied only
// when no newer fetch has started since it was issued, so the rows always
// reflect the latest query.
//
// The fetcher is passed to each operation so callers can bind it to the
// credentials of the current request.
type Table[T any] struct {
	mu         sync.Mutex
	query      ListQuery
	filtered   bool
	rows       []T
	total      int
	pageCount  int
	seq        uint64
	pending    int
	stale      int
	sortFields []string
}

// NewTable returns a table with the default query. When sortFields is not
// empty, SetSort only accepts those fields.
func NewTable[T any](sortFields ...string) *Table[T] {
	return &Table[T]{query: DefaultListQuery(), sortFields: sortFields}
}

// Reset returns the table to the default query and drops the rows.
// Responses of fetches issued before the reset are discarded.
func (t *Table[T]) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.query = DefaultListQuery()
	t.filtered = false
	t.rows = nil
	t.total = 0
	t.pageCount = 0
	t.seq++
}

// SubmitFilters replaces the filters, goes back to page 1 and fetches.
func (t *Table[T]) SubmitFilters(ctx context.Context, src Fetcher[T], f Filters) error {
	t.mu.Lock()
	t.query.Filters = f
	t.query.Page = 1
	t.filtered = true
	t.mu.Unlock()
	return t.Fetch(ctx, src)
}

// ResetFilters clears the filters, goes back to page 1 and fetches.
func (t *Table[T]) ResetFilters(ctx context.Context, src Fetcher[T]) error {
	t.mu.Lock()
	t.query.Filters = Filters{}
	t.query.Page = 1
	t.filtered = false
	t.mu.Unlock()
	return t.Fetch(ctx, src)
}

// SetSort flips the direction when field is the current sort field and
// sorts ascending by field otherwise.
func (t *Table[T]) SetSort(ctx context.Context, src Fetcher[T], field string) error {
	if len(t.sortFields) > 0 && !slices.Contains(t.sortFields, field) {
		return fmt.Errorf("%w: %q", ErrInvalidSortField, field)
	}
	t.mu.Lock()
	if t.query.Sort.Field == field {
		if t.query.Sort.Dir == Asc {
			t.query.Sort.Dir = Desc
		} else {
			t.query.Sort.Dir = Asc
		}
	} else {
		t.query.Sort = Sort{Field: field, Dir: Asc}
	}
	t.mu.Unlock()
	return t.Fetch(ctx, src)
}

// SetPage moves to page n. Pages outside [1, PageCount] and the current
// page are no-ops.
func (t *Table[T]) SetPage(ctx context.Context, src Fetcher[T], n int) error {
	t.mu.Lock()
	if n < 1 || n > t.pageCount || n == t.query.Page {
		t.mu.Unlock()
		return nil
	}
	t.query.Page = n
	t.mu.Unlock()
	return t.Fetch(ctx, src)
}

// SetPageSize changes the page size, goes back to page 1 and fetches.
func (t *Table[T]) SetPageSize(ctx context.Context, src Fetcher[T], n int) error {
	if !slices.Contains(PageSizes, n) {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, n)
	}
	t.mu.Lock()
	t.query.PageSize = n
	t.query.Page = 1
	t.mu.Unlock()
	return t.Fetch(ctx, src)
}

// Fetch loads the current query. Rows are replaced wholesale on success.
// On failure the error is returned as is and the rows stay unchanged.
func (t *Table[T]) Fetch(ctx context.Context, src Fetcher[T]) error {
	t.mu.Lock()
	t.seq++
	seq := t.seq
	q := t.query
	t.pending++
	t.mu.Unlock()

	page, err := src.Fetch(ctx, q)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending--
	if err != nil {
		return err
	}
	if seq != t.seq {
		t.stale++
		return nil
	}
	t.rows = page.Rows
	t.total = page.Meta.Total
	t.pageCount = pageCount(t.total, q.PageSize)
	return nil
}

// DeleteRow deletes a row and fetches again. The page index is not
// corrected when the deletion empties the last page.
func (t *Table[T]) DeleteRow(ctx context.Context, src Fetcher[T], del DeleteFunc, id ID) error {
	if err := del(ctx, id); err != nil {
		return err
	}
	return t.Fetch(ctx, src)
}

func pageCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// showing is the number of rows the given page holds: the page size on
// every page but the last, the remainder on the last one.
func showing(total, size, page int) int {
	pc := pageCount(total, size)
	switch {
	case pc == 0 || page < 1 || page > pc:
		return 0
	case page < pc:
		return size
	default:
		return total - size*(pc-1)
	}
}

func window(page, pc int) []int {
	if pc == 0 {
		return nil
	}
	start := max(1, page-pageWindow)
	end := min(pc, page+pageWindow)
	out := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		out = append(out, p)
	}
	return out
}

func (t *Table[T]) Query() ListQuery {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.query
}

func (t *Table[T]) PageCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pageCount
}

// Showing is X in "showing X of Y".
func (t *Table[T]) Showing() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return showing(t.total, t.query.PageSize, t.query.Page)
}

// PageWindow lists the page links around the current page.
func (t *Table[T]) PageWindow() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return window(t.query.Page, t.pageCount)
}

// StaleDropped counts responses discarded because a newer fetch had started.
func (t *Table[T]) StaleDropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stale
}

// TableView is a consistent copy of a table's state for rendering.
type TableView[T any] struct {
	Query     ListQuery
	Rows      []T
	Total     int
	PageCount int
	Showing   int
	Pages     []int
	Filtered  bool
	Loading   bool
	// Offset is the row number of the first row minus one.
	Offset int
}

func (v TableView[T]) HasPrev() bool { return v.Query.Page > 1 }
func (v TableView[T]) HasNext() bool { return v.Query.Page < v.PageCount }

func (t *Table[T]) Snapshot() TableView[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TableView[T]{
		Query:     t.query,
		Rows:      slices.Clone(t.rows),
		Total:     t.total,
		PageCount: t.pageCount,
		Showing:   showing(t.total, t.query.PageSize, t.query.Page),
		Pages:     window(t.query.Page, t.pageCount),
		Filtered:  t.filtered,
		Loading:   t.pending > 0,
		Offset:    (t.query.Page - 1) * t.query.PageSize,
	}
}
