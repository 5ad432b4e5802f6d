package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"txadmin/internal/api"
	"txadmin/internal/core"
	"txadmin/internal/log"
	"txadmin/internal/services"
	"txadmin/internal/session"
)

// tableConfig describes one paginated view: where its state lives, how it
// fetches and how it renders.
type tableConfig[T any] struct {
	view    string
	title   string
	path    string
	page    string
	partial string
	table   func(sessionID string) *core.Table[T]
	fetcher func(c *api.Client) core.Fetcher[T]
}

// tablePage feeds the table pages and partials.
type tablePage[T any] struct {
	Path string
	View core.TableView[T]
}

func (s *Server) listTable() tableConfig[core.TransactionRow] {
	return tableConfig[core.TransactionRow]{
		view:    viewList,
		title:   "List Data Transaksi",
		path:    "/transaction/list",
		page:    "list.html",
		partial: "list-table",
		table:   s.views.list,
		fetcher: listFetcher,
	}
}

func (s *Server) recapTable() tableConfig[core.RecapRow] {
	return tableConfig[core.RecapRow]{
		view:    viewRecap,
		title:   "Rekap Transaksi",
		path:    "/transaction/recap",
		page:    "recap.html",
		partial: "recap-table",
		table:   s.views.recap,
		fetcher: recapFetcher,
	}
}

func listFetcher(c *api.Client) core.Fetcher[core.TransactionRow] {
	return core.FetchFunc[core.TransactionRow](c.ListTransactions)
}

func recapFetcher(c *api.Client) core.Fetcher[core.RecapRow] {
	return core.FetchFunc[core.RecapRow](c.ListRecap)
}

// runTableOp runs op and reports the responses it caused to be dropped as
// stale.
func runTableOp[T any](s *Server, view string, t *core.Table[T], op func() error) error {
	before := t.StaleDropped()
	err := op()
	s.metrics.StaleResponses(view, t.StaleDropped()-before)
	return err
}

// mountTable resets the table to the default query and renders the full
// page after one fetch. A failed fetch still renders the empty table.
func mountTable[T any](s *Server, tc tableConfig[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := currentSession(r)
		t := tc.table(sess.ID)
		src := tc.fetcher(s.client(sess))
		data := pageData{Title: tc.title, Active: tc.path}

		t.Reset()
		err := runTableOp(s, tc.view, t, func() error { return t.Fetch(r.Context(), src) })
		if err != nil {
			if api.IsUnauthorized(err) {
				s.expireSession(w, r, sess)
				return
			}
			s.reqLog(r).ErrorContext(r.Context(), "Failed to load table",
				log.FieldView, tc.view,
				log.FieldOperation, log.OpList,
				log.FieldError, err)
			data.Flashes = append(data.Flashes, session.Flash{
				Kind:    session.FlashError,
				Title:   "Gagal memuat data",
				Message: apiMessage(err),
			})
		}

		data.Content = tablePage[T]{Path: tc.path, View: t.Snapshot()}
		s.renderPage(w, r, tc.page, data)
	}
}

// tableAction applies one table operation (filter, reset, sort, page,
// limit or refresh) and renders the table partial.
func tableAction[T any](s *Server, tc tableConfig[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if resp := ParseFormOrFail(r); resp != nil {
			resp.Write(w)
			return
		}
		sess := currentSession(r)
		t := tc.table(sess.ID)
		src := tc.fetcher(s.client(sess))
		ctx := r.Context()
		form := r.PostForm

		var op func() error
		switch action := chi.URLParam(r, "action"); action {
		case "filter":
			op = func() error { return t.SubmitFilters(ctx, src, ParseFilters(form)) }
		case "reset":
			op = func() error { return t.ResetFilters(ctx, src) }
		case "sort":
			op = func() error { return t.SetSort(ctx, src, form.Get("field")) }
		case "page":
			n, err := parseInt(form, "page")
			if err != nil {
				BadRequestError("Halaman tidak valid").Write(w)
				return
			}
			op = func() error { return t.SetPage(ctx, src, n) }
		case "limit":
			n, err := parseInt(form, "limit")
			if err != nil {
				BadRequestError("Limit tidak valid").Write(w)
				return
			}
			op = func() error { return t.SetPageSize(ctx, src, n) }
		case "refresh":
			op = func() error { return t.Fetch(ctx, src) }
		default:
			NotFoundError(fmt.Sprintf("Aksi tidak dikenal: %s", action)).Write(w)
			return
		}

		err := runTableOp(s, tc.view, t, op)
		switch {
		case errors.Is(err, core.ErrInvalidSortField), errors.Is(err, core.ErrInvalidPageSize):
			BadRequestError("Parameter tidak valid").Write(w)
			return
		case err != nil:
			s.respondAPIError(w, r, sess, "Gagal memuat data", err)
			return
		}
		s.renderPartial(w, r, NewHTMXResponse(), tc.partial, tablePage[T]{Path: tc.path, View: t.Snapshot()})
	}
}

// handleListDelete deletes the transaction behind a list row, then
// re-fetches the current page.
func (s *Server) handleListDelete(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	id := core.ID(chi.URLParam(r, "id"))
	tc := s.listTable()
	t := tc.table(sess.ID)
	c := s.client(sess)

	del := func(ctx context.Context, id core.ID) error {
		return s.tx.DeleteRow(ctx, c, id, actor(sess))
	}
	err := runTableOp(s, tc.view, t, func() error { return t.DeleteRow(r.Context(), tc.fetcher(c), del, id) })
	if err != nil {
		s.respondAPIError(w, r, sess, "Gagal menghapus data!", err)
		return
	}

	resp := NewHTMXResponse().TriggerSuccessNotification("Data transaksi berhasil dihapus!")
	s.renderPartial(w, r, resp, tc.partial, tablePage[core.TransactionRow]{Path: tc.path, View: t.Snapshot()})
}

// handleRecapExport downloads the current recap page as CSV.
func (s *Server) handleRecapExport(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	tc := s.recapTable()
	t := tc.table(sess.ID)
	src := tc.fetcher(s.client(sess))

	if err := runTableOp(s, tc.view, t, func() error { return t.Fetch(r.Context(), src) }); err != nil {
		if api.IsUnauthorized(err) {
			s.expireSession(w, r, sess)
			return
		}
		s.reqLog(r).ErrorContext(r.Context(), "Failed to load recap for export", log.FieldError, err)
		sess.AddFlash(session.FlashError, "Gagal mengunduh rekap", apiMessage(err))
		s.saveSession(w, r, sess)
		redirect(w, r, tc.path)
		return
	}

	v := t.Snapshot()
	var buf bytes.Buffer
	if err := services.WriteRecapCSV(&buf, v.Rows, v.Offset); err != nil {
		s.reqLog(r).ErrorContext(r.Context(), "Failed to write recap CSV", log.FieldError, err)
		InternalServerError("Terjadi kesalahan").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="rekap-transaksi-%s-p%d.csv"`, time.Now().Format("20060102"), v.Query.Page))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
