package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"txadmin/internal/api"
	"txadmin/internal/core"
	"txadmin/internal/log"
	"txadmin/internal/session"
)

// draftView feeds the draft page and the draft-form partial.
type draftView struct {
	ID     string
	Title  string
	Draft  *core.Draft
	Errors map[string]string
}

func (v draftView) Edit() bool { return v.Draft.Mode == core.EditMode }

// Notification titles per draft mode.
var draftTitles = map[core.DraftMode]struct{ page, saved, failed string }{
	core.CreateMode: {"Input Data Transaksi", "Data transaksi berhasil disimpan!", "Gagal menyimpan data!"},
	core.EditMode:   {"Edit Data Transaksi", "Data transaksi berhasil diperbarui!", "Gagal update data!"},
}

func newDraftView(id string, st *draftState) draftView {
	return draftView{
		ID:     id,
		Title:  draftTitles[st.draft.Mode].page,
		Draft:  st.draft,
		Errors: st.errors,
	}
}

func (s *Server) handleDraftNew(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	id := uuid.NewString()
	d := core.NewDraft()
	s.views.putDraft(sess.ID, id, d)

	s.renderPage(w, r, "draft.html", pageData{
		Title:   draftTitles[core.CreateMode].page,
		Active:  "/transaction/add",
		Content: newDraftView(id, &draftState{draft: d}),
	})
}

// handleDraftEdit fetches the record and mounts an edit draft hydrated
// from it. A failed load goes back to the list.
func (s *Server) handleDraftEdit(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	recordID := core.ID(chi.URLParam(r, "id"))

	rec, err := s.client(sess).GetTransaction(r.Context(), recordID)
	if err != nil {
		if api.IsUnauthorized(err) {
			s.expireSession(w, r, sess)
			return
		}
		s.reqLog(r).ErrorContext(r.Context(), "Failed to load transaction",
			log.FieldTxID, recordID,
			log.FieldOperation, log.OpRead,
			log.FieldError, err)
		sess.AddFlash(session.FlashError, "Gagal memuat data transaksi", "")
		s.saveSession(w, r, sess)
		redirect(w, r, "/transaction/list")
		return
	}

	id := uuid.NewString()
	d := core.NewEditDraft(recordID, rec)
	s.views.putDraft(sess.ID, id, d)

	s.renderPage(w, r, "draft.html", pageData{
		Title:   draftTitles[core.EditMode].page,
		Active:  "/transaction/list",
		Content: newDraftView(id, &draftState{draft: d}),
	})
}

// draftOperation applies one structural edit after the form was synced.
type draftOperation func(d *core.Draft, r *http.Request) error

func groupParam(r *http.Request) core.LocalID {
	return core.LocalID(chi.URLParam(r, "group"))
}

func opAddGroup(d *core.Draft, _ *http.Request) error {
	d.AddGroup()
	return nil
}

func opRemoveGroup(d *core.Draft, r *http.Request) error {
	d.RemoveGroup(groupParam(r))
	return nil
}

func opSetKind(d *core.Draft, r *http.Request) error {
	g := groupParam(r)
	kind, err := ParseKind(r.PostForm, g)
	if err != nil {
		return err
	}
	d.SetGroupKind(g, kind)
	return nil
}

func opAddItem(d *core.Draft, r *http.Request) error {
	d.AddLineItem(groupParam(r))
	return nil
}

func opRemoveItem(d *core.Draft, r *http.Request) error {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return fmt.Errorf("invalid item index: %w", err)
	}
	d.RemoveLineItem(groupParam(r), index)
	return nil
}

// loadDraft finds the draft named in the URL. A draft that expired from
// the view state cannot be recovered; the user reloads the page.
func (s *Server) loadDraft(w http.ResponseWriter, r *http.Request, sess *session.Session) (string, *draftState, bool) {
	id := chi.URLParam(r, "draft")
	st, ok := s.views.draft(sess.ID, id)
	if !ok {
		s.reqLog(r).WarnContext(r.Context(), "Draft not found", log.FieldDraftID, id)
		NewHTMXResponse().
			Status(http.StatusGone).
			TriggerErrorNotification("Form kedaluwarsa", "Silakan muat ulang halaman").
			Write(w)
		return "", nil, false
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return "", nil, false
	}
	return id, st, true
}

// draftOp syncs the posted form into the draft, applies op and renders
// the form again.
func (s *Server) draftOp(op draftOperation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := currentSession(r)
		id, st, ok := s.loadDraft(w, r, sess)
		if !ok {
			return
		}

		st.mu.Lock()
		defer st.mu.Unlock()

		SyncDraft(st.draft, r.PostForm)
		if err := op(st.draft, r); err != nil {
			BadRequestError("Permintaan tidak valid").Write(w)
			return
		}
		s.renderPartial(w, r, NewHTMXResponse(), "draft-form", newDraftView(id, st))
	}
}

// handleDraftSave submits the draft. Success leaves the form for the list
// page; field errors from the API are rendered next to their inputs.
func (s *Server) handleDraftSave(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	id, st, ok := s.loadDraft(w, r, sess)
	if !ok {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	SyncDraft(st.draft, r.PostForm)
	titles := draftTitles[st.draft.Mode]

	rec, err := s.tx.SaveDraft(r.Context(), s.client(sess), st.draft, actor(sess))
	if err != nil {
		var ve *api.ValidationError
		if errors.As(err, &ve) {
			st.errors = ve.Fields
			resp := NewHTMXResponse().TriggerErrorNotification(titles.failed, apiMessage(err))
			s.renderPartial(w, r, resp, "draft-form", newDraftView(id, st))
			return
		}
		s.respondAPIError(w, r, sess, titles.failed, err)
		return
	}

	s.views.dropDraft(sess.ID, id)
	sess.AddFlash(session.FlashSuccess, titles.saved, "")
	s.saveSession(w, r, sess)

	savedID := rec.ID
	if savedID == "" {
		savedID = st.draft.RecordID
	}
	NewHTMXResponse().
		TriggerDraftSaved(st.draft.Mode.String(), savedID.String()).
		Redirect("/transaction/list").
		Write(w)
}
