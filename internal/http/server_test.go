package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txadmin/internal/api"
	"txadmin/internal/core"
	"txadmin/internal/log"
	"txadmin/internal/session"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "secret"
	testToken    = "token-admin"
)

// fakeAPI is a stand-in for the transaction REST API.
type fakeAPI struct {
	mu       sync.Mutex
	token    string
	expired  bool
	queries  []url.Values
	created  []core.TransactionPayload
	updated  map[string]core.TransactionPayload
	deleted  []string
	listRows []core.TransactionRow
}

func newFakeAPI() *fakeAPI {
	rows := make([]core.TransactionRow, 0, 3)
	for i := 1; i <= 3; i++ {
		rows = append(rows, core.TransactionRow{
			ID:           core.ID("1"),
			DetailID:     core.ID(strconv.Itoa(10 + i)),
			Code:         "TX-1",
			Description:  gofakeit.Sentence(3),
			RateEuro:     core.NewAmount(decimal.RequireFromString("17250.5")),
			DatePaid:     "2024-01-02",
			CategoryName: "Income",
			Name:         gofakeit.Word(),
			ValueIDR:     core.NewAmount(decimal.RequireFromString("5000000")),
		})
	}
	return &fakeAPI{token: testToken, updated: map[string]core.TransactionPayload{}, listRows: rows}
}

func (f *fakeAPI) expire() {
	f.mu.Lock()
	f.expired = true
	f.mu.Unlock()
}

func (f *fakeAPI) lastQuery() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return nil
	}
	return f.queries[len(f.queries)-1]
}

func (f *fakeAPI) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		expired, token := f.expired, f.token
		f.mu.Unlock()
		if expired || r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeAPI) handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var cred api.Credentials
		_ = json.NewDecoder(r.Body).Decode(&cred)
		if cred.Email != testEmail || cred.Password != testPassword {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Email atau password salah"})
			return
		}
		f.mu.Lock()
		token := f.token
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"token": token,
			"user":  map[string]any{"id": 1, "name": "Admin", "email": cred.Email},
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(f.auth)
		r.Get("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.queries = append(f.queries, r.URL.Query())
			rows := f.listRows
			f.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]any{
				"data": rows,
				"meta": map[string]int{"total": 25, "limit": 10, "page": 1, "pages": 3},
			})
		})
		r.Get("/api/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
				"code":        "TX-EDIT",
				"description": "Transaksi Agustus",
				"rate_euro":   17000,
				"date_paid":   "2024-08-01 00:00:00",
				"details": []map[string]any{
					{"transaction_category_id": 1, "name": "Gaji", "value_idr": 5000000},
					{"transaction_category_id": 2, "name": "Sewa", "value_idr": 1500000},
				},
			}})
		})
		r.Post("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
			var p core.TransactionPayload
			_ = json.NewDecoder(r.Body).Decode(&p)
			if p.Code == "" {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
					"error":   "validation",
					"message": "Data tidak valid",
					"data":    map[string]any{"code": "Kode wajib diisi"},
				})
				return
			}
			f.mu.Lock()
			f.created = append(f.created, p)
			f.mu.Unlock()
			writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"id": 42, "code": p.Code}})
		})
		r.Patch("/api/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
			var p core.TransactionPayload
			_ = json.NewDecoder(r.Body).Decode(&p)
			f.mu.Lock()
			f.updated[chi.URLParam(r, "id")] = p
			f.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]any{"message": "ok"})
		})
		r.Delete("/api/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.deleted = append(f.deleted, chi.URLParam(r, "id"))
			f.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]any{"message": "deleted"})
		})
		r.Get("/api/recap", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": []map[string]any{
					{"date": "2024-01-02", "category": "Income", "value_idr": 5000000},
					{"date": "2024-01-03", "category": "Expense", "value_idr": 1250000.5},
				},
				"meta": map[string]int{"total": 2, "limit": 10, "page": 1, "pages": 1},
			})
		})
	})
	return r
}

// testEnv drives the server like a browser: cookies are kept between
// requests.
type testEnv struct {
	t       *testing.T
	srv     *Server
	api     *fakeAPI
	cookies map[string]*http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := newFakeAPI()
	apiSrv := httptest.NewServer(fake.handler())
	t.Cleanup(apiSrv.Close)

	client, err := api.New(apiSrv.URL+"/api", api.WithTimeout(5*time.Second))
	require.NoError(t, err)
	sessions := session.NewManager(session.NewMemoryStore(time.Minute), session.Config{}, log.Discard())

	srv, err := NewServer(":0", Deps{API: client, Sessions: sessions}, Options{})
	require.NoError(t, err)
	t.Cleanup(srv.loginLimiter.Stop)

	return &testEnv{t: t, srv: srv, api: fake, cookies: map[string]*http.Cookie{}}
}

func (e *testEnv) do(method, path string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	e.t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	for _, c := range e.cookies {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)

	for _, c := range rr.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(e.cookies, c.Name)
			continue
		}
		e.cookies[c.Name] = c
	}
	return rr
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(http.MethodGet, path, nil, false)
}

func (e *testEnv) post(path string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	return e.do(http.MethodPost, path, form, true)
}

func (e *testEnv) login() {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/login", url.Values{"email": {testEmail}, "password": {testPassword}}, false)
	require.Equal(e.t, http.StatusSeeOther, rr.Code)
	require.Equal(e.t, "/dashboard", rr.Header().Get("Location"))
}

func triggers(t *testing.T, rr *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	raw := rr.Header().Get("HX-Trigger")
	require.NotEmpty(t, raw, "HX-Trigger header")
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

var draftIDPattern = regexp.MustCompile(`/drafts/([0-9a-f-]{36})/groups"`)

func draftID(t *testing.T, body string) string {
	t.Helper()
	m := draftIDPattern.FindStringSubmatch(body)
	require.Len(t, m, 2, "draft id in page")
	return m[1]
}

func TestHealthAndReady(t *testing.T) {
	e := newTestEnv(t)

	rr := e.get("/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)

	rr = e.get("/readyz")
	assert.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, "not_configured", body.Checks["sessions"])
	assert.Equal(t, "ok", body.Checks["templates"])
}

func TestProtectedPagesRequireLogin(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/dashboard", "/transaction/add", "/transaction/list", "/transaction/recap"} {
		rr := e.get(path)
		assert.Equal(t, http.StatusSeeOther, rr.Code, path)
		assert.Equal(t, "/login", rr.Header().Get("Location"), path)
	}

	rr := e.post("/transaction/list/refresh", nil)
	assert.Equal(t, "/login", rr.Header().Get("HX-Redirect"))

	rr = e.get("/login")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Silakan login terlebih dahulu")
}

func TestLoginValidation(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(http.MethodPost, "/login", url.Values{"email": {"not-an-email"}}, false)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Format email tidak valid")
	assert.Contains(t, body, "Password wajib diisi")
	assert.Contains(t, body, `value="not-an-email"`)
}

func TestLoginRejected(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(http.MethodPost, "/login", url.Values{"email": {testEmail}, "password": {"wrong"}}, false)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Login gagal!")
	assert.Contains(t, rr.Body.String(), "Email atau password salah")

	rr = e.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestLoginAndLogout(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	rr := e.get("/dashboard")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Login berhasil!")
	assert.Contains(t, rr.Body.String(), "Selamat datang di dashboard admin.")

	rr = e.get("/dashboard")
	assert.NotContains(t, rr.Body.String(), "Login berhasil!", "flash shown once")

	rr = e.get("/login")
	assert.Equal(t, http.StatusSeeOther, rr.Code, "logged in users skip the login page")

	rr = e.do(http.MethodPost, "/logout", url.Values{}, false)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))

	rr = e.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestDraftStructuralEdits(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	rr := e.get("/transaction/add")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Input Data Transaksi")
	assert.Contains(t, rr.Body.String(), `name="item.g1.0.name"`)
	id := draftID(t, rr.Body.String())
	base := "/drafts/" + id

	form := url.Values{
		"code":             {"TX-9"},
		"description":      {"<b>Bulan</b> Agustus"},
		"item.g1.0.name":   {"Gaji"},
		"item.g1.0.amount": {"5.000.000"},
	}
	rr = e.post(base+"/groups", form)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `name="item.g2.0.name"`)
	assert.Contains(t, body, `value="TX-9"`)
	assert.Contains(t, body, `value="5000000"`, "amount kept as raw number")
	assert.Contains(t, body, "Bulan Agustus")
	assert.NotContains(t, body, "<b>Bulan")

	rr = e.post(base+"/groups/g2/kind", url.Values{"kind.g2": {"Expense"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `value="Expense" selected`)

	rr = e.post(base+"/groups/g1/items", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `name="item.g1.1.name"`)

	rr = e.post(base+"/groups/g1/items/1/remove", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), `name="item.g1.1.name"`)

	rr = e.post(base+"/groups/g2/remove", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), `item.g2.`)
	assert.NotContains(t, rr.Body.String(), "Hapus kategori", "last group cannot be removed")

	rr = e.post(base+"/groups/g1/items/x/remove", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.post(base+"/groups/g1/kind", url.Values{"kind.g1": {"Transfer"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDraftSave(t *testing.T) {
	e := newTestEnv(t)
	e.login()
	id := draftID(t, e.get("/transaction/add").Body.String())
	base := "/drafts/" + id

	rr := e.post(base+"/save", url.Values{"item.g1.0.name": {"Gaji"}, "item.g1.0.amount": {"100"}})
	require.Equal(t, http.StatusOK, rr.Code, "field errors re-render the form")
	assert.Contains(t, rr.Body.String(), "Kode wajib diisi")
	assert.Contains(t, string(triggers(t, rr)["show-notification"]), "Gagal menyimpan data!")

	rr = e.post(base+"/save", url.Values{
		"code":             {"TX-NEW"},
		"description":      {"Transaksi"},
		"rate_euro":        {"17.250,5"},
		"date_paid":        {"2024-08-01"},
		"item.g1.0.name":   {"Gaji"},
		"item.g1.0.amount": {"5.000.000"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/transaction/list", rr.Header().Get("HX-Redirect"))
	assert.JSONEq(t, `{"mode":"create","id":"42"}`, string(triggers(t, rr)["draft:saved"]))

	require.Len(t, e.api.created, 1)
	p := e.api.created[0]
	assert.Equal(t, "TX-NEW", p.Code)
	assert.Equal(t, "17250.5", p.RateEuro.String())
	require.Len(t, p.Details, 1)
	assert.Equal(t, core.Income, p.Details[0].CategoryID)

	rr = e.post(base+"/groups", nil)
	assert.Equal(t, http.StatusGone, rr.Code, "saved drafts are discarded")

	rr = e.get("/transaction/list")
	assert.Contains(t, rr.Body.String(), "Data transaksi berhasil disimpan!")
}

func TestDraftEdit(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	rr := e.get("/transaction/edit/5")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Edit Data Transaksi")
	assert.Contains(t, body, `value="TX-EDIT"`)
	assert.Contains(t, body, `value="2024-08-01"`)
	assert.Contains(t, body, `value="Sewa"`)

	id := draftID(t, body)
	rr = e.post("/drafts/"+id+"/save", url.Values{"code": {"TX-EDIT-2"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"mode":"edit","id":"5"}`, string(triggers(t, rr)["draft:saved"]))
	assert.Equal(t, "TX-EDIT-2", e.api.updated["5"].Code)
	assert.Len(t, e.api.updated["5"].Details, 2)
}

func TestUnknownDraftIsGone(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	rr := e.post("/drafts/missing/groups", nil)
	assert.Equal(t, http.StatusGone, rr.Code)
	assert.Contains(t, string(triggers(t, rr)["show-notification"]), "Form kedaluwarsa")
}

func TestListTable(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	rr := e.get("/transaction/list")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "menampilkan 10 dari 25 data")
	assert.Contains(t, body, "17.250,5")
	assert.Contains(t, body, "5.000.000")
	assert.Contains(t, body, "2 Januari 2024")
	assert.Equal(t, "date", e.api.lastQuery().Get("order_by"))

	rr = e.post("/transaction/list/sort", url.Values{"field": {"description"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "description", e.api.lastQuery().Get("order_by"))
	assert.Equal(t, "asc", e.api.lastQuery().Get("order_dir"))
	assert.Contains(t, rr.Body.String(), "▲")

	rr = e.post("/transaction/list/sort", url.Values{"field": {"description"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "desc", e.api.lastQuery().Get("order_dir"))

	rr = e.post("/transaction/list/filter", url.Values{
		"start_date": {"2024-01-01"},
		"end_date":   {"garbage"},
		"category":   {"2"},
		"search":     {"gaji"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	q := e.api.lastQuery()
	assert.Equal(t, "2024-01-01", q.Get("start_date"))
	assert.Empty(t, q.Get("end_date"))
	assert.Equal(t, "Expense", q.Get("category"))
	assert.Equal(t, "gaji", q.Get("search"))
	assert.Contains(t, rr.Body.String(), "Reset Filter")

	rr = e.post("/transaction/list/page", url.Values{"page": {"2"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2", e.api.lastQuery().Get("page"))

	rr = e.post("/transaction/list/limit", url.Values{"limit": {"20"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "20", e.api.lastQuery().Get("limit"))
	assert.Equal(t, "1", e.api.lastQuery().Get("page"))

	rr = e.post("/transaction/list/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, e.api.lastQuery().Get("search"))
	assert.NotContains(t, rr.Body.String(), "Reset Filter")
}

func TestListTableResetsOnMount(t *testing.T) {
	e := newTestEnv(t)
	e.login()
	require.Equal(t, http.StatusOK, e.get("/transaction/list").Code)

	require.Equal(t, http.StatusOK, e.post("/transaction/list/filter", url.Values{
		"category": {"2"},
		"search":   {"gaji"},
	}).Code)
	require.Equal(t, http.StatusOK, e.post("/transaction/list/page", url.Values{"page": {"3"}}).Code)
	require.Equal(t, http.StatusOK, e.post("/transaction/list/sort", url.Values{"field": {"code"}}).Code)
	require.Equal(t, "code", e.api.lastQuery().Get("order_by"))

	require.Equal(t, http.StatusOK, e.get("/dashboard").Code)
	rr := e.get("/transaction/list")
	require.Equal(t, http.StatusOK, rr.Code)

	q := e.api.lastQuery()
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "date", q.Get("order_by"))
	assert.Equal(t, "desc", q.Get("order_dir"))
	assert.Empty(t, q.Get("search"))
	assert.Empty(t, q.Get("category"))
	assert.NotContains(t, rr.Body.String(), "Reset Filter")
}

func TestListTableRejectsBadInput(t *testing.T) {
	e := newTestEnv(t)
	e.login()
	e.get("/transaction/list")

	tests := []struct {
		name   string
		path   string
		form   url.Values
		status int
	}{
		{"unknown sort field", "/transaction/list/sort", url.Values{"field": {"password"}}, http.StatusBadRequest},
		{"page size not offered", "/transaction/list/limit", url.Values{"limit": {"7"}}, http.StatusBadRequest},
		{"page not a number", "/transaction/list/page", url.Values{"page": {"x"}}, http.StatusBadRequest},
		{"unknown action", "/transaction/list/explode", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.post(tt.path, tt.form)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestListDelete(t *testing.T) {
	e := newTestEnv(t)
	e.login()
	e.get("/transaction/list")

	rr := e.post("/transaction/list/delete/11", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, string(triggers(t, rr)["show-notification"]), "Data transaksi berhasil dihapus!")
	assert.Equal(t, []string{"11"}, e.api.deleted)
	assert.Contains(t, rr.Body.String(), `id="data-table"`)
}

func TestRecapTableAndExport(t *testing.T) {
	e := newTestEnv(t)
	e.login()

	rr := e.get("/transaction/recap")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Rekap Transaksi")
	assert.Contains(t, rr.Body.String(), "1.250.000,5")

	rr = e.post("/transaction/recap/sort", url.Values{"field": {"category"}})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.get("/transaction/recap/export.csv")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "rekap-transaksi-")
	assert.Contains(t, rr.Body.String(), "Expense")
}

func TestExpiredTokenEndsSession(t *testing.T) {
	e := newTestEnv(t)
	e.login()
	require.Equal(t, http.StatusOK, e.get("/transaction/list").Code)
	require.Equal(t, http.StatusOK, e.get("/transaction/add").Code)

	e.api.expire()

	rr := e.post("/transaction/list/sort", url.Values{"field": {"code"}})
	assert.Equal(t, "/login", rr.Header().Get("HX-Redirect"))

	rr = e.get("/login")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Session expired")

	rr = e.get("/transaction/list")
	assert.Equal(t, http.StatusSeeOther, rr.Code, "token is gone")

	assert.Zero(t, e.srv.views.size(), "views of the session are dropped")
}

func TestExpiredTokenOnPageLoad(t *testing.T) {
	e := newTestEnv(t)
	e.login()
	e.api.expire()

	rr := e.get("/transaction/list")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestExpiredTokenClaimEndsSession(t *testing.T) {
	e := newTestEnv(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	e.api.mu.Lock()
	e.api.token = token
	e.api.mu.Unlock()

	e.login()

	rr := e.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))

	rr = e.get("/login")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Session expired")
	assert.NotContains(t, rr.Body.String(), "Akses ditolak")
}

func TestLoginRateLimited(t *testing.T) {
	e := newTestEnv(t)

	var last *httptest.ResponseRecorder
	for range 10 {
		last = e.do(http.MethodPost, "/login", url.Values{"email": {testEmail}, "password": {"wrong"}}, false)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Contains(t, last.Body.String(), "Terlalu banyak percobaan login")
}
