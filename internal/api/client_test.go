package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txadmin/internal/core"
)

type recordedCall struct {
	method string
	path   string
	query  string
	auth   string
	body   string
}

type recorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *recorder) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(b))
		r.mu.Lock()
		r.calls = append(r.calls, recordedCall{
			method: req.Method,
			path:   req.URL.Path,
			query:  req.URL.RawQuery,
			auth:   req.Header.Get("Authorization"),
			body:   string(b),
		})
		r.mu.Unlock()
		h(w, req)
	}
}

func (r *recorder) last() recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(rec.wrap(h))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL + "/api")
	require.NoError(t, err)
	return c, rec
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("/relative")
	assert.Error(t, err)
}

func TestWithTokenSendsBearer(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"data": []any{}, "meta": map[string]int{"total": 0}})
	})

	_, err := c.ListTransactions(context.Background(), core.DefaultListQuery())
	require.NoError(t, err)
	assert.Empty(t, rec.last().auth, "base client has no credentials")

	authed := c.WithToken("abc")
	_, err = authed.ListTransactions(context.Background(), core.DefaultListQuery())
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", rec.last().auth)

	again := authed.WithToken("def")
	_, err = again.ListTransactions(context.Background(), core.DefaultListQuery())
	require.NoError(t, err)
	assert.Equal(t, "Bearer def", rec.last().auth)
	assert.False(t, c.HasToken())
}

func TestListTransactions(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{
			"data": [{"id": 1, "detail_id": 10, "code": "TX-1", "description": "d",
			          "rate_euro": 17000, "date_paid": "2024-01-02", "category_name": "Income",
			          "name": "Salary", "value_idr": 5000000}],
			"meta": {"total": 21, "limit": 10, "page": 2, "pages": 3}
		}`)
	})

	q := core.DefaultListQuery()
	q.Page = 2
	q.Filters.Search = "sal"
	page, err := c.WithToken("t").ListTransactions(context.Background(), q)
	require.NoError(t, err)

	call := rec.last()
	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, "/api/transactions", call.path)
	assert.Contains(t, call.query, "page=2")
	assert.Contains(t, call.query, "search=sal")
	assert.Contains(t, call.query, "order_by=date")

	require.Len(t, page.Rows, 1)
	assert.Equal(t, core.ID("10"), page.Rows[0].DetailID)
	assert.Equal(t, 21, page.Meta.Total)
}

func TestGetTransaction(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data": {"code": "TX", "description": "x", "rate_euro": "17000.50",
			"date_paid": "2024-01-02 00:00:00",
			"details": [{"transaction_category_id": 2, "name": "Rent", "value_idr": 300}]}}`)
	})

	got, err := c.WithToken("t").GetTransaction(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "/api/transactions/5", rec.last().path)
	assert.Equal(t, core.ID("5"), got.ID)
	require.Len(t, got.Details, 1)
	assert.Equal(t, core.Expense, got.Details[0].CategoryID)
	assert.True(t, got.RateEuro.Equal(decimal.RequireFromString("17000.5")))
}

func TestCreateAndUpdateSendNumbers(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"id": 9, "code": "TX"}})
	})
	p := core.TransactionPayload{
		Code:     "TX",
		RateEuro: core.NewAmount(decimal.NewFromInt(17000)),
		DatePaid: "2024-01-02",
		Details: []core.Detail{
			{CategoryID: core.Income, Name: "Salary", ValueIDR: core.NewAmount(decimal.NewFromInt(5000000))},
		},
	}

	created, err := c.WithToken("t").CreateTransaction(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, core.ID("9"), created.ID)
	call := rec.last()
	assert.Equal(t, http.MethodPost, call.method)
	assert.JSONEq(t, `{"code":"TX","description":"","rate_euro":17000,"date_paid":"2024-01-02",
		"details":[{"transaction_category_id":1,"name":"Salary","value_idr":5000000}]}`, call.body)

	_, err = c.WithToken("t").UpdateTransaction(context.Background(), "9", p)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, rec.last().method)
	assert.Equal(t, "/api/transactions/9", rec.last().path)
}

func TestDeleteTransaction(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.WithToken("t").DeleteTransaction(context.Background(), "77"))
	assert.Equal(t, http.MethodDelete, rec.last().method)
	assert.Equal(t, "/api/transactions/77", rec.last().path)
}

func TestUnauthorizedOnEveryEndpoint(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
	})
	authed := c.WithToken("stale")
	ctx := context.Background()
	q := core.DefaultListQuery()

	calls := map[string]func() error{
		"list":   func() error { _, err := authed.ListTransactions(ctx, q); return err },
		"recap":  func() error { _, err := authed.ListRecap(ctx, q); return err },
		"get":    func() error { _, err := authed.GetTransaction(ctx, "1"); return err },
		"create": func() error { _, err := authed.CreateTransaction(ctx, core.TransactionPayload{}); return err },
		"update": func() error { _, err := authed.UpdateTransaction(ctx, "1", core.TransactionPayload{}); return err },
		"delete": func() error { return authed.DeleteTransaction(ctx, "1") },
	}
	for name, call := range calls {
		err := call()
		assert.ErrorIs(t, err, ErrUnauthorized, name)
		assert.True(t, IsUnauthorized(err), name)
		var ae *AuthorizationError
		require.True(t, errors.As(err, &ae), name)
		assert.Equal(t, "token expired", ae.Message)
	}
}

func TestValidationError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "validation",
			"message": "Data tidak valid",
			"data": map[string]any{
				"code":           "Kode wajib diisi",
				"details.0.name": []string{"Nama wajib diisi", "Nama terlalu pendek"},
			},
		})
	})

	_, err := c.WithToken("t").CreateTransaction(context.Background(), core.TransactionPayload{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Data tidak valid", ve.Message)
	assert.Equal(t, "Kode wajib diisi", ve.Field("code"))
	assert.Equal(t, "Nama wajib diisi, Nama terlalu pendek", ve.Field("details.0.name"))
	assert.False(t, IsUnauthorized(err))
}

func TestServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "db down"})
	})
	_, err := c.WithToken("t").ListRecap(context.Background(), core.DefaultListQuery())
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.Status)
	assert.Equal(t, "db down", se.Message)
}

func TestTransportFailureIsServerError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, WithTimeout(time.Second))
	require.NoError(t, err)
	_, err = c.ListTransactions(context.Background(), core.DefaultListQuery())
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Zero(t, se.Status)
}

func TestLogin(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var cred Credentials
		_ = json.NewDecoder(r.Body).Decode(&cred)
		if cred.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Email atau password salah"})
			return
		}
		writeJSON(w, 200, map[string]any{"token": "jwt", "user": map[string]any{"id": 1, "name": "Admin", "email": cred.Email}})
	})

	res, err := c.Login(context.Background(), Credentials{Email: "a@b.co", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "jwt", res.Token)
	assert.Equal(t, "Admin", res.User.DisplayName())
	assert.Equal(t, "/api/login", rec.last().path)
	assert.Empty(t, rec.last().auth)

	_, err = c.Login(context.Background(), Credentials{Email: "a@b.co", Password: "nope"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

type countingObserver struct {
	mu     sync.Mutex
	seen   []string
	status []int
}

func (o *countingObserver) ObserveAPI(method, endpoint string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, method+" "+endpoint)
	o.status = append(o.status, status)
}

func TestObserverUsesRouteTemplates(t *testing.T) {
	obs := &countingObserver{}
	rec := &recorder{}
	srv := httptest.NewServer(rec.wrap(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"data": map[string]any{"code": "x"}})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithObserver(obs))
	require.NoError(t, err)
	_, err = c.GetTransaction(context.Background(), "123")
	require.NoError(t, err)

	assert.Equal(t, []string{"GET /transactions/{id}"}, obs.seen)
	assert.Equal(t, []int{200}, obs.status)
}
