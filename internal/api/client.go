// Package api is the client of the remote transaction API.
//
// The bearer token is never looked up implicitly: a Client made by New
// carries no credentials and WithToken returns a copy bound to one token.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"txadmin/internal/core"
	"txadmin/internal/log"
)

// DefaultTimeout bounds every call when no http.Client is supplied.
const DefaultTimeout = 15 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// Observer receives one call per remote request. status is 0 when the
// request failed before a response arrived.
type Observer interface {
	ObserveAPI(method, endpoint string, status int, d time.Duration)
}

type authTransport struct {
	token string
	base  http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

type Client struct {
	baseURL  *url.URL
	http     *http.Client
	token    string
	logger   *log.Logger
	observer Observer
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentAPI) }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New returns an unauthenticated client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithToken returns a copy of c that sends token as a bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if at, ok := base.(*authTransport); ok {
		base = at.base
	}
	hc := *c.http
	hc.Transport = &authTransport{token: token, base: base}
	cp.http = &hc
	cp.token = token
	return &cp
}

// HasToken reports whether the client carries credentials.
func (c *Client) HasToken() bool { return c.token != "" }

func (c *Client) buildRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		buf = bytes.NewReader(b)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends the request and decodes a 2xx body into out when out is not
// nil. endpoint is the path template used for metrics and logs.
func (c *Client) do(req *http.Request, endpoint string, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(req.Method, endpoint, 0, start)
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.ErrorContext(req.Context(), "api request failed",
			log.FieldMethod, req.Method,
			log.FieldAPIEndpoint, endpoint,
			log.FieldError, err)
		return &ServerError{Err: err}
	}
	defer resp.Body.Close()
	c.observe(req.Method, endpoint, resp.StatusCode, start)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &ServerError{Status: resp.StatusCode, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := classify(resp.StatusCode, body)
		c.logger.WarnContext(req.Context(), "api request rejected",
			log.NewFields().
				WithAPICall(endpoint, resp.StatusCode).
				WithError(apiErr).
				ToSlice()...)
		return apiErr
	}

	c.logger.DebugContext(req.Context(), "api request completed",
		log.NewFields().WithAPICall(endpoint, resp.StatusCode).ToSlice()...)

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ServerError{Status: resp.StatusCode, Err: fmt.Errorf("decode %s response: %w", endpoint, err)}
	}
	return nil
}

func (c *Client) observe(method, endpoint string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveAPI(method, endpoint, status, time.Since(start))
	}
}

func (c *Client) call(ctx context.Context, method, path, endpoint string, query url.Values, body, out any) error {
	req, err := c.buildRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	return c.do(req, endpoint, out)
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// ListTransactions returns one page of transaction rows.
func (c *Client) ListTransactions(ctx context.Context, q core.ListQuery) (core.Page[core.TransactionRow], error) {
	var page core.Page[core.TransactionRow]
	err := c.call(ctx, http.MethodGet, "/transactions", "/transactions", q.Values(), nil, &page)
	return page, err
}

// ListRecap returns one page of recap rows.
func (c *Client) ListRecap(ctx context.Context, q core.ListQuery) (core.Page[core.RecapRow], error) {
	var page core.Page[core.RecapRow]
	err := c.call(ctx, http.MethodGet, "/recap", "/recap", q.Values(), nil, &page)
	return page, err
}

func (c *Client) GetTransaction(ctx context.Context, id core.ID) (core.Record, error) {
	var env envelope[core.Record]
	err := c.call(ctx, http.MethodGet, "/transactions/"+url.PathEscape(id.String()), "/transactions/{id}", nil, nil, &env)
	if err != nil {
		return core.Record{}, err
	}
	if env.Data.ID == "" {
		env.Data.ID = id
	}
	return env.Data, nil
}

func (c *Client) CreateTransaction(ctx context.Context, p core.TransactionPayload) (core.Record, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodPost, "/transactions", "/transactions", nil, p, &raw); err != nil {
		return core.Record{}, err
	}
	return decodeRecord(raw, p), nil
}

func (c *Client) UpdateTransaction(ctx context.Context, id core.ID, p core.TransactionPayload) (core.Record, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodPatch, "/transactions/"+url.PathEscape(id.String()), "/transactions/{id}", nil, p, &raw); err != nil {
		return core.Record{}, err
	}
	rec := decodeRecord(raw, p)
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}

func (c *Client) DeleteTransaction(ctx context.Context, id core.ID) error {
	return c.call(ctx, http.MethodDelete, "/transactions/"+url.PathEscape(id.String()), "/transactions/{id}", nil, nil, nil)
}

// decodeRecord reads the created or updated record. The API wraps it in
// data on some versions and returns it bare on others; when neither shape
// fits, the submitted payload stands in.
func decodeRecord(raw json.RawMessage, p core.TransactionPayload) core.Record {
	fallback := core.Record{
		Code:        p.Code,
		Description: p.Description,
		RateEuro:    p.RateEuro,
		DatePaid:    p.DatePaid,
		Details:     p.Details,
	}
	if len(raw) == 0 {
		return fallback
	}
	var env envelope[core.Record]
	if err := json.Unmarshal(raw, &env); err == nil && (env.Data.ID != "" || env.Data.Code != "") {
		return env.Data
	}
	var rec core.Record
	if err := json.Unmarshal(raw, &rec); err == nil && (rec.ID != "" || rec.Code != "") {
		return rec
	}
	return fallback
}

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token string    `json:"token"`
	User  core.User `json:"user"`
}

// ErrNoToken is returned when login succeeds without a token in the body.
var ErrNoToken = errors.New("api: login response carried no token")

func (c *Client) Login(ctx context.Context, cred Credentials) (LoginResult, error) {
	var res LoginResult
	if err := c.call(ctx, http.MethodPost, "/login", "/login", nil, cred, &res); err != nil {
		return LoginResult{}, err
	}
	if res.Token == "" {
		return LoginResult{}, ErrNoToken
	}
	return res, nil
}
