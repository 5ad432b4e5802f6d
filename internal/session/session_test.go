package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txadmin/internal/core"
	"txadmin/internal/log"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func requestWithCookie(rec *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := TokenExpiry(signedToken(t, exp))
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = TokenExpiry("opaque-token")
	assert.False(t, ok)
}

func TestAuthenticated(t *testing.T) {
	now := time.Now()
	var nilSession *Session
	assert.False(t, nilSession.Authenticated(now))
	assert.False(t, (&Session{}).Authenticated(now))
	assert.True(t, (&Session{Token: "x"}).Authenticated(now))
	assert.False(t, (&Session{Token: "x", TokenExpiresAt: now.Add(-time.Second)}).Authenticated(now))
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	m := NewManager(store, Config{TTL: time.Hour}, log.Discard())

	s, err := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.False(t, m.Authenticated(s))
	anonID := s.ID

	user := core.User{Name: gofakeit.Name(), Email: gofakeit.Email()}
	tokenExp := time.Now().Add(30 * time.Minute)
	rec := httptest.NewRecorder()
	require.NoError(t, m.Start(ctx, rec, s, signedToken(t, tokenExp), user))
	assert.NotEqual(t, anonID, s.ID, "login rotates the session id")
	assert.WithinDuration(t, tokenExp, s.TokenExpiresAt, time.Second)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.ExpiresAt, time.Second, "session keeps its own TTL")

	loaded, err := m.Load(requestWithCookie(rec))
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.True(t, m.Authenticated(loaded))
	assert.Equal(t, user.Email, loaded.User.Email)

	loaded.AddFlash(FlashWarning, "Session expired", "")
	rec2 := httptest.NewRecorder()
	require.NoError(t, m.ClearToken(ctx, rec2, loaded))

	again, err := m.Load(requestWithCookie(rec2))
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID)
	assert.False(t, m.Authenticated(again))
	flashes := again.PopFlashes()
	require.Len(t, flashes, 1)
	assert.Equal(t, "Session expired", flashes[0].Title)
	assert.Empty(t, again.Flashes)

	rec3 := httptest.NewRecorder()
	require.NoError(t, m.Destroy(ctx, rec3, again))
	_, err = store.Get(ctx, again.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadUnknownCookie(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Minute), Config{}, log.Discard())
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "forged"})

	s, err := m.Load(r)
	require.NoError(t, err)
	assert.NotEqual(t, "forged", s.ID)
}

func TestLoadExpiredSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	m := NewManager(store, Config{TTL: time.Hour}, log.Discard())
	now := time.Now()
	m.now = func() time.Time { return now }

	s := m.fresh()
	s.Token = "t"
	require.NoError(t, store.Save(ctx, s))

	m.now = func() time.Time { return now.Add(2 * time.Hour) }
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: s.ID})
	loaded, err := m.Load(r)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, loaded.ID)
	assert.Empty(t, loaded.Token)
}

func TestSessionOutlivesTokenExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(time.Minute), Config{TTL: time.Hour}, log.Discard())
	now := time.Now()
	m.now = func() time.Time { return now }

	s := m.fresh()
	rec := httptest.NewRecorder()
	require.NoError(t, m.Start(ctx, rec, s, signedToken(t, now.Add(10*time.Minute)), core.User{Email: "a@example.com"}))

	m.now = func() time.Time { return now.Add(20 * time.Minute) }
	loaded, err := m.Load(requestWithCookie(rec))
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.NotEmpty(t, loaded.Token, "the stale token is still there to be expired")
	assert.False(t, m.Authenticated(loaded))
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	s := &Session{ID: "a", Token: "t", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save(ctx, s))

	s.Token = "mutated"
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "t", got.Token)
	assert.Equal(t, 1, store.Len())
}
