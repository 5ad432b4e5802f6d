// Package session keeps the server-side session of a browser: the API
// token, the logged-in user and pending flash messages.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"txadmin/internal/core"
)

var ErrNotFound = errors.New("session not found")

// Flash kinds, matching the notification variants of the UI.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashWarning = "warning"
	FlashInfo    = "info"
)

type Flash struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

type Session struct {
	ID        string
	Token     string
	User      core.User
	Flashes   []Flash
	CreatedAt time.Time
	ExpiresAt time.Time
	// TokenExpiresAt is the exp claim of Token, zero when the token has none.
	TokenExpiresAt time.Time
}

// Authenticated reports whether the session holds a token that has not
// passed its own expiry.
func (s *Session) Authenticated(now time.Time) bool {
	if s == nil || s.Token == "" {
		return false
	}
	return s.TokenExpiresAt.IsZero() || now.Before(s.TokenExpiresAt)
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func (s *Session) AddFlash(kind, title, message string) {
	s.Flashes = append(s.Flashes, Flash{Kind: kind, Title: title, Message: message})
}

// PopFlashes returns the pending flashes and clears them.
func (s *Session) PopFlashes() []Flash {
	out := s.Flashes
	s.Flashes = nil
	return out
}

// Clone returns a deep copy so stores never share mutable state with
// handlers.
func (s *Session) Clone() *Session {
	cp := *s
	if s.Flashes != nil {
		cp.Flashes = append([]Flash(nil), s.Flashes...)
	}
	return &cp
}

// Store persists sessions by id.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// PurgeExpired drops sessions past their expiry and returns how many.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// TokenExpiry reads the exp claim of a JWT without verifying it. The remote
// API stays the authority on the token; this only lets the session end
// early instead of waiting for a 401. Tokens that are not JWTs have no
// known expiry.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

type ctxKey struct{}

func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok
}
