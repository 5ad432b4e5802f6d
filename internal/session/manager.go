package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"txadmin/internal/core"
	"txadmin/internal/log"
)

const DefaultCookieName = "txadmin_session"

type Config struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager ties sessions to browser cookies.
type Manager struct {
	store  Store
	cfg    Config
	logger *log.Logger
	now    func() time.Time
}

func NewManager(store Store, cfg Config, logger *log.Logger) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &Manager{
		store:  store,
		cfg:    cfg,
		logger: logger.WithComponent(log.ComponentSession),
		now:    time.Now,
	}
}

// Load returns the session of the request. A missing, unknown or expired
// cookie yields a fresh anonymous session that is not stored until saved.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil || c.Value == "" {
		return m.fresh(), nil
	}
	s, err := m.store.Get(r.Context(), c.Value)
	if errors.Is(err, ErrNotFound) {
		return m.fresh(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s.Expired(m.now()) {
		_ = m.store.Delete(r.Context(), s.ID)
		return m.fresh(), nil
	}
	return s, nil
}

func (m *Manager) fresh() *Session {
	now := m.now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
}

// Save stores s and refreshes the cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.setCookie(w, s.ID, s.ExpiresAt)
	return nil
}

// Start stores the token of a successful login. The session id is rotated.
// The session outlives the token's exp claim so that an expired token is
// reported as such rather than as a missing login.
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, s *Session, token string, user core.User) error {
	if s.ID != "" {
		_ = m.store.Delete(ctx, s.ID)
	}
	now := m.now()
	s.ID = uuid.NewString()
	s.Token = token
	s.User = user
	s.CreatedAt = now
	s.ExpiresAt = now.Add(m.cfg.TTL)
	s.TokenExpiresAt = time.Time{}
	if exp, ok := TokenExpiry(token); ok {
		s.TokenExpiresAt = exp
	}
	m.logger.InfoContext(ctx, "session started",
		log.FieldSessionID, shortID(s.ID),
		log.FieldUser, user.DisplayName())
	return m.Save(ctx, w, s)
}

// ClearToken drops the credentials and keeps the session for flashes. It
// is what a 401 from the API leads to.
func (m *Manager) ClearToken(ctx context.Context, w http.ResponseWriter, s *Session) error {
	s.Token = ""
	s.User = core.User{}
	s.TokenExpiresAt = time.Time{}
	return m.Save(ctx, w, s)
}

// Destroy removes the session and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Authenticated reports whether s holds a usable token now.
func (m *Manager) Authenticated(s *Session) bool {
	return s.Authenticated(m.now())
}

// Purge removes expired sessions from the store.
func (m *Manager) Purge(ctx context.Context) (int, error) {
	return m.store.PurgeExpired(ctx, m.now())
}

func (m *Manager) setCookie(w http.ResponseWriter, id string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    id,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// shortID keeps session ids out of logs in full.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
