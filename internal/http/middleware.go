package http

import (
	"errors"
	"net/http"

	"txadmin/internal/api"
	"txadmin/internal/core"
	"txadmin/internal/log"
	"txadmin/internal/session"
)

// withSession loads the browser session into the request context.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Load(r)
		if err != nil {
			s.reqLog(r).ErrorContext(r.Context(), "Failed to load session",
				log.FieldError, err,
				"error_type", log.ErrorTypeDatabase)
			InternalServerError("Terjadi kesalahan").Write(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), sess)))
	})
}

// requireAuth lets through sessions holding a usable token. A token that
// passed its own exp claim ends the session like a 401 would; no token at
// all is an access denial.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := currentSession(r)
		if s.sessions.Authenticated(sess) {
			next.ServeHTTP(w, r)
			return
		}
		if sess.Token != "" {
			s.expireSession(w, r, sess)
			return
		}
		sess.AddFlash(session.FlashWarning, "Akses ditolak", "Silakan login terlebih dahulu")
		s.saveSession(w, r, sess)
		redirect(w, r, "/login")
	})
}

// currentSession returns the session withSession stored. Handlers behind
// withSession always have one.
func currentSession(r *http.Request) *session.Session {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		return &session.Session{}
	}
	return sess
}

// client returns the API client bound to the session's token.
func (s *Server) client(sess *session.Session) *api.Client {
	return s.api.WithToken(sess.Token)
}

func actor(sess *session.Session) string {
	return sess.User.DisplayName()
}

// reqLog is the server logger carrying the request id the trace middleware
// assigned.
func (s *Server) reqLog(r *http.Request) *log.Logger {
	return log.FromContext(r.Context(), s.logger)
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := s.sessions.Save(r.Context(), w, sess); err != nil {
		s.reqLog(r).ErrorContext(r.Context(), "Failed to save session", log.FieldError, err)
	}
}

// expireSession is the single reaction to an authorization failure: the
// token is cleared, the session's views are dropped and the user is sent
// to the login page with a warning.
func (s *Server) expireSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	dropped := s.views.drop(sess.ID)
	sess.AddFlash(session.FlashWarning, "Session expired", "")
	if err := s.sessions.ClearToken(r.Context(), w, sess); err != nil {
		s.reqLog(r).ErrorContext(r.Context(), "Failed to clear session token", log.FieldError, err)
	}
	s.metrics.SessionExpired()
	s.reqLog(r).InfoContext(r.Context(), "Session expired",
		log.FieldPath, r.URL.Path,
		"views_dropped", dropped)
	redirect(w, r, "/login")
}

// respondAPIError renders a failed remote call. Authorization failures
// expire the session; anything else becomes an error notification titled
// title with the server message, or a generic one.
func (s *Server) respondAPIError(w http.ResponseWriter, r *http.Request, sess *session.Session, title string, err error) {
	if api.IsUnauthorized(err) {
		s.expireSession(w, r, sess)
		return
	}
	s.reqLog(r).ErrorContext(r.Context(), "API call failed",
		log.FieldPath, r.URL.Path,
		log.FieldError, err,
		"error_type", log.ErrorTypeNetwork)
	NewHTMXResponse().
		Status(http.StatusNoContent).
		TriggerErrorNotification(title, apiMessage(err)).
		Write(w)
}

// apiMessage is the text shown to the user for a failed call.
func apiMessage(err error) string {
	var ve *api.ValidationError
	var se *api.ServerError
	switch {
	case errors.As(err, &ve) && ve.Message != "":
		return ve.Message
	case errors.As(err, &se) && se.Message != "":
		return se.Message
	}
	return "Terjadi kesalahan"
}

// pageData is what every full page template receives.
type pageData struct {
	Title   string
	Active  string
	User    core.User
	Flashes []session.Flash
	Content any
}
