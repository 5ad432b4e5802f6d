package http

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"txadmin/internal/api"
	"txadmin/internal/log"
	"txadmin/internal/session"
)

// Login outcomes, as counted by the login_attempts metric.
const (
	loginSuccess     = "success"
	loginFailure     = "failure"
	loginInvalid     = "invalid"
	loginRateLimited = "rate_limited"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type loginView struct {
	Email  string
	Errors map[string]string
}

var loginMessages = map[string]string{
	"Email.required":    "Email wajib diisi",
	"Email.email":       "Format email tidak valid",
	"Password.required": "Password wajib diisi",
}

// validateCredentials returns per-field messages keyed like the API's
// validation errors.
func validateCredentials(c api.Credentials) map[string]string {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"email": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		key := "email"
		if fe.Field() == "Password" {
			key = "password"
		}
		msg, ok := loginMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = "Nilai tidak valid"
		}
		out[key] = msg
	}
	return out
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.sessions.Authenticated(currentSession(r)) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.renderPage(w, r, "login.html", pageData{Title: "Login", Content: loginView{}})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	sess := currentSession(r)
	cred := api.Credentials{
		Email:    sanitizeText(r.PostForm.Get("email")),
		Password: r.PostForm.Get("password"),
	}
	view := loginView{Email: cred.Email}

	if errs := validateCredentials(cred); len(errs) > 0 {
		s.metrics.LoginAttempt(loginInvalid)
		view.Errors = errs
		s.renderPageStatus(w, r, http.StatusUnprocessableEntity, "login.html", pageData{Title: "Login", Content: view})
		return
	}

	res, err := s.api.Login(r.Context(), cred)
	if err != nil {
		s.metrics.LoginAttempt(loginFailure)
		s.reqLog(r).WarnContext(r.Context(), "Login failed",
			log.FieldOperation, log.OpLogin,
			log.FieldError, err,
			"error_type", log.ErrorTypeAuth)

		status := http.StatusBadGateway
		var ve *api.ValidationError
		switch {
		case errors.As(err, &ve):
			status = http.StatusUnprocessableEntity
			view.Errors = ve.Fields
		case api.IsUnauthorized(err):
			status = http.StatusUnauthorized
		}
		s.renderPageStatus(w, r, status, "login.html", pageData{
			Title:   "Login",
			Content: view,
			Flashes: []session.Flash{{Kind: session.FlashError, Title: "Login gagal!", Message: loginMessage(err)}},
		})
		return
	}

	s.views.drop(sess.ID)
	sess.AddFlash(session.FlashSuccess, "Login berhasil!", "")
	if err := s.sessions.Start(r.Context(), w, sess, res.Token, res.User); err != nil {
		s.reqLog(r).ErrorContext(r.Context(), "Failed to start session", log.FieldError, err)
		InternalServerError("Terjadi kesalahan").Write(w)
		return
	}
	s.metrics.LoginAttempt(loginSuccess)
	redirect(w, r, "/dashboard")
}

// loginMessage prefers the API's own message; a 401 on login carries the
// reason the credentials were refused.
func loginMessage(err error) string {
	var ae *api.AuthorizationError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return apiMessage(err)
}

func (s *Server) onLoginLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.LoginAttempt(loginRateLimited)
	s.renderPageStatus(w, r, http.StatusTooManyRequests, "login.html", pageData{
		Title:   "Login",
		Content: loginView{Email: sanitizeText(r.FormValue("email"))},
		Flashes: []session.Flash{{
			Kind:    session.FlashError,
			Title:   "Terlalu banyak percobaan login",
			Message: "Silakan coba lagi dalam satu menit",
		}},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	s.views.drop(sess.ID)
	if err := s.sessions.Destroy(r.Context(), w, sess); err != nil {
		s.reqLog(r).ErrorContext(r.Context(), "Failed to destroy session", log.FieldError, err)
	}
	s.reqLog(r).InfoContext(r.Context(), "Logged out", log.FieldOperation, log.OpLogout, log.FieldUser, sess.User.DisplayName())
	redirect(w, r, "/login")
}
