// Command txadmin-sheets-auth runs the OAuth consent flow once and stores
// the user token the worker uses when no service account is configured.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"txadmin/internal/cli"
	"txadmin/internal/config"
	"txadmin/internal/log"
	gsheet "txadmin/internal/sheets/google"
)

const authTimeout = 5 * time.Minute

func main() {
	cfg, logger := cli.LoadConfig("txadmin-sheets-auth", validate)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Authorization failed", "error", err)
		os.Exit(1)
	}
}

func validate(c *config.Config) error {
	if c.GoogleOAuthClientJSON == "" && c.GoogleOAuthClientFile == "" {
		return errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
	}
	if c.GoogleOAuthRedirectPort == "" {
		return errors.New("OAUTH_REDIRECT_PORT cannot be empty")
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	oauthCfg, err := gsheet.OAuthConfig(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
	if err != nil {
		return err
	}
	// The OAuth client must list this URI among its authorized redirects.
	oauthCfg.RedirectURL = "http://localhost:" + cfg.GoogleOAuthRedirectPort + "/callback"

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	r := chi.NewRouter()
	r.Get("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
			errCh <- fmt.Errorf("consent denied: %s", e)
			return
		}
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codeCh <- q.Get("code"):
		default:
		}
	})

	srv := &http.Server{
		Addr:              ":" + cfg.GoogleOAuthRedirectPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Open this URL to authorize:\n%s\n", oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-time.After(authTimeout):
		return errors.New("authorization timed out")
	case <-ctx.Done():
		return ctx.Err()
	}

	tok, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}

	out := cfg.GoogleOAuthTokenFile
	if out == "" {
		out = "token.json"
	}
	if err := saveToken(out, tok); err != nil {
		return err
	}
	logger.Info("Saved OAuth token", "file", out)
	return nil
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}
