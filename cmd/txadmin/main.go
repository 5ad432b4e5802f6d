package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"txadmin/internal/api"
	"txadmin/internal/backend"
	"txadmin/internal/cache"
	"txadmin/internal/cli"
	"txadmin/internal/config"
	apphttp "txadmin/internal/http"
	"txadmin/internal/log"
	"txadmin/internal/metrics"
	"txadmin/internal/services"
	"txadmin/internal/session"
)

const (
	cacheSweepInterval   = time.Minute
	sessionPurgeInterval = 10 * time.Minute
	shutdownTimeout      = 30 * time.Second
)

func main() {
	cfg, logger := cli.LoadConfig("txadmin", (*config.Config).Validate)
	logger.Info("Starting txadmin", "port", cfg.Port, "api", cfg.APIBaseURL, "session_backend", cfg.SessionBackend)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).Create(ctx, bcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	m := metrics.New()
	client, err := api.New(cfg.APIBaseURL,
		api.WithTimeout(cfg.APITimeout),
		api.WithLogger(logger),
		api.WithObserver(m))
	if err != nil {
		return err
	}

	sessions := session.NewManager(res.Sessions, session.Config{
		TTL:    cfg.SessionTTL,
		Secure: cfg.SessionCookieSecure,
	}, logger)
	tx := services.NewTransactionService(res.Publisher, m, logger)
	caches := cache.NewManager(logger)

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		API:          client,
		Sessions:     sessions,
		Transactions: tx,
		Metrics:      m,
		Caches:       caches,
		Logger:       logger,
		Ping:         res.Ping,
	}, apphttp.Options{
		ViewStateMaxEntries: cfg.ViewStateMaxEntries,
		ViewStateTTL:        cfg.ViewStateTTL,
		LoginRatePerMinute:  cfg.LoginRatePerMinute,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return caches.Run(gctx, cacheSweepInterval)
	})

	g.Go(func() error {
		ticker := time.NewTicker(sessionPurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				n, err := sessions.Purge(gctx)
				if err != nil {
					logger.Warn("Session purge failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("Purged expired sessions", "count", n)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
