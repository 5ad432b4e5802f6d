package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"txadmin/internal/amqp"
	"txadmin/internal/cli"
	"txadmin/internal/config"
	"txadmin/internal/log"
	"txadmin/internal/metrics"
	gsheet "txadmin/internal/sheets/google"
	"txadmin/internal/worker"
)

func main() {
	cfg, logger := cli.LoadConfig("txadmin-worker", (*config.Config).ValidateWorker)
	logger.Info("Starting txadmin-worker", "queue", cfg.AMQPQueue, "spreadsheet_id", cfg.GoogleSpreadsheetID)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	sheetsClient, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		AuditSheetName:     cfg.GoogleAuditSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		OAuthClientJSON:    cfg.GoogleOAuthClientJSON,
		OAuthClientFile:    cfg.GoogleOAuthClientFile,
		OAuthTokenJSON:     cfg.GoogleOAuthTokenJSON,
		OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
	}, logger)
	if err != nil {
		return err
	}
	logger.Info("Google Sheets client initialized", "sheet", cfg.GoogleAuditSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return err
	}
	defer amqpClient.Close()

	m := metrics.New()
	w := worker.NewAuditWorker(sheetsClient, m, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.RunConsumer(gctx, w.HandleEvent)
	})

	if cfg.WorkerMetricsPort != "" {
		r := chi.NewRouter()
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		r.Handle("/metrics", m.Handler())
		worker.AuditRoutes(r, sheetsClient, logger)
		srv := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Metrics listener started", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
