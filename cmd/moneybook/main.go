package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moneybook/internal/amqp"
	"moneybook/internal/cli"
	apphttp "moneybook/internal/http"
	"moneybook/internal/ledger"
	applog "moneybook/internal/log"
	"moneybook/internal/middleware/ratelimit"
	"moneybook/internal/services"
	"moneybook/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentApp)
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	checks := []apphttp.ReadinessCheck{{Name: "sqlite", Check: repo.Ping}}

	// Without a broker, writes still land in SQLite and the worker's
	// pending sweep mirrors them later.
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, running without sync notifications", applog.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
			checks = append(checks, apphttp.ReadinessCheck{Name: "amqp", Check: client.Ping})
		}
	}

	svc := services.NewTransactionService(repo, publisher)
	store, err := ledger.Load(ctx, repo, svc)
	if err != nil {
		logger.Error("Failed to load ledger", applog.FieldError, err)
		os.Exit(1)
	}

	var syncer apphttp.Syncer
	if mirror, err := cli.NewMirror(ctx, cfg); err != nil {
		logger.Warn("Remote mirror unavailable, sync endpoints disabled", applog.FieldError, err, "backend", cfg.RemoteBackend)
	} else {
		syncer = worker.NewSyncWorker(repo, mirror, cfg.SyncBatchSize, worker.DefaultConcurrency)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:      ":" + cfg.Port,
		Ledger:    store,
		Syncer:    syncer,
		Checks:    checks,
		Language:  cfg.Language,
		Logger:    logger,
		RateLimit: ratelimit.DefaultConfig(),

		TrustedProxies: cfg.TrustedProxies,
	})

	events, unsubscribe := store.Subscribe(32)
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting moneybook server",
			"port", cfg.Port,
			"backend", cfg.RemoteBackend,
			"transactions", store.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ledgerLog := logger.WithComponent(applog.ComponentLedger)
		for {
			select {
			case <-gctx.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				ledgerLog.Debug("Ledger changed", "kind", e.Kind, applog.FieldTransactionID, e.ID, "version", e.Version)
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
