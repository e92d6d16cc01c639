package main

import (
	"context"
	"errors"
	"os"
	"time"

	"recargas/internal/amqp"
	"recargas/internal/cli"
	applog "recargas/internal/log"
	gsheet "recargas/internal/sheets/google"
	"recargas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting recargas-worker")

	cfg := cli.LoadAndValidateConfig(logger.Logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the sync worker")
		os.Exit(1)
	}
	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("GOOGLE_SPREADSHEET_ID is required for the sync worker")
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, nil)

	backendRes := cli.MustOpenStore(ctx, logger.Logger, cfg)
	defer backendRes.Cleanup()

	sheetsClient, err := gsheet.NewFromEnv(ctx)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(backendRes.Store, sheetsClient, cfg.SyncBatchSize)

	// push anything left pending while the worker was down
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	go func() {
		if err := amqpClient.Consume(ctx, syncWorker.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				synced, failed, err := syncWorker.ProcessPending(ctx)
				if err != nil {
					logger.Error("Periodic sync failed", "error", err)
					continue
				}
				if synced+failed > 0 {
					logger.Info("Periodic sync finished", "synced", synced, "failed", failed)
				}
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
