package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"finboard/internal/amqp"
	"finboard/internal/cache"
	"finboard/internal/cli"
	"finboard/internal/config"
	applog "finboard/internal/log"
	gsheet "finboard/internal/sheets/google"
	"finboard/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	logger.Info("Starting finboard-worker", applog.FieldOperation, applog.OpStartup, "queue", cfg.AMQPQueue)

	sheetsClient, err := gsheet.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	exporter := worker.NewLedgerExporter(sheetsClient, sheetsClient)
	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	caches.Register(exporter.SeenCache())
	caches.StartCleanup(time.Hour)

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(context.Context) {
		caches.Stop()
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP client close error", applog.FieldError, err)
		}
	})

	// Events already on the sheet are skipped when redelivered.
	if err := exporter.WarmUp(ctx); err != nil {
		logger.Warn("Failed to load exported event ids", applog.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeLedgerEvents(gctx, exporter.HandleLedgerEvent)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Ledger event consumption failed", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
