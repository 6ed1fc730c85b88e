package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finboard/internal/advisor"
	"finboard/internal/amqp"
	"finboard/internal/banking"
	"finboard/internal/cache"
	"finboard/internal/categorize"
	"finboard/internal/cli"
	"finboard/internal/config"
	apphttp "finboard/internal/http"
	applog "finboard/internal/log"
	"finboard/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	logger.Info("Starting finboard", applog.FieldOperation, applog.OpStartup, "backend", cfg.DataBackend, "fallback", cfg.StoreFallback)

	stores, err := cli.OpenStore(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize store", applog.FieldError, err)
		os.Exit(1)
	}

	source, err := transactionSource(cfg)
	if err != nil {
		logger.Error("Failed to initialize transaction source", applog.FieldError, err)
		os.Exit(1)
	}

	categorizer := categorize.New()
	if cfg.CategoryRulesFile != "" {
		categorizer, err = categorize.FromFile(cfg.CategoryRulesFile)
		if err != nil {
			logger.Error("Failed to load category rules", applog.FieldError, err, "path", cfg.CategoryRulesFile)
			os.Exit(1)
		}
	}

	var adv advisor.Advisor = advisor.NewStatic()
	if cfg.UseGemini() {
		gemini, err := advisor.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("Gemini advisor unavailable, using static recommendations", applog.FieldError, err)
		} else {
			adv = gemini
			logger.Info("Initialized Gemini advisor", "model", cfg.GeminiModel)
		}
	}

	// Ledger events are optional; without a broker nothing is exported.
	var publisher services.EventPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without ledger export", applog.FieldError, err)
		} else {
			publisher = amqpClient
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	svc := services.NewDashboardService(source, stores.Store, categorizer, adv, publisher, services.DashboardConfig{
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	})

	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	caches.Register(svc.TransactionCache())

	var reconciler *services.ReconcileProcessor
	if stores.Tiered != nil {
		caches.Register(stores.Tiered.Cache())
		reconciler = services.NewReconcileProcessor(stores.Tiered, services.ReconcileProcessorConfig{
			PollInterval: cfg.ReconcileInterval,
		})
		if err := reconciler.Start(ctx); err != nil {
			logger.Error("Failed to start reconcile processor", applog.FieldError, err)
			os.Exit(1)
		}
	}
	caches.StartCleanup(time.Minute)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		BlockSuspicious:    cfg.BlockSuspicious,
		Logger:             logger,
	}, svc)

	shutdownCtx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if reconciler != nil {
			if err := reconciler.Stop(ctx); err != nil {
				logger.Error("Reconcile processor shutdown error", applog.FieldError, err)
			}
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP client close error", applog.FieldError, err)
			}
		}
		if err := svc.Close(); err != nil {
			logger.Error("Store close error", applog.FieldError, err)
		}
	})

	logger.Info("Starting finboard server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

// transactionSource prefers the live banking API and falls back to the
// fixture file for local runs.
func transactionSource(cfg *config.Config) (banking.TransactionSource, error) {
	if cfg.BankingAPIURL != "" {
		return banking.NewClient(banking.ClientConfig{
			BaseURL:           cfg.BankingAPIURL,
			Timeout:           cfg.BankingTimeout,
			RequestsPerSecond: float64(cfg.BankingRateLimit),
		}), nil
	}
	return banking.NewStaticSourceFromFile(cfg.SeedTransactionsFile)
}
