package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"recargas/internal/amqp"
	"recargas/internal/auth"
	"recargas/internal/cache"
	"recargas/internal/cli"
	apphttp "recargas/internal/http"
	"recargas/internal/kpi"
	applog "recargas/internal/log"
	"recargas/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentHTTP)

	cfg := cli.LoadAndValidateConfig(logger.Logger)

	var (
		srv      *apphttp.Server
		cacheMgr *cache.Manager
	)
	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("Server shutdown error", "error", err)
			}
		}
		if cacheMgr != nil {
			cacheMgr.Stop()
		}
	})

	backendRes := cli.MustOpenStore(ctx, logger.Logger, cfg)
	defer func() {
		if err := backendRes.Cleanup(); err != nil {
			logger.Warn("Failed to close storage", "error", err)
		}
	}()

	// AMQP is optional: without it recharges stay local until a sync worker
	// picks up the pending rows.
	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without sync events", "error", err)
		} else {
			defer client.Close()
			events = client
			logger.Info("AMQP publisher connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	reportCache := cache.NewLRUCache[kpi.Report](500, 10*time.Minute)
	cacheMgr = cache.NewManager()
	cacheMgr.Register(reportCache)
	cacheMgr.StartCleanup(time.Minute)

	rechargeService := services.NewRechargeService(backendRes.Store, events, cache.NewLoader(reportCache))
	accountService := services.NewAccountService(backendRes.Store, auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL))

	srv = apphttp.NewServer(cfg.Addr(), apphttp.Deps{
		Recharges: rechargeService,
		Accounts:  accountService,
		Contacts:  backendRes.Store,
		Health:    backendRes.Store,
		Logger:    logger,
	}, apphttp.Options{
		SecureCookies:  cfg.SecureCookies,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TrustedProxies: cfg.TrustedProxies,
		RateLimit:      cfg.RateLimit,
	})
	srv.MaxHeaderBytes = 1 << 16

	logger.Info("Starting recargas server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
