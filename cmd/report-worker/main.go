package main

import (
	"context"
	"os"
	"time"

	"recargas/internal/cache"
	"recargas/internal/cli"
	"recargas/internal/kpi"
	applog "recargas/internal/log"
	"recargas/internal/publisher"
	"recargas/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentReport)
	logger.Info("Starting report-worker")

	cfg := cli.LoadAndValidateConfig(logger.Logger)
	if cfg.MQTTBroker == "" {
		logger.Error("MQTT_BROKER is required for the report worker")
		os.Exit(1)
	}

	var processor *services.ReportProcessor
	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Warn("Report processor did not stop cleanly", "error", err)
			}
		}
	})

	backendRes := cli.MustOpenStore(ctx, logger.Logger, cfg)
	defer backendRes.Cleanup()

	pub, err := publisher.New(publisher.Config{
		Broker:      cfg.MQTTBroker,
		ClientID:    cfg.MQTTClientID,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		TopicPrefix: cfg.MQTTTopicPrefix,
	})
	if err != nil {
		logger.Error("Failed to connect to MQTT broker", "error", err, "broker", cfg.MQTTBroker)
		os.Exit(1)
	}
	defer pub.Close()

	// short TTL: the worker recomputes each round anyway
	reports := cache.NewLoader(cache.NewLRUCache[kpi.Report](1000, cfg.ReportInterval/2))
	rechargeService := services.NewRechargeService(backendRes.Store, nil, reports)

	processor = services.NewReportProcessor(backendRes.Store, rechargeService, pub, services.ReportProcessorConfig{
		Interval:  cfg.ReportInterval,
		SkipEmpty: true,
	})
	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start report processor", "error", err)
		os.Exit(1)
	}
	logger.Info("Report processor configured",
		"interval", cfg.ReportInterval,
		"broker", cfg.MQTTBroker,
		"topic_prefix", cfg.MQTTTopicPrefix)

	cli.WaitForShutdown(ctx, done)
}
