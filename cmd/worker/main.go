// Worker consumes consent audit events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, TELEMETRY_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"kvkk-permits/internal/config"
	"kvkk-permits/internal/platform/logging"
	"kvkk-permits/internal/telemetry/loki"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("config", zap.Error(err))
	}
	logger, restore, err := logging.Install(logging.Options{Level: cfg.LogLevel})
	if err != nil {
		zap.L().Fatal("logging", zap.Error(err))
	}
	defer restore()

	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) == 0 {
		logger.Fatal("worker: KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		logger.Fatal("worker: LOKI_URL is required")
	}

	reader := newReader(brokers, cfg.TelemetryKafkaTopic, cfg.KafkaGroupID)
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker: consuming",
		zap.String("topic", cfg.TelemetryKafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.String("loki", cfg.LokiURL))

	w := &worker{reader: reader, sink: loki.New(cfg.LokiURL), log: logger}
	w.run(ctx)
	logger.Info("worker: stopped")
}
