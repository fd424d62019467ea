// Worker consumes recorded story events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, STORY_KAFKA_TOPIC, KAFKA_GROUP_ID and LOKI_URL.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"playground-flow/internal/config"
	"playground-flow/internal/logging"
	"playground-flow/internal/telemetry/loki"
	"playground-flow/internal/telemetry/producer"
)

const pushTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	brokers := cfg.StoryKafkaBrokersList()
	if len(brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	client, err := loki.NewClient(cfg.LokiURL, cfg.ServiceName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := producer.NewConsumer(brokers, cfg.StoryKafkaTopic, cfg.KafkaGroupID, logger)
	defer consumer.Close()

	logger.Info("consuming stories",
		zap.String("topic", cfg.StoryKafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.String("loki", cfg.LokiURL))

	err = consumer.Run(ctx, func(ctx context.Context, value []byte) error {
		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		defer cancel()
		return client.PushStoryJSON(pushCtx, value)
	})
	if err != nil {
		return err
	}
	logger.Info("worker stopped")
	return nil
}
