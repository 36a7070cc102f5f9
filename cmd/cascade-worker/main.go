package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ms-registration/internal/app"
	"ms-registration/internal/config"
	"ms-registration/internal/kafka"
	"ms-registration/internal/logger"
	"ms-registration/internal/worker"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Dir, cfg.Log.Service+"-cascade-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("APP", fmt.Sprintf("Initialization failed: %v", err))
	}
	defer a.Close()

	var src worker.Source
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, kafka.TopicEventCancelled, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		src = consumer
		log.Info("WORKER", fmt.Sprintf("Consuming %s as group %s", kafka.TopicEventCancelled, cfg.Kafka.GroupID))
	} else {
		log.Warn("WORKER", "Kafka disabled, running timed repair passes only")
	}

	cascade := worker.NewCascade(a.Events, cfg.Worker.RepairInterval, log)
	log.Info("WORKER", fmt.Sprintf("Cascade worker started, repair interval %s", cfg.Worker.RepairInterval))
	if err := cascade.Run(ctx, src); err != nil {
		log.Error("WORKER", fmt.Sprintf("Cascade worker stopped: %v", err))
		return
	}
	log.Info("WORKER", "Cascade worker shutdown complete")
}
