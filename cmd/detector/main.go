package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"autolabel-backend/cmd"
	"autolabel-backend/internal/config"
	"autolabel-backend/internal/core"
	"autolabel-backend/internal/core/types"
	"autolabel-backend/internal/database"
	"autolabel-backend/internal/detection"
	"autolabel-backend/internal/messaging"

	"github.com/caarlos0/env/v11"
)

func main() {
	cmd.LoadEnvFile()

	var cfg config.DetectorConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}
	cmd.SetupLogging(cfg.Log)

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	bus, err := cmd.NewBus(cfg.Bus)
	if err != nil {
		log.Fatalf("failed to connect to message bus: %v", err)
	}
	defer bus.Close()

	reciever, err := bus.Subscribe(
		messaging.Topic(types.ImageScope, messaging.YoloModel),
		messaging.Topic(types.DatasetScope, messaging.YoloModel),
	)
	if err != nil {
		log.Fatalf("failed to subscribe: %v", err)
	}

	worker := core.NewTaskProcessor(reciever, core.TaskProcessorOptions{
		Jobs:        database.NewJobStore(db),
		Datasets:    database.NewDatasetStore(db),
		Detector:    detection.NewRemoteDetector(cfg.DetectorURL, cfg.DetectorTimeout).WithBatching(cfg.BatchSize, cfg.Parallelism),
		Concurrency: cfg.Concurrency,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutdown signal received, waiting for in flight tasks")
		worker.Stop()
	}()

	slog.Info("detector worker started", "bus", cfg.Bus.Kind, "concurrency", cfg.Concurrency)
	worker.Start()
	slog.Info("detector worker stopped")
}
