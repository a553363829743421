package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"autolabel-backend/cmd"
	"autolabel-backend/internal/config"
	"autolabel-backend/internal/core"
	"autolabel-backend/internal/messaging"
	"autolabel-backend/internal/sam"
	"autolabel-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/schollz/progressbar/v3"
	ort "github.com/yalue/onnxruntime_go"
)

func main() {
	cmd.LoadEnvFile()

	var cfg config.SegmenterConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}
	cmd.SetupLogging(cfg.Log)

	ort.SetSharedLibraryPath(cfg.OnnxRuntimeDylib)
	if err := ort.InitializeEnvironment(); err != nil {
		log.Fatalf("could not init ONNX Runtime: %v", err)
	}
	defer func() {
		if err := ort.DestroyEnvironment(); err != nil {
			slog.Error("error destroying onnx env", "error", err)
		}
	}()

	var objects storage.ObjectReader
	if cfg.S3.S3EndpointURL != "" || cfg.ModelBucket != "" {
		s3, err := storage.NewS3Provider(cfg.S3.ProviderConfig())
		if err != nil {
			log.Fatalf("failed to create s3 client: %v", err)
		}
		objects = s3
	}

	if cfg.ModelBucket != "" {
		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("downloading model"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
		err := storage.DownloadDir(context.Background(), objects, cfg.ModelBucket, cfg.ModelPrefix, cfg.ModelDir, false, func(storage.Object) {
			_ = bar.Add(1)
		})
		_ = bar.Finish()
		if err != nil {
			log.Fatalf("failed to download model: %v", err)
		}
	}

	model, err := sam.LoadOnnxModel(cfg.ModelDir)
	if err != nil {
		log.Fatalf("failed to load sam model: %v", err)
	}

	predictor := sam.NewPredictor(
		model,
		storage.NewImageSource(objects, cfg.ImageTimeout),
		cfg.CacheSize,
		sam.RefineOptions{MinAreaRatio: cfg.MinAreaRatio, NmsThreshold: cfg.NmsThreshold},
	)
	defer predictor.Close()

	bus, err := cmd.NewBus(cfg.Bus)
	if err != nil {
		log.Fatalf("failed to connect to message bus: %v", err)
	}
	defer bus.Close()

	reciever, err := bus.Subscribe(messaging.InteractiveSamTopic)
	if err != nil {
		log.Fatalf("failed to subscribe: %v", err)
	}

	worker := core.NewTaskProcessor(reciever, core.TaskProcessorOptions{
		Segmenter:   predictor,
		Concurrency: cfg.Concurrency,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutdown signal received, waiting for in flight tasks")
		worker.Stop()
	}()

	slog.Info("segmenter worker started", "bus", cfg.Bus.Kind, "model_dir", cfg.ModelDir, "cache_size", cfg.CacheSize)
	worker.Start()
	slog.Info("segmenter worker stopped")
}
