package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"autolabel-backend/cmd"
	"autolabel-backend/internal/api"
	"autolabel-backend/internal/config"
	"autolabel-backend/internal/core"
	"autolabel-backend/internal/core/types"
	"autolabel-backend/internal/database"
	"autolabel-backend/internal/detection"
	"autolabel-backend/internal/messaging"
	"autolabel-backend/internal/sam"
	"autolabel-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	ort "github.com/yalue/onnxruntime_go"
	"gorm.io/gorm"
)

func createServer(dispatcher *core.Dispatcher, port int) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	service := api.NewBackendService(dispatcher)
	r.Route("/api/v1", func(r chi.Router) {
		service.AddRoutes(r)
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func startDetector(cfg config.LocalConfig, db *gorm.DB, bus messaging.Bus) *core.TaskProcessor {
	reciever, err := bus.Subscribe(
		messaging.Topic(types.ImageScope, messaging.YoloModel),
		messaging.Topic(types.DatasetScope, messaging.YoloModel),
	)
	if err != nil {
		log.Fatalf("failed to subscribe detector: %v", err)
	}

	worker := core.NewTaskProcessor(reciever, core.TaskProcessorOptions{
		Jobs:     database.NewJobStore(db),
		Datasets: database.NewDatasetStore(db),
		Detector: detection.NewRemoteDetector(cfg.DetectorURL, cfg.DetectorTimeout),
	})
	go worker.Start()
	return worker
}

func startSegmenter(cfg config.LocalConfig, bus messaging.Bus) (*core.TaskProcessor, *sam.Predictor) {
	objects, err := storage.NewLocalProvider(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("failed to create storage: %v", err)
	}

	model, err := sam.LoadOnnxModel(cfg.ModelDir)
	if err != nil {
		log.Fatalf("failed to load sam model: %v", err)
	}
	predictor := sam.NewPredictor(model, storage.NewImageSource(objects, 0), cfg.CacheSize, sam.DefaultRefineOptions())

	reciever, err := bus.Subscribe(messaging.InteractiveSamTopic)
	if err != nil {
		log.Fatalf("failed to subscribe segmenter: %v", err)
	}

	worker := core.NewTaskProcessor(reciever, core.TaskProcessorOptions{Segmenter: predictor})
	go worker.Start()
	return worker, predictor
}

func main() {
	cmd.LoadEnvFile()

	var cfg config.LocalConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating root directory: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.Root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	logger, err := cfg.Log.NewLogger(io.MultiWriter(f, os.Stderr))
	if err != nil {
		log.Fatalf("error configuring logger: %v", err)
	}
	slog.SetDefault(logger)

	slog.Info("starting local backend", "root", cfg.Root, "port", cfg.Port, "model_dir", cfg.ModelDir)

	db, err := database.NewDatabase(filepath.Join(cfg.Root, "db", "autolabel.db"))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	bus := messaging.NewInMemoryBus()
	defer bus.Close()

	var workers []*core.TaskProcessor

	if cfg.DetectorURL != "" {
		workers = append(workers, startDetector(cfg, db, bus))
	} else {
		slog.Warn("DETECTOR_URL not set, batch prediction jobs will not be processed")
	}

	if cfg.OnnxRuntimeDylib != "" && cfg.ModelDir != "" {
		ort.SetSharedLibraryPath(cfg.OnnxRuntimeDylib)
		if err := ort.InitializeEnvironment(); err != nil {
			log.Fatalf("could not init ONNX Runtime: %v", err)
		}
		defer func() {
			if err := ort.DestroyEnvironment(); err != nil {
				slog.Error("error destroying onnx env", "error", err)
			}
		}()

		worker, predictor := startSegmenter(cfg, bus)
		defer predictor.Close()
		workers = append(workers, worker)
	} else {
		slog.Warn("ONNX_RUNTIME_DYLIB or MODEL_DIR not set, interactive segmentation disabled")
	}

	dispatcher := core.NewDispatcher(database.NewJobStore(db), messaging.NewTaskPublisher(bus, cfg.RequestTimeout))

	// Jobs created before a previous shutdown never reached a worker. The
	// in-memory bus drops messages nobody is subscribed to.
	if cfg.DetectorURL != "" {
		if _, err := dispatcher.ResumeCreated(context.Background()); err != nil {
			log.Fatalf("failed to resume created jobs: %v", err)
		}
	}

	server := createServer(dispatcher, cfg.Port)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("could not listen on %d: %v", cfg.Port, err)
	}

	slog.Info("shutting down workers")
	for _, worker := range workers {
		worker.Stop()
	}
	slog.Info("server stopped")
}
