package cmd

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"autolabel-backend/internal/config"
	"autolabel-backend/internal/messaging"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// SetupLogging installs the configured slog logger as the process default.
func SetupLogging(cfg config.LogConfig) {
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		log.Fatalf("error configuring logger: %v", err)
	}
	slog.SetDefault(logger)
}

// NewBus connects to the transport named by BUS_KIND.
func NewBus(cfg config.BusConfig) (messaging.Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case config.RabbitMQBus:
		slog.Info("connecting to rabbitmq bus")
		bus, err := messaging.NewRabbitMQBus(cfg.RabbitMQURL, cfg.RabbitMQPrefetch)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case config.NatsBus:
		slog.Info("connecting to nats bus")
		bus, err := messaging.NewNatsBus(cfg.NatsURL)
		if err != nil {
			return nil, err
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported bus kind %q", cfg.Kind)
	}
}
