package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/server"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.FileEnv), "YAML or TOML config file")
	port := flag.String("port", "", "HTTP port (overrides config)")
	grpcPort := flag.String("grpc-port", "", "gRPC health port (overrides config)")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *grpcPort != "" {
		cfg.Server.GRPCPort = *grpcPort
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.LoggerSettings())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Shut down gracefully")
}
