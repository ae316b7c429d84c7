package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/rimkus-dev/sentiment/internal/config"
	"github.com/rimkus-dev/sentiment/internal/config/source"
	"github.com/rimkus-dev/sentiment/internal/env"
	"github.com/rimkus-dev/sentiment/internal/envvar"
	"github.com/rimkus-dev/sentiment/internal/logger"
	"github.com/rimkus-dev/sentiment/internal/metrics"
	"github.com/rimkus-dev/sentiment/internal/model"
	grpcserver "github.com/rimkus-dev/sentiment/internal/server/grpc"
	httpserver "github.com/rimkus-dev/sentiment/internal/server/http"
	"github.com/rimkus-dev/sentiment/internal/service"
)

func main() {
	_ = godotenv.Load()

	var (
		flagHTTPPort   = flag.Int("http-port", 0, "HTTP port to listen on (overrides config)")
		flagGRPCPort   = flag.Int("grpc-port", 0, "gRPC port to listen on (overrides config)")
		flagConfigPath = flag.String("config", defaultConfigFile(), "Path to config file")
		flagSchemaPath = flag.String("schema", "", "Path to schema file (embedded schema when empty)")
		flagLogFile    = flag.String("log-file", "", "Also write JSON logs to this file")
		flagLogLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	environment := env.FromEnv()

	logOpts := []logger.Option{}
	if *flagLogFile != "" {
		logOpts = append(logOpts, logger.WithLogToFile(true), logger.WithLogFile(*flagLogFile))
	}
	if *flagLogLevel != "" {
		logOpts = append(logOpts, logger.WithLevel(logger.ParseLevel(*flagLogLevel)))
	}
	slog.SetDefault(logger.New(environment, logOpts...))

	if err := run(environment, *flagConfigPath, *flagSchemaPath, *flagHTTPPort, *flagGRPCPort); err != nil {
		slog.Error("sentimentd stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(environment env.Environment, configPath, schemaPath string, httpPort, grpcPort int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	downloader, err := source.GetDownloader(ctx, config.SourceTypeHuggingFace)
	if err != nil {
		return err
	}

	cfg := config.Default()
	manager := model.NewManager(model.ResolveModelsPath(cfg), downloader)

	providers, err := service.NewProviders(manager)
	if err != nil {
		return err
	}
	defer func() {
		if err := providers.Close(); err != nil {
			slog.Warn("Failed to close engine providers", "error", err)
		}
	}()

	reg := metrics.NewRegistry()
	sentimentMetrics := metrics.NewSentimentMetrics(reg)

	// current is nil until the service exists; reloads before that only
	// reconfigure the model manager.
	var current atomic.Pointer[service.Sentiment]

	watcher, err := config.NewWatcher(configPath, schemaPath, func(next *config.Config, err error) {
		if err != nil {
			slog.Error("Failed to reload config", "error", err)
			return
		}

		manager.LoadFromConfig(next)
		svc := current.Load()
		if svc == nil {
			return
		}
		if err := svc.Reconfigure(next.Sentiment); err != nil {
			slog.Error("Failed to apply sentiment config", "error", err)
		}
	})
	switch {
	case err == nil:
		defer watcher.Close()
		cfg = watcher.Snapshot()
		slog.Info("Config loaded successfully", "config", configPath)
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("Config file not found, using defaults", "config", configPath)
	default:
		return err
	}

	manager.LoadFromConfig(cfg)

	svc, err := service.NewSentiment(providers, cfg.Sentiment, sentimentMetrics, slog.Default())
	if err != nil {
		return err
	}
	defer svc.Close()
	current.Store(svc)

	if httpPort == 0 {
		httpPort = cfg.Server.HTTPPort
	}
	if grpcPort == 0 {
		grpcPort = cfg.Server.GRPCPort
	}

	httpSrv := httpserver.NewServer(httpserver.Options{
		Sentiment:      svc,
		Models:         manager.Registry(),
		Registry:       reg,
		Logger:         slog.Default(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Port:           httpPort,
	})
	grpcSrv := grpcserver.NewServer(svc, grpcPort, slog.Default())

	slog.Info("Starting sentimentd",
		"env", string(environment),
		"model", cfg.Sentiment.Model,
		"dtype", cfg.Sentiment.DType,
		"models_path", manager.ModelsPath(),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.Run(ctx) }()
	go func() { errCh <- grpcSrv.Run(ctx) }()

	// The first server to stop takes the other one down with it.
	var errs []error
	for range 2 {
		if err := <-errCh; err != nil {
			errs = append(errs, err)
		}
		cancel()
	}

	return errors.Join(errs...)
}

func defaultConfigFile() string {
	if p := os.Getenv(envvar.SentimentConfig); p != "" {
		return p
	}
	return filepath.Join(config.DefaultConfigPath(), "config.yaml")
}
