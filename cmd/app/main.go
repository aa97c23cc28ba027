package main

import (
	"TwoStageVision/internal/config"
	"TwoStageVision/pkg/annotator"
	"TwoStageVision/pkg/inference"
	"TwoStageVision/pkg/log"
	"TwoStageVision/pkg/redis"
	"context"
	"errors"
	"io/fs"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	logger := log.NewLogger()
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Fatalf("Error loading .env file: %v", err)
	}

	validator := config.NewValidator()
	cfg, err := config.LoadPipelineConfig(validator)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	models := inference.LoadModels(ctx, logger, cfg.Inference())
	models.LogDiagnostics(logger)

	options := []config.ServerOption{
		config.WithFiber(config.NewFiber(logger, cfg.MaxUploadMB<<20)),
		config.WithLogger(logger),
		config.WithConfig(cfg),
		config.WithValidator(validator),
		config.WithModels(models),
		config.WithUtils(),
		config.WithMiddleware(),
		config.WithAnnotator(annotator.New()),
	}
	if cfg.RedisEnabled {
		options = append(options, config.WithRedisServer(redis.New(logger)))
	}
	if cfg.S3Enabled {
		options = append(options, config.WithS3Client())
	}
	options = append(options, config.WithArtifactStore())

	server, err := config.NewServer(options...)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()
	server.Mount()

	server.StartJanitor(ctx)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Info("Server started successfully")

	<-ctx.Done()
	logger.Info("Shutting down server...")

	done := make(chan error, 1)
	go func() { done <- server.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Errorf("Error during shutdown: %v", err)
		}
	case <-time.After(10 * time.Second):
		logger.Error("Shutdown timed out")
	}
}
