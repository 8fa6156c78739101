package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"sentistream/internal/util"
	"sentistream/pkg/stream"
	"sentistream/services/producer/internal/app"
	"sentistream/services/producer/internal/config"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	postStream, err := stream.NewRedisStream(stream.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Key:      cfg.StreamKey,
		MaxLen:   cfg.StreamMaxLen,
	})
	if err != nil {
		log.Fatalf("failed to init stream: %v", err)
	}
	defer postStream.Close()

	producer, err := app.New(app.Config{
		Stream:   postStream,
		Rate:     cfg.PublishRate,
		Duration: time.Duration(cfg.DurationSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to init producer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := producer.Run(ctx); err != nil {
		logger.Error("producer error", "err", err)
	}
}
