package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"sentistream/internal/util"
	"sentistream/pkg/classify"
	"sentistream/pkg/store"
	"sentistream/pkg/stream"
	"sentistream/services/worker/internal/app"
	"sentistream/services/worker/internal/config"
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
	})
	if err != nil {
		log.Fatalf("failed to init stream: %v", err)
	}
	defer postStream.Close()

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}

	// One analyzer per process; the inference backend holds warm model
	// state that is expensive to duplicate.
	analyzer := classify.NewAnalyzer(
		classify.NewInferenceClient(cfg.InferenceURL),
		cfg.SentimentModel,
		cfg.EmotionModel,
	)

	worker, err := app.New(app.Config{
		Stream:        postStream,
		Store:         dataStore,
		Analyzer:      analyzer,
		Group:         cfg.ConsumerGroup,
		Consumer:      consumerName(cfg.ConsumerName),
		ReadCount:     cfg.ReadCount,
		Block:         time.Duration(cfg.BlockSeconds) * time.Second,
		Concurrency:   cfg.Concurrency,
		ClaimIdle:     time.Duration(cfg.ClaimIdleSeconds) * time.Second,
		MaxDeliveries: cfg.MaxDeliveries,
	})
	if err != nil {
		log.Fatalf("failed to init worker: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx); err != nil {
		logger.Error("worker error", "err", err)
	}
}

func consumerName(configured string) string {
	if configured != "" {
		return configured
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-" + uuid.NewString()
}
