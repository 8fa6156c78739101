package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"sentistream/internal/util"
	"sentistream/pkg/store"
	"sentistream/services/monitor/internal/app"
	"sentistream/services/monitor/internal/config"
	"sentistream/services/monitor/internal/notify"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}

	notifier := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange)
	defer notifier.Close()

	monitor, err := app.New(app.Config{
		Store:                  dataStore,
		Notifier:               notifierOrNil(notifier),
		NegativeRatioThreshold: cfg.NegativeRatioThreshold,
		Window:                 time.Duration(cfg.WindowMinutes) * time.Minute,
		MinPosts:               cfg.MinPosts,
		CheckInterval:          time.Duration(cfg.CheckIntervalSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to init monitor: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := monitor.Run(ctx); err != nil {
		logger.Error("monitor error", "err", err)
	}
}

// notifierOrNil avoids wrapping a typed nil in the Notifier interface.
func notifierOrNil(n *notify.AMQPNotifier) app.Notifier {
	if n == nil {
		return nil
	}
	return n
}
