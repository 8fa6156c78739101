package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"sentistream/pkg/domain"
	"sentistream/pkg/store"
)

const alertTypeHighNegativeRatio = "high_negative_ratio"

// Notifier fans a persisted alert out to downstream channels. Best-effort;
// a notification failure never fails the monitoring cycle.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert domain.AlertEvent) error
}

// Config holds runtime configuration.
type Config struct {
	Store                  store.Store
	Notifier               Notifier
	NegativeRatioThreshold float64
	Window                 time.Duration
	MinPosts               int64
	CheckInterval          time.Duration
}

// Monitor periodically scans a trailing window of analyses and raises an
// alert when negative sentiment dominates positive past the threshold.
type Monitor struct {
	store     store.Store
	notifier  Notifier
	threshold float64
	window    time.Duration
	minPosts  int64
	interval  time.Duration
}

func New(cfg Config) (*Monitor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	threshold := cfg.NegativeRatioThreshold
	if threshold <= 0 {
		threshold = 2.0
	}
	window := cfg.Window
	if window <= 0 {
		window = 5 * time.Minute
	}
	minPosts := cfg.MinPosts
	if minPosts <= 0 {
		minPosts = 10
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		store:     cfg.Store,
		notifier:  cfg.Notifier,
		threshold: threshold,
		window:    window,
		minPosts:  minPosts,
		interval:  interval,
	}, nil
}

// Run loops forever at the check interval. The monitor never stops on
// alert; while the condition persists it re-alerts every cycle.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("alert monitor started",
		"threshold", m.threshold,
		"windowMinutes", int(m.window.Minutes()),
		"minPosts", m.minPosts,
		"interval", m.interval.String(),
	)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if alert, err := m.Evaluate(ctx); err != nil {
			slog.Warn("alert check failed", "err", err)
		} else if alert != nil {
			slog.Warn("alert raised",
				"ratio", alert.ActualRatio,
				"threshold", alert.Threshold,
				"negative", alert.Metrics.Negative,
				"positive", alert.Metrics.Positive,
			)
		}
		select {
		case <-ctx.Done():
			slog.Info("alert monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Evaluate runs one scan cycle: count sentiments in [now - window, now] and
// persist an alert when total >= minPosts, positive > 0, and
// negative/positive exceeds the threshold. With no positive samples the
// ratio is undefined and no alert fires, regardless of volume.
func (m *Monitor) Evaluate(ctx context.Context) (*domain.AlertEvent, error) {
	since := time.Now().UTC().Add(-m.window)
	counts, err := m.store.WindowCounts(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("window counts: %w", err)
	}

	if counts.Total < m.minPosts || counts.Positive == 0 {
		return nil, nil
	}
	ratio := float64(counts.Negative) / float64(counts.Positive)
	if ratio <= m.threshold {
		return nil, nil
	}

	alert := domain.AlertEvent{
		AlertType:     alertTypeHighNegativeRatio,
		Threshold:     m.threshold,
		ActualRatio:   round2(ratio),
		WindowMinutes: int(m.window.Minutes()),
		Metrics:       counts,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.InsertAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}
	if m.notifier != nil {
		if err := m.notifier.NotifyAlert(ctx, alert); err != nil {
			slog.Warn("alert notification failed", "err", err)
		}
	}
	return &alert, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
