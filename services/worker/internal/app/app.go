package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"sentistream/pkg/classify"
	"sentistream/pkg/domain"
	"sentistream/pkg/store"
	"sentistream/pkg/stream"
)

// Stream is the slice of the stream contract the worker pool needs.
type Stream interface {
	EnsureGroup(ctx context.Context, group, startID string) error
	ReadGroup(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]stream.Entry, error)
	Ack(ctx context.Context, group, entryID string) error
	ClaimStale(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]stream.Entry, error)
	PendingDeliveries(ctx context.Context, group string, count int64) (map[string]int64, error)
	DeadLetter(ctx context.Context, group string, entry stream.Entry, reason string) error
}

// Config holds runtime configuration.
type Config struct {
	Stream        Stream
	Store         store.Store
	Analyzer      *classify.Analyzer
	Group         string
	Consumer      string
	ReadCount     int64
	Block         time.Duration
	Concurrency   int
	ClaimIdle     time.Duration
	MaxDeliveries int64
}

// App drains the stream's consumer group and turns each entry into durable,
// deduplicated post + analysis rows. Delivery is at-least-once; the store's
// unique post_id constraint makes reprocessing safe.
type App struct {
	stream        Stream
	store         store.Store
	analyzer      *classify.Analyzer
	group         string
	consumer      string
	readCount     int64
	block         time.Duration
	concurrency   int
	claimIdle     time.Duration
	maxDeliveries int64
}

func New(cfg Config) (*App, error) {
	if cfg.Stream == nil {
		return nil, fmt.Errorf("stream required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer required")
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("consumer group required")
	}
	if cfg.Consumer == "" {
		return nil, fmt.Errorf("consumer name required")
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	maxDeliveries := cfg.MaxDeliveries
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &App{
		stream:        cfg.Stream,
		store:         cfg.Store,
		analyzer:      cfg.Analyzer,
		group:         cfg.Group,
		consumer:      cfg.Consumer,
		readCount:     readCount,
		block:         block,
		concurrency:   concurrency,
		claimIdle:     claimIdle,
		maxDeliveries: maxDeliveries,
	}, nil
}

// Run polls the consumer group until the context is canceled. In-flight
// entries from the current batch finish before Run returns.
func (a *App) Run(ctx context.Context) error {
	// Start at "0" so entries published before the first worker boot are
	// still consumed.
	if err := a.stream.EnsureGroup(ctx, a.group, "0"); err != nil {
		return fmt.Errorf("ensure group: %w", err)
	}
	slog.Info("worker started", "group", a.group, "consumer", a.consumer)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped", "consumer", a.consumer)
			return nil
		default:
		}

		a.reapStale(ctx)

		entries, err := a.stream.ReadGroup(ctx, a.group, a.consumer, a.readCount, a.block)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("worker stopped", "consumer", a.consumer)
				return nil
			}
			slog.Warn("stream read failed", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if len(entries) == 0 {
			continue
		}
		a.processBatch(ctx, entries)
	}
}

// processBatch dispatches entries as independent concurrent tasks. A task
// failure leaves its entry pending for redelivery and never touches its
// siblings. Tasks run to completion even if ctx is canceled mid-batch, so
// shutdown drains cleanly.
func (a *App) processBatch(ctx context.Context, entries []stream.Entry) {
	taskCtx := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(a.concurrency)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			a.processEntry(taskCtx, entry)
			return nil
		})
	}
	_ = g.Wait()
}

func (a *App) processEntry(ctx context.Context, entry stream.Entry) {
	post, err := stream.DecodePost(entry.Fields)
	if err != nil {
		// Redelivery can never repair a malformed entry.
		if dlErr := a.stream.DeadLetter(ctx, a.group, entry, err.Error()); dlErr != nil {
			slog.Warn("dead-letter failed", "entryId", entry.ID, "err", dlErr)
		} else {
			slog.Warn("dead-lettered malformed entry", "entryId", entry.ID, "err", err)
		}
		return
	}

	sentiment, err := a.analyzer.Sentiment(ctx, post.Content)
	if err != nil {
		slog.Warn("sentiment classification failed, entry stays pending", "entryId", entry.ID, "postId", post.PostID, "err", err)
		return
	}
	emotion, err := a.analyzer.Emotion(ctx, post.Content)
	if err != nil {
		slog.Warn("emotion classification failed, entry stays pending", "entryId", entry.ID, "postId", post.PostID, "err", err)
		return
	}

	analysis := domain.AnalysisResult{
		PostID:          post.PostID,
		ModelName:       sentiment.ModelName,
		SentimentLabel:  sentiment.Label,
		ConfidenceScore: sentiment.ConfidenceScore,
		Emotion:         emotion.Emotion,
		AnalyzedAt:      time.Now().UTC(),
	}
	if err := a.store.SavePostAnalysis(ctx, post, analysis); err != nil {
		slog.Error("persist failed, entry stays pending", "entryId", entry.ID, "postId", post.PostID, "err", err)
		return
	}

	if err := a.stream.Ack(ctx, a.group, entry.ID); err != nil {
		// The rows are durable; a redelivered entry just adds an analysis.
		slog.Warn("ack failed", "entryId", entry.ID, "err", err)
		return
	}
	slog.Debug("processed entry", "entryId", entry.ID, "postId", post.PostID, "sentiment", sentiment.Label)
}

// reapStale takes over entries stranded in another consumer's pending list.
// Entries that exhausted their delivery budget move to the dead-letter
// stream instead of retrying forever.
func (a *App) reapStale(ctx context.Context) {
	claimed, err := a.stream.ClaimStale(ctx, a.group, a.consumer, a.claimIdle, a.readCount)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("claim stale failed", "err", err)
		}
		return
	}
	if len(claimed) == 0 {
		return
	}

	deliveries, err := a.stream.PendingDeliveries(ctx, a.group, a.readCount*10)
	if err != nil {
		slog.Warn("pending lookup failed", "err", err)
		deliveries = nil
	}

	retriable := make([]stream.Entry, 0, len(claimed))
	for _, entry := range claimed {
		if deliveries[entry.ID] >= a.maxDeliveries {
			reason := fmt.Sprintf("delivery budget exhausted after %d attempts", deliveries[entry.ID])
			if dlErr := a.stream.DeadLetter(ctx, a.group, entry, reason); dlErr != nil {
				slog.Warn("dead-letter failed", "entryId", entry.ID, "err", dlErr)
				continue
			}
			slog.Warn("dead-lettered entry", "entryId", entry.ID, "deliveries", deliveries[entry.ID])
			continue
		}
		retriable = append(retriable, entry)
	}
	if len(retriable) > 0 {
		slog.Info("reprocessing stale entries", "count", len(retriable))
		a.processBatch(ctx, retriable)
	}
}
