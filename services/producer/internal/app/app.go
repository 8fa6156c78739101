package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"sentistream/internal/util"
	"sentistream/pkg/domain"
	"sentistream/pkg/stream"
)

// Publisher is the slice of the stream contract the producer needs.
type Publisher interface {
	Append(ctx context.Context, fields map[string]string) (string, error)
}

var positiveTemplates = []string{
	"I absolutely love %s!",
	"%s is amazing!",
	"%s exceeded my expectations!",
}

var negativeTemplates = []string{
	"Very disappointed with %s",
	"Terrible experience with %s",
	"I hate %s",
}

var neutralTemplates = []string{
	"Just tried %s",
	"Using %s for the first time",
	"Received %s today",
}

var products = []string{"iPhone 16", "ChatGPT", "Netflix", "Amazon Prime"}

var sources = []string{"reddit", "twitter", "linkedin"}

// Generator synthesizes posts from a fixed template and entity catalog.
type Generator struct {
	templates []string
}

func NewGenerator() *Generator {
	templates := make([]string, 0, len(positiveTemplates)+len(negativeTemplates)+len(neutralTemplates))
	templates = append(templates, positiveTemplates...)
	templates = append(templates, negativeTemplates...)
	templates = append(templates, neutralTemplates...)
	return &Generator{templates: templates}
}

// GeneratePost builds one synthetic post. Pure and side-effect-free; the
// post ID combines wall-clock milliseconds with random entropy so two posts
// generated in the same millisecond still get distinct IDs.
func (g *Generator) GeneratePost() domain.Post {
	template := g.templates[rand.Intn(len(g.templates))]
	content := fmt.Sprintf(template, products[rand.Intn(len(products))])
	return domain.Post{
		PostID:    fmt.Sprintf("post_%d_%s", time.Now().UnixMilli(), util.Entropy(4)),
		Source:    sources[rand.Intn(len(sources))],
		Content:   content,
		Author:    fmt.Sprintf("user_%d", 1000+rand.Intn(9000)),
		CreatedAt: time.Now().UTC(),
	}
}

// Config holds runtime configuration.
type Config struct {
	Stream   Publisher
	Rate     int           // posts per minute
	Duration time.Duration // 0 = run until canceled
}

// App publishes synthetic posts to the stream at a fixed rate.
type App struct {
	stream    Publisher
	generator *Generator
	rate      int
	duration  time.Duration
}

func New(cfg Config) (*App, error) {
	if cfg.Stream == nil {
		return nil, fmt.Errorf("stream required")
	}
	rate := cfg.Rate
	if rate <= 0 {
		rate = 60
	}
	return &App{
		stream:    cfg.Stream,
		generator: NewGenerator(),
		rate:      rate,
		duration:  cfg.Duration,
	}, nil
}

// Run publishes one post per interval until the context is canceled or the
// configured duration elapses. A failed append is logged and the post
// dropped; loss at this edge is tolerated.
func (a *App) Run(ctx context.Context) error {
	interval := time.Minute / time.Duration(a.rate)
	if a.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.duration)
		defer cancel()
	}

	slog.Info("producer started", "rate", a.rate, "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.publish(ctx)
		select {
		case <-ctx.Done():
			slog.Info("producer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (a *App) publish(ctx context.Context) {
	post := a.generator.GeneratePost()
	entryID, err := a.stream.Append(ctx, stream.EncodePost(post))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("failed to publish post, dropping", "postId", post.PostID, "err", err)
		return
	}
	slog.Debug("published post", "postId", post.PostID, "entryId", entryID)
}
