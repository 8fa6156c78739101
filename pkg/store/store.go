package store

import (
	"context"
	"time"

	"sentistream/pkg/domain"
)

// Store is the persistence boundary shared by the worker pool (write path)
// and the alert monitor (window reads + alert writes).
type Store interface {
	// SavePostAnalysis persists the post (first writer wins on post_id) and
	// a new analysis row in one transaction. Safe under redelivery: saving
	// the same post N times yields one post row and N analysis rows.
	SavePostAnalysis(ctx context.Context, post domain.Post, analysis domain.AnalysisResult) error

	// WindowCounts aggregates analyses joined to posts since the given
	// instant, grouped by sentiment label. Absent labels count as zero.
	WindowCounts(ctx context.Context, since time.Time) (domain.WindowCounts, error)

	// InsertAlert appends one immutable alert event.
	InsertAlert(ctx context.Context, alert domain.AlertEvent) error

	GetPost(ctx context.Context, postID string) (domain.Post, bool, error)
	AnalysisCount(ctx context.Context, postID string) (int64, error)
	ListAlerts(ctx context.Context, limit int) ([]domain.AlertEvent, error)
}
