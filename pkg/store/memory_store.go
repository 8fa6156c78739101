package store

import (
	"context"
	"sync"
	"time"

	"sentistream/pkg/domain"
)

// MemoryStore keeps everything in-process. It mirrors the Postgres store's
// semantics — one post row per post_id, analyses accumulate — and backs the
// worker and monitor tests.
type MemoryStore struct {
	mu       sync.RWMutex
	posts    map[string]domain.Post
	analyses []domain.AnalysisResult
	alerts   []domain.AlertEvent
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts: make(map[string]domain.Post),
	}
}

func (m *MemoryStore) SavePostAnalysis(_ context.Context, post domain.Post, analysis domain.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.posts[post.PostID]; !exists {
		if post.IngestedAt.IsZero() {
			post.IngestedAt = time.Now().UTC()
		}
		m.posts[post.PostID] = post
	}
	if analysis.AnalyzedAt.IsZero() {
		analysis.AnalyzedAt = time.Now().UTC()
	}
	m.analyses = append(m.analyses, analysis)
	return nil
}

func (m *MemoryStore) WindowCounts(_ context.Context, since time.Time) (domain.WindowCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var counts domain.WindowCounts
	for _, a := range m.analyses {
		if a.AnalyzedAt.Before(since) {
			continue
		}
		if _, ok := m.posts[a.PostID]; !ok {
			continue
		}
		switch a.SentimentLabel {
		case domain.SentimentPositive:
			counts.Positive++
		case domain.SentimentNegative:
			counts.Negative++
		case domain.SentimentNeutral:
			counts.Neutral++
		}
	}
	counts.Total = counts.Positive + counts.Negative + counts.Neutral
	return counts, nil
}

func (m *MemoryStore) InsertAlert(_ context.Context, alert domain.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *MemoryStore) GetPost(_ context.Context, postID string) (domain.Post, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	post, ok := m.posts[postID]
	return post, ok, nil
}

func (m *MemoryStore) AnalysisCount(_ context.Context, postID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, a := range m.analyses {
		if a.PostID == postID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) ListAlerts(_ context.Context, limit int) ([]domain.AlertEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.alerts) {
		limit = len(m.alerts)
	}
	res := make([]domain.AlertEvent, 0, limit)
	for i := len(m.alerts) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, m.alerts[i])
	}
	return res, nil
}
