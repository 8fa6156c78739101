package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"sentistream/pkg/domain"
)

const migrateLockID int64 = 54815481

// GormStore implements Store using GORM + Postgres. The *gorm.DB connection
// pool is shared across all worker tasks and the monitor; each logical write
// is one short transaction.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock,
// so concurrently booting workers do not race the schema.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&PostModel{}, &AnalysisModel{}, &AlertModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SavePostAnalysis is the idempotent write path. The lookup-then-insert is
// backed by the unique index on post_id: a concurrent duplicate delivery
// fails the losing insert and rolls back the whole transaction, and the
// redelivered entry succeeds on its next pass.
func (s *GormStore) SavePostAnalysis(ctx context.Context, post domain.Post, analysis domain.AnalysisResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing PostModel
		err := tx.Where("post_id = ?", post.PostID).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			ingested := post.IngestedAt
			if ingested.IsZero() {
				ingested = time.Now().UTC()
			}
			model := PostModel{
				PostID:     post.PostID,
				Source:     post.Source,
				Content:    post.Content,
				Author:     post.Author,
				CreatedAt:  post.CreatedAt,
				IngestedAt: ingested,
			}
			if err := tx.Create(&model).Error; err != nil {
				return fmt.Errorf("insert post: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("lookup post: %w", err)
		}

		analyzed := analysis.AnalyzedAt
		if analyzed.IsZero() {
			analyzed = time.Now().UTC()
		}
		model := AnalysisModel{
			PostID:          post.PostID,
			ModelName:       analysis.ModelName,
			SentimentLabel:  string(analysis.SentimentLabel),
			ConfidenceScore: analysis.ConfidenceScore,
			Emotion:         string(analysis.Emotion),
			AnalyzedAt:      analyzed,
		}
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}
		return nil
	})
}

// WindowCounts groups analyses joined to posts since the given instant by
// sentiment label.
func (s *GormStore) WindowCounts(ctx context.Context, since time.Time) (domain.WindowCounts, error) {
	var rows []struct {
		SentimentLabel string
		Count          int64
	}
	err := s.db.WithContext(ctx).
		Model(&AnalysisModel{}).
		Select("analysis_models.sentiment_label, count(*) as count").
		Joins("JOIN post_models ON post_models.post_id = analysis_models.post_id").
		Where("analysis_models.analyzed_at >= ?", since).
		Group("analysis_models.sentiment_label").
		Scan(&rows).Error
	if err != nil {
		return domain.WindowCounts{}, fmt.Errorf("window counts: %w", err)
	}

	var counts domain.WindowCounts
	for _, row := range rows {
		switch domain.SentimentLabel(row.SentimentLabel) {
		case domain.SentimentPositive:
			counts.Positive = row.Count
		case domain.SentimentNegative:
			counts.Negative = row.Count
		case domain.SentimentNeutral:
			counts.Neutral = row.Count
		}
	}
	counts.Total = counts.Positive + counts.Negative + counts.Neutral
	return counts, nil
}

// InsertAlert appends one alert row with the counts snapshot as JSON.
func (s *GormStore) InsertAlert(ctx context.Context, alert domain.AlertEvent) error {
	metrics, err := json.Marshal(alert.Metrics)
	if err != nil {
		return fmt.Errorf("marshal alert metrics: %w", err)
	}
	created := alert.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	model := AlertModel{
		AlertType:     alert.AlertType,
		Threshold:     alert.Threshold,
		ActualRatio:   alert.ActualRatio,
		WindowMinutes: alert.WindowMinutes,
		Metrics:       datatypes.JSON(metrics),
		CreatedAt:     created,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// GetPost looks up a post by its natural key.
func (s *GormStore) GetPost(ctx context.Context, postID string) (domain.Post, bool, error) {
	var model PostModel
	if err := s.db.WithContext(ctx).Where("post_id = ?", postID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Post{}, false, nil
		}
		return domain.Post{}, false, err
	}
	return postFromModel(model), true, nil
}

// AnalysisCount returns how many analysis rows reference a post.
func (s *GormStore) AnalysisCount(ctx context.Context, postID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&AnalysisModel{}).Where("post_id = ?", postID).Count(&count).Error
	return count, err
}

// ListAlerts returns the most recent alerts, newest first.
func (s *GormStore) ListAlerts(ctx context.Context, limit int) ([]domain.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []AlertModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	alerts := make([]domain.AlertEvent, 0, len(models))
	for _, m := range models {
		alert := domain.AlertEvent{
			AlertType:     m.AlertType,
			Threshold:     m.Threshold,
			ActualRatio:   m.ActualRatio,
			WindowMinutes: m.WindowMinutes,
			CreatedAt:     m.CreatedAt,
		}
		_ = json.Unmarshal(m.Metrics, &alert.Metrics)
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func postFromModel(m PostModel) domain.Post {
	return domain.Post{
		PostID:     m.PostID,
		Source:     m.Source,
		Content:    m.Content,
		Author:     m.Author,
		CreatedAt:  m.CreatedAt,
		IngestedAt: m.IngestedAt,
	}
}
