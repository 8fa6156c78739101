package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type PostModel struct {
	ID         uint   `gorm:"primaryKey"`
	PostID     string `gorm:"uniqueIndex;not null"`
	Source     string `gorm:"not null;index"`
	Content    string `gorm:"type:text;not null"`
	Author     string
	CreatedAt  time.Time `gorm:"not null;index"`
	IngestedAt time.Time `gorm:"not null"`
}

type AnalysisModel struct {
	ID              uint   `gorm:"primaryKey"`
	PostID          string `gorm:"not null;index"`
	ModelName       string `gorm:"not null"`
	SentimentLabel  string `gorm:"not null;index"`
	ConfidenceScore float64
	Emotion         string
	AnalyzedAt      time.Time `gorm:"not null;index"`
}

type AlertModel struct {
	ID            uint   `gorm:"primaryKey"`
	AlertType     string `gorm:"not null;index"`
	Threshold     float64
	ActualRatio   float64
	WindowMinutes int
	Metrics       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"not null;index"`
}
