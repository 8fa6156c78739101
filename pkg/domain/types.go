package domain

import "time"

type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
)

type Emotion string

const (
	EmotionJoy      Emotion = "joy"
	EmotionSadness  Emotion = "sadness"
	EmotionAnger    Emotion = "anger"
	EmotionFear     Emotion = "fear"
	EmotionSurprise Emotion = "surprise"
	EmotionNeutral  Emotion = "neutral"
)

// Post is one social media post pulled off the stream.
type Post struct {
	PostID     string    `json:"postId"`
	Source     string    `json:"source"`
	Content    string    `json:"content"`
	Author     string    `json:"author"`
	CreatedAt  time.Time `json:"createdAt"`
	IngestedAt time.Time `json:"ingestedAt"`
}

// AnalysisResult is one classification pass over a post. A post accumulates
// one result per delivery, so redeliveries add rows rather than overwrite.
type AnalysisResult struct {
	PostID          string         `json:"postId"`
	ModelName       string         `json:"modelName"`
	SentimentLabel  SentimentLabel `json:"sentimentLabel"`
	ConfidenceScore float64        `json:"confidenceScore"`
	Emotion         Emotion        `json:"emotion,omitempty"`
	AnalyzedAt      time.Time      `json:"analyzedAt"`
}

// WindowCounts is a sentiment breakdown over a trailing time window.
type WindowCounts struct {
	Positive int64 `json:"positive"`
	Negative int64 `json:"negative"`
	Neutral  int64 `json:"neutral"`
	Total    int64 `json:"total_count"`
}

// AlertEvent records one firing of the negative-ratio monitor. Immutable once
// written.
type AlertEvent struct {
	AlertType     string       `json:"alertType"`
	Threshold     float64      `json:"threshold"`
	ActualRatio   float64      `json:"actualRatio"`
	WindowMinutes int          `json:"windowMinutes"`
	Metrics       WindowCounts `json:"metrics"`
	CreatedAt     time.Time    `json:"createdAt"`
}
