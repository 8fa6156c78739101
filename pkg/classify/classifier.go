package classify

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"sentistream/pkg/domain"
)

// ErrEmptyText is returned when classification is asked for blank input.
var ErrEmptyText = errors.New("text cannot be empty")

// Text shorter than this (trimmed, in runes) is not worth a model call;
// near-empty strings classify unstably.
const minClassifiableRunes = 10

const batchConcurrency = 4

// Score is one class score as reported by the inference backend.
type Score struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Backend returns all class scores for a text under a named model. One
// concrete implementation per inference provider, chosen at construction.
type Backend interface {
	Scores(ctx context.Context, model, text string) ([]Score, error)
}

type SentimentResult struct {
	Label           domain.SentimentLabel `json:"sentimentLabel"`
	ConfidenceScore float64               `json:"confidenceScore"`
	ModelName       string                `json:"modelName"`
}

type EmotionResult struct {
	Emotion         domain.Emotion `json:"emotion"`
	ConfidenceScore float64        `json:"confidenceScore"`
	ModelName       string         `json:"modelName"`
}

var allowedEmotions = map[domain.Emotion]bool{
	domain.EmotionJoy:      true,
	domain.EmotionSadness:  true,
	domain.EmotionAnger:    true,
	domain.EmotionFear:     true,
	domain.EmotionSurprise: true,
	domain.EmotionNeutral:  true,
}

// Analyzer applies sentiment and emotion classification policy on top of a
// Backend. Construct once per process and inject; backends may hold warm
// model state that is expensive to duplicate.
type Analyzer struct {
	backend        Backend
	sentimentModel string
	emotionModel   string
}

func NewAnalyzer(backend Backend, sentimentModel, emotionModel string) *Analyzer {
	return &Analyzer{
		backend:        backend,
		sentimentModel: sentimentModel,
		emotionModel:   emotionModel,
	}
}

// Sentiment classifies one text. Blank input is an error; short input is
// short-circuited to a neutral low-information default; a failing backend
// degrades to neutral with zero confidence instead of failing the caller.
func (a *Analyzer) Sentiment(ctx context.Context, text string) (SentimentResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return SentimentResult{}, ErrEmptyText
	}
	if utf8.RuneCountInString(trimmed) < minClassifiableRunes {
		return SentimentResult{
			Label:           domain.SentimentNeutral,
			ConfidenceScore: 0.5,
			ModelName:       a.sentimentModel,
		}, nil
	}

	scores, err := a.backend.Scores(ctx, a.sentimentModel, text)
	if err != nil || len(scores) == 0 {
		if err != nil {
			slog.Warn("sentiment backend unavailable, defaulting to neutral", "model", a.sentimentModel, "err", err)
		}
		return SentimentResult{
			Label:           domain.SentimentNeutral,
			ConfidenceScore: 0,
			ModelName:       a.sentimentModel,
		}, nil
	}

	best := bestScore(scores)
	label := domain.SentimentLabel(strings.ToLower(best.Label))
	if label != domain.SentimentPositive && label != domain.SentimentNegative {
		label = domain.SentimentNeutral
	}
	return SentimentResult{
		Label:           label,
		ConfidenceScore: round4(best.Score),
		ModelName:       a.sentimentModel,
	}, nil
}

// Emotion detects the dominant emotion with the same blank/short-text policy
// as Sentiment. Labels outside the emotion vocabulary fold to neutral.
func (a *Analyzer) Emotion(ctx context.Context, text string) (EmotionResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return EmotionResult{}, ErrEmptyText
	}
	if utf8.RuneCountInString(trimmed) < minClassifiableRunes {
		return EmotionResult{
			Emotion:         domain.EmotionNeutral,
			ConfidenceScore: 0.5,
			ModelName:       a.emotionModel,
		}, nil
	}

	scores, err := a.backend.Scores(ctx, a.emotionModel, text)
	if err != nil || len(scores) == 0 {
		if err != nil {
			slog.Warn("emotion backend unavailable, defaulting to neutral", "model", a.emotionModel, "err", err)
		}
		return EmotionResult{
			Emotion:         domain.EmotionNeutral,
			ConfidenceScore: 0,
			ModelName:       a.emotionModel,
		}, nil
	}

	best := bestScore(scores)
	emotion := domain.Emotion(strings.ToLower(best.Label))
	if !allowedEmotions[emotion] {
		emotion = domain.EmotionNeutral
	}
	return EmotionResult{
		Emotion:         emotion,
		ConfidenceScore: round4(best.Score),
		ModelName:       a.emotionModel,
	}, nil
}

// BatchSentiment classifies each text independently. Blank entries and
// per-item failures resolve to a neutral placeholder; one bad item never
// fails its siblings.
func (a *Analyzer) BatchSentiment(ctx context.Context, texts []string) []SentimentResult {
	results := make([]SentimentResult, len(texts))
	placeholder := SentimentResult{
		Label:           domain.SentimentNeutral,
		ConfidenceScore: 0,
		ModelName:       a.sentimentModel,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, text := range texts {
		i, text := i, text
		if strings.TrimSpace(text) == "" {
			results[i] = placeholder
			continue
		}
		g.Go(func() error {
			res, err := a.Sentiment(gctx, text)
			if err != nil {
				results[i] = placeholder
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func bestScore(scores []Score) Score {
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return best
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
