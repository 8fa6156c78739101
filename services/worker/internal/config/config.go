package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	LogLevel         string `yaml:"logLevel"`
	DatabaseURL      string `yaml:"databaseURL"`
	RedisAddr        string `yaml:"redisAddr"`
	RedisPassword    string `yaml:"redisPassword"`
	StreamKey        string `yaml:"streamKey"`
	ConsumerGroup    string `yaml:"consumerGroup"`
	ConsumerName     string `yaml:"consumerName"`
	ReadCount        int64  `yaml:"readCount"`
	BlockSeconds     int    `yaml:"blockSeconds"`
	Concurrency      int    `yaml:"concurrency"`
	ClaimIdleSeconds int    `yaml:"claimIdleSeconds"`
	MaxDeliveries    int64  `yaml:"maxDeliveries"`
	InferenceURL     string `yaml:"inferenceURL"`
	SentimentModel   string `yaml:"sentimentModel"`
	EmotionModel     string `yaml:"emotionModel"`
}

// Load reads config from path (defaults to config.yaml); a missing file
// falls back to defaults. Environment variables override either.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{
		LogLevel:         "info",
		RedisAddr:        "localhost:6379",
		StreamKey:        "social_posts_stream",
		ConsumerGroup:    "sentiment_workers",
		ReadCount:        10,
		BlockSeconds:     5,
		Concurrency:      10,
		ClaimIdleSeconds: 30,
		MaxDeliveries:    5,
		SentimentModel:   "distilbert-base-uncased-finetuned-sst-2-english",
		EmotionModel:     "j-hartmann/emotion-english-distilroberta-base",
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("STREAM_KEY"); v != "" {
		cfg.StreamKey = v
	}
	if v := os.Getenv("CONSUMER_GROUP"); v != "" {
		cfg.ConsumerGroup = v
	}
	if v := os.Getenv("CONSUMER_NAME"); v != "" {
		cfg.ConsumerName = v
	}
	if v := os.Getenv("READ_COUNT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ReadCount = n
		}
	}
	if v := os.Getenv("BLOCK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BlockSeconds = n
		}
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("CLAIM_IDLE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ClaimIdleSeconds = n
		}
	}
	if v := os.Getenv("MAX_DELIVERIES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxDeliveries = n
		}
	}
	if v := os.Getenv("INFERENCE_URL"); v != "" {
		cfg.InferenceURL = v
	}
	if v := os.Getenv("SENTIMENT_MODEL"); v != "" {
		cfg.SentimentModel = v
	}
	if v := os.Getenv("EMOTION_MODEL"); v != "" {
		cfg.EmotionModel = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.StreamKey == "" {
		return errors.New("config: streamKey is required (set in config.yaml or STREAM_KEY)")
	}
	if cfg.ConsumerGroup == "" {
		return errors.New("config: consumerGroup is required (set in config.yaml or CONSUMER_GROUP)")
	}
	if cfg.ReadCount <= 0 {
		return errors.New("config: readCount must be > 0")
	}
	if cfg.BlockSeconds <= 0 {
		return errors.New("config: blockSeconds must be > 0")
	}
	if cfg.Concurrency <= 0 {
		return errors.New("config: concurrency must be > 0")
	}
	if cfg.MaxDeliveries <= 0 {
		return errors.New("config: maxDeliveries must be > 0")
	}
	return nil
}
