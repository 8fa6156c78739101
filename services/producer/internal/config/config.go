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
	LogLevel        string `yaml:"logLevel"`
	RedisAddr       string `yaml:"redisAddr"`
	RedisPassword   string `yaml:"redisPassword"`
	StreamKey       string `yaml:"streamKey"`
	StreamMaxLen    int64  `yaml:"streamMaxLen"`
	PublishRate     int    `yaml:"publishRate"`
	DurationSeconds int    `yaml:"durationSeconds"`
}

// Load reads config from path (defaults to config.yaml); a missing file
// falls back to defaults. Environment variables override either.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{
		LogLevel:     "info",
		RedisAddr:    "localhost:6379",
		StreamKey:    "social_posts_stream",
		StreamMaxLen: 10000,
		PublishRate:  60,
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
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("STREAM_KEY"); v != "" {
		cfg.StreamKey = v
	}
	if v := os.Getenv("STREAM_MAX_LEN"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.StreamMaxLen = n
		}
	}
	if v := os.Getenv("PUBLISH_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PublishRate = n
		}
	}
	if v := os.Getenv("PUBLISH_DURATION_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DurationSeconds = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.StreamKey == "" {
		return errors.New("config: streamKey is required (set in config.yaml or STREAM_KEY)")
	}
	if cfg.PublishRate <= 0 {
		return errors.New("config: publishRate must be > 0 (set in config.yaml or PUBLISH_RATE)")
	}
	if cfg.DurationSeconds < 0 {
		return errors.New("config: durationSeconds must be >= 0")
	}
	return nil
}
