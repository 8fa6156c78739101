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
	LogLevel               string  `yaml:"logLevel"`
	DatabaseURL            string  `yaml:"databaseURL"`
	NegativeRatioThreshold float64 `yaml:"negativeRatioThreshold"`
	WindowMinutes          int     `yaml:"windowMinutes"`
	MinPosts               int64   `yaml:"minPosts"`
	CheckIntervalSeconds   int     `yaml:"checkIntervalSeconds"`
	AMQPURL                string  `yaml:"amqpUrl"`
	AMQPExchange           string  `yaml:"amqpExchange"`
}

// Load reads config from path (defaults to config.yaml); a missing file
// falls back to defaults. Environment variables override either.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{
		LogLevel:               "info",
		NegativeRatioThreshold: 2.0,
		WindowMinutes:          5,
		MinPosts:               10,
		CheckIntervalSeconds:   60,
		AMQPExchange:           "sentiment.alerts",
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
	if v := os.Getenv("ALERT_NEGATIVE_RATIO_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.NegativeRatioThreshold = f
		}
	}
	if v := os.Getenv("ALERT_WINDOW_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WindowMinutes = n
		}
	}
	if v := os.Getenv("ALERT_MIN_POSTS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MinPosts = n
		}
	}
	if v := os.Getenv("ALERT_CHECK_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CheckIntervalSeconds = n
		}
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("AMQP_EXCHANGE"); v != "" {
		cfg.AMQPExchange = v
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
	if cfg.NegativeRatioThreshold <= 0 {
		return errors.New("config: negativeRatioThreshold must be > 0")
	}
	if cfg.WindowMinutes <= 0 {
		return errors.New("config: windowMinutes must be > 0")
	}
	if cfg.MinPosts <= 0 {
		return errors.New("config: minPosts must be > 0")
	}
	if cfg.CheckIntervalSeconds <= 0 {
		return errors.New("config: checkIntervalSeconds must be > 0")
	}
	return nil
}
