// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"ingestor/internal/fetcher"
	"ingestor/internal/source"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath     string
	LogLevel         string
	Interval         time.Duration
	Schedule         string
	Concurrency      int
	FetchTimeout     time.Duration
	FetchRetries     int
	UserAgent        string
	ArxivQuery       string
	SourcesFile      string
	MetricsAddr      string
	TelegramBotToken string
	TelegramChatID   int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath: envOr("DATABASE_PATH", "./data/ingestor.db"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		Schedule:     os.Getenv("INGESTION_SCHEDULE"),
		UserAgent:    envOr("USER_AGENT", fetcher.DefaultUserAgent),
		ArxivQuery:   envOr("ARXIV_QUERY", source.DefaultArxivQuery),
		SourcesFile:  os.Getenv("SOURCES_FILE"),
		MetricsAddr:  os.Getenv("METRICS_ADDR"),
	}

	intervalSecs, err := positiveInt("INGESTION_INTERVAL_SECS", 3600)
	if err != nil {
		return nil, err
	}
	cfg.Interval = time.Duration(intervalSecs) * time.Second

	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return nil, fmt.Errorf("invalid INGESTION_SCHEDULE %q: %w", cfg.Schedule, err)
		}
	}

	if cfg.Concurrency, err = positiveInt("INGEST_CONCURRENCY", 1); err != nil {
		return nil, err
	}

	timeoutSecs, err := positiveInt("FETCH_TIMEOUT_SECS", 30)
	if err != nil {
		return nil, err
	}
	cfg.FetchTimeout = time.Duration(timeoutSecs) * time.Second

	if raw := os.Getenv("FETCH_RETRIES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid FETCH_RETRIES %q", raw)
		}
		cfg.FetchRetries = n
	} else {
		cfg.FetchRetries = 2
	}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
		}
		cfg.TelegramChatID = id
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	return cfg, nil
}

// NotifyEnabled reports whether cycle failures should be sent to Telegram.
func (c *Config) NotifyEnabled() bool {
	return c.TelegramBotToken != ""
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func positiveInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
