package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the memory service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	// ProviderMode selects the embedding/completion backend:
	// auto (openai when a key is set, mock otherwise), openai, or mock.
	ProviderMode         string
	OpenAIAPIKey         string
	OpenAIChatModel      string
	OpenAIEmbeddingModel string
	EmbeddingDim         int

	RetrievalTopK int

	TelegramToken       string
	TelegramAPIBase     string
	TelegramPollTimeout time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "mnemo"),
		AllowAnyOrigin:   false,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		ProviderMode:     envOrDefault("PROVIDER_MODE", "auto"),
		OpenAIAPIKey:     stringsTrimSpace("OPENAI_API_KEY"),
		// Mirror the models the hosted bot always used.
		OpenAIChatModel:      envOrDefault("OPENAI_CHAT_MODEL", "gpt-4o"),
		OpenAIEmbeddingModel: envOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-ada-002"),
		EmbeddingDim:         1536,
		RetrievalTopK:        5,
		TelegramToken:        stringsTrimSpace("TELEGRAM_BOT_TOKEN"),
		TelegramAPIBase:      envOrDefault("TELEGRAM_API_BASE", "https://api.telegram.org"),
		TelegramPollTimeout:  30 * time.Second,
		ShutdownTimeout:      15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TelegramPollTimeout, err = durationFromEnv("TELEGRAM_POLL_TIMEOUT", cfg.TelegramPollTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingDim, err = intFromEnv("APP_EMBEDDING_DIM", cfg.EmbeddingDim)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrievalTopK, err = intFromEnv("APP_RETRIEVAL_TOP_K", cfg.RetrievalTopK)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.ProviderMode))
	switch mode {
	case "auto", "openai", "mock":
		cfg.ProviderMode = mode
	default:
		return Config{}, fmt.Errorf("invalid PROVIDER_MODE: %q (expected auto|openai|mock)", cfg.ProviderMode)
	}
	if cfg.ProviderMode == "openai" && cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("PROVIDER_MODE=openai but OPENAI_API_KEY is not set")
	}
	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("APP_EMBEDDING_DIM must be positive")
	}
	if cfg.RetrievalTopK <= 0 {
		return Config{}, fmt.Errorf("APP_RETRIEVAL_TOP_K must be positive")
	}
	if cfg.TelegramPollTimeout < time.Second {
		return Config{}, fmt.Errorf("TELEGRAM_POLL_TIMEOUT must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("%s parse error: invalid boolean %q", key, v)
}
