package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the juniper message pipeline service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	// TokenBudget is the default assembled-context budget in tokens.
	// Callers may override it per message via capabilities.
	TokenBudget        int
	TokenizerModel     string
	TurnOverheadTokens int
	HistoryLimit       int

	RateWindow          time.Duration
	RateThreshold       int
	RateJanitorInterval time.Duration

	RetrievalWindow int
	RetrievalTopK   int
	EmbeddingDim    int
	EmbeddingModel  string

	BrainMode         string
	BrainHTTPURL      string
	BrainAPIKey       string
	GenerationModel   string
	DiagnosticModel   string
	GenerationTimeout time.Duration
	EmbeddingTimeout  time.Duration

	ModerationURL     string
	ModerationTimeout time.Duration

	MaxRetries     int
	RetryBaseDelay time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "juniper"),
		AllowAnyOrigin:   false,

		DatabaseURL: stringsTrimSpace("DATABASE_URL"),

		TokenBudget:        3000,
		TokenizerModel:     envOrDefault("TOKENIZER_MODEL", "gpt-4o-mini"),
		TurnOverheadTokens: 4,
		HistoryLimit:       50,

		RateWindow:          45 * time.Second,
		RateThreshold:       12,
		RateJanitorInterval: 30 * time.Second,

		RetrievalWindow: 200,
		RetrievalTopK:   3,
		EmbeddingDim:    1536,
		EmbeddingModel:  envOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),

		BrainMode:         envOrDefault("BRAIN_MODE", "auto"),
		BrainHTTPURL:      stringsTrimSpace("BRAIN_HTTP_URL"),
		BrainAPIKey:       stringsTrimSpace("BRAIN_API_KEY"),
		GenerationModel:   envOrDefault("GENERATION_MODEL", "gpt-4o-mini"),
		DiagnosticModel:   envOrDefault("DIAGNOSTIC_MODEL", "gpt-4o-mini"),
		GenerationTimeout: 60 * time.Second,
		EmbeddingTimeout:  10 * time.Second,

		ModerationURL:     stringsTrimSpace("MODERATION_URL"),
		ModerationTimeout: 5 * time.Second,

		MaxRetries:     2,
		RetryBaseDelay: 200 * time.Millisecond,

		ShutdownTimeout: 15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	cfg.TokenBudget, err = intFromEnv("TOKEN_BUDGET", cfg.TokenBudget)
	if err != nil {
		return Config{}, err
	}
	cfg.TurnOverheadTokens, err = intFromEnv("TURN_OVERHEAD_TOKENS", cfg.TurnOverheadTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}

	cfg.RateWindow, err = durationFromEnv("RATE_WINDOW", cfg.RateWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.RateThreshold, err = intFromEnv("RATE_THRESHOLD", cfg.RateThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.RateJanitorInterval, err = durationFromEnv("RATE_JANITOR_INTERVAL", cfg.RateJanitorInterval)
	if err != nil {
		return Config{}, err
	}

	cfg.RetrievalWindow, err = intFromEnv("RETRIEVAL_WINDOW", cfg.RetrievalWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrievalTopK, err = intFromEnv("RETRIEVAL_TOP_K", cfg.RetrievalTopK)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingDim, err = intFromEnv("EMBEDDING_DIM", cfg.EmbeddingDim)
	if err != nil {
		return Config{}, err
	}

	cfg.GenerationTimeout, err = durationFromEnv("GENERATION_TIMEOUT", cfg.GenerationTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingTimeout, err = durationFromEnv("EMBEDDING_TIMEOUT", cfg.EmbeddingTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ModerationTimeout, err = durationFromEnv("MODERATION_TIMEOUT", cfg.ModerationTimeout)
	if err != nil {
		return Config{}, err
	}

	cfg.MaxRetries, err = intFromEnv("MAX_RETRIES", cfg.MaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBaseDelay, err = durationFromEnv("RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	if err != nil {
		return Config{}, err
	}

	if cfg.TokenBudget <= 0 {
		return Config{}, fmt.Errorf("TOKEN_BUDGET must be positive")
	}
	if cfg.TurnOverheadTokens < 0 {
		return Config{}, fmt.Errorf("TURN_OVERHEAD_TOKENS must be >= 0")
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	if cfg.RateWindow < time.Second {
		return Config{}, fmt.Errorf("RATE_WINDOW must be at least 1s")
	}
	if cfg.RateThreshold <= 0 {
		return Config{}, fmt.Errorf("RATE_THRESHOLD must be positive")
	}
	if cfg.RetrievalWindow <= 0 {
		return Config{}, fmt.Errorf("RETRIEVAL_WINDOW must be positive")
	}
	if cfg.RetrievalTopK <= 0 {
		return Config{}, fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	}
	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("EMBEDDING_DIM must be positive")
	}
	if cfg.MaxRetries < 0 {
		return Config{}, fmt.Errorf("MAX_RETRIES must be >= 0")
	}
	if cfg.RetryBaseDelay < 0 {
		return Config{}, fmt.Errorf("RETRY_BASE_DELAY must be >= 0")
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
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
