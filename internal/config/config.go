package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Summary backends.
const (
	BackendAuto     = "auto"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// RateLimit is the quota for one tier.
type RateLimit struct {
	Max    int
	Window time.Duration
}

// Config contains all runtime settings for the shop assistant.
type Config struct {
	Port             string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         slog.Level

	OpenAIAPIKey   string
	ParamPrefix    string
	OpenAIBaseURL  string
	OpenAIModel    string
	GatewayTimeout time.Duration

	// Unset temperatures keep the usecase defaults.
	ChatTemperature    *float64
	SummaryTemperature *float64

	DatabaseURL        string
	SummaryBackend     string
	SummaryTable       string
	SummaryTTL         time.Duration
	SummaryReviewLimit int

	ChatLimit      RateLimit
	SummarizeLimit RateLimit
	APILimit       RateLimit

	TrustProxy  bool
	ServeStatic bool
	StaticDir   string
}

// Load reads environment variables and applies defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:               envOrDefault("PORT", "3000"),
		ShutdownTimeout:    15 * time.Second,
		MetricsNamespace:   envOrDefault("METRICS_NAMESPACE", "shop_assistant"),
		OpenAIAPIKey:       trimmed("OPENAI_API_KEY"),
		ParamPrefix:        trimmed("PARAM_PREFIX"),
		OpenAIBaseURL:      envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:        envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		GatewayTimeout:     30 * time.Second,
		DatabaseURL:        trimmed("DATABASE_URL"),
		SummaryBackend:     strings.ToLower(envOrDefault("SUMMARY_BACKEND", BackendAuto)),
		SummaryTable:       trimmed("SUMMARY_TABLE"),
		SummaryTTL:         7 * 24 * time.Hour,
		SummaryReviewLimit: 10,
		ChatLimit:          RateLimit{Max: 10, Window: 15 * time.Minute},
		SummarizeLimit:     RateLimit{Max: 5, Window: 15 * time.Minute},
		APILimit:           RateLimit{Max: 100, Window: 15 * time.Minute},
		StaticDir:          envOrDefault("STATIC_DIR", "client/dist"),
	}

	var err error
	if cfg.LogLevel, err = levelFromEnv("LOG_LEVEL", slog.LevelInfo); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationFromEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.GatewayTimeout, err = durationFromEnv("GATEWAY_TIMEOUT", cfg.GatewayTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ChatTemperature, err = floatFromEnv("CHAT_TEMPERATURE"); err != nil {
		return Config{}, err
	}
	if cfg.SummaryTemperature, err = floatFromEnv("SUMMARY_TEMPERATURE"); err != nil {
		return Config{}, err
	}
	if cfg.SummaryTTL, err = durationFromEnv("SUMMARY_TTL", cfg.SummaryTTL); err != nil {
		return Config{}, err
	}
	if cfg.SummaryReviewLimit, err = intFromEnv("SUMMARY_REVIEW_LIMIT", cfg.SummaryReviewLimit); err != nil {
		return Config{}, err
	}
	if cfg.ChatLimit, err = rateLimitFromEnv("CHAT", cfg.ChatLimit); err != nil {
		return Config{}, err
	}
	if cfg.SummarizeLimit, err = rateLimitFromEnv("SUMMARIZE", cfg.SummarizeLimit); err != nil {
		return Config{}, err
	}
	if cfg.APILimit, err = rateLimitFromEnv("API", cfg.APILimit); err != nil {
		return Config{}, err
	}
	if cfg.TrustProxy, err = boolFromEnv("TRUST_PROXY", false); err != nil {
		return Config{}, err
	}
	if cfg.ServeStatic, err = boolFromEnv("SERVE_STATIC", false); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric: %q", c.Port)
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if c.SummaryTTL <= 0 {
		return fmt.Errorf("SUMMARY_TTL must be positive")
	}
	if c.SummaryReviewLimit <= 0 {
		return fmt.Errorf("SUMMARY_REVIEW_LIMIT must be positive")
	}
	switch c.SummaryBackend {
	case BackendAuto, BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("SUMMARY_BACKEND=postgres requires DATABASE_URL")
		}
	case BackendDynamoDB:
		if c.SummaryTable == "" {
			return fmt.Errorf("SUMMARY_BACKEND=dynamodb requires SUMMARY_TABLE")
		}
	default:
		return fmt.Errorf("SUMMARY_BACKEND must be one of auto, memory, postgres, dynamodb: %q", c.SummaryBackend)
	}
	return nil
}

// ResolvedSummaryBackend turns auto into a concrete backend.
func (c Config) ResolvedSummaryBackend() string {
	if c.SummaryBackend != BackendAuto {
		return c.SummaryBackend
	}
	if c.DatabaseURL != "" {
		return BackendPostgres
	}
	return BackendMemory
}

// NeedsAWS reports whether any AWS client has to be configured.
func (c Config) NeedsAWS() bool {
	return (c.OpenAIAPIKey == "" && c.ParamPrefix != "") || c.ResolvedSummaryBackend() == BackendDynamoDB
}

func (c Config) Addr() string {
	return ":" + c.Port
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func trimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func rateLimitFromEnv(tier string, fallback RateLimit) (RateLimit, error) {
	maxKey := "RATE_LIMIT_" + tier + "_MAX"
	windowKey := "RATE_LIMIT_" + tier + "_WINDOW"
	n, err := intFromEnv(maxKey, fallback.Max)
	if err != nil {
		return RateLimit{}, err
	}
	window, err := durationFromEnv(windowKey, fallback.Window)
	if err != nil {
		return RateLimit{}, err
	}
	if n <= 0 {
		return RateLimit{}, fmt.Errorf("%s must be positive", maxKey)
	}
	if window <= 0 {
		return RateLimit{}, fmt.Errorf("%s must be positive", windowKey)
	}
	return RateLimit{Max: n, Window: window}, nil
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmed(key)
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
	v := trimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string) (*float64, error) {
	v := trimmed(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%s parse error: %w", key, err)
	}
	if f < 0 || f > 2 {
		return nil, fmt.Errorf("%s must be between 0 and 2", key)
	}
	return &f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmed(key))
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

func levelFromEnv(key string, fallback slog.Level) (slog.Level, error) {
	v := trimmed(key)
	if v == "" {
		return fallback, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return l, nil
}
