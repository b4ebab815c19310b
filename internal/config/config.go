// ABOUTME: Centralized configuration for the duet agent
// ABOUTME: Loads from environment variables with validation and defaults
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// History backends
const (
	BackendSQLite = "sqlite"
	BackendCharm  = "charm"
	BackendBolt   = "bolt"
)

// Idle selection strategies
const (
	StrategyRecency   = "recency"
	StrategyAffection = "affection"
)

// Config holds all configuration for the agent
type Config struct {
	// OpenAI settings
	OpenAIKey      string
	OpenAIBaseURL  string
	ChatModel      string
	FastModel      string
	EmbeddingModel string
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration

	// Storage settings
	DBPath         string
	HistoryBackend string
	BoltPath       string
	CharmHost      string
	CharmDBName    string
	AutoSync       bool

	// Orchestration settings
	MaxToolSteps    int
	HistoryCap      int
	ContextWindow   int
	VectorThreshold float64
	RestartMarker   string

	// Proactive behaviour
	IdleAfter                time.Duration
	IdleProbabilityThreshold float64
	IdleStrategy             string
	ReflectionAt             string
	BriefingAt               string
	Heartbeat                time.Duration

	// Observability
	MetricsAddr string
	LogLevel    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	chatModel := getEnv("DUET_CHAT_MODEL", "gpt-4o-mini")

	cfg := &Config{
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		ChatModel:      chatModel,
		FastModel:      getEnv("DUET_FAST_MODEL", chatModel),
		EmbeddingModel: getEnv("DUET_EMBEDDING_MODEL", "text-embedding-3-small"),
		Timeout:        getEnvDuration("OPENAI_TIMEOUT", 60*time.Second),
		MaxRetries:     getEnvInt("OPENAI_MAX_RETRIES", 2),
		RetryDelay:     getEnvDuration("OPENAI_RETRY_DELAY", time.Second),

		DBPath:         os.Getenv("DUET_DB_PATH"),
		HistoryBackend: strings.ToLower(getEnv("DUET_HISTORY_BACKEND", BackendSQLite)),
		BoltPath:       os.Getenv("DUET_BOLT_PATH"),
		CharmHost:      getEnv("CHARM_HOST", "cloud.charm.sh"),
		CharmDBName:    getEnv("CHARM_DB", "duet"),
		AutoSync:       getEnvBool("CHARM_AUTO_SYNC", true),

		MaxToolSteps:    getEnvInt("DUET_MAX_TOOL_STEPS", 5),
		HistoryCap:      getEnvInt("DUET_HISTORY_CAP", 60),
		ContextWindow:   getEnvInt("DUET_CONTEXT_WINDOW", 20),
		VectorThreshold: getEnvFloat("DUET_VECTOR_THRESHOLD", 0.8),
		RestartMarker:   getEnv("DUET_RESTART_MARKER", "[[SYSTEM_RESTART]]"),

		IdleAfter:                getEnvDuration("DUET_IDLE_AFTER", 60*time.Minute),
		IdleProbabilityThreshold: getEnvFloat("DUET_IDLE_PROBABILITY_THRESHOLD", 0.7),
		IdleStrategy:             strings.ToLower(getEnv("DUET_IDLE_STRATEGY", StrategyRecency)),
		ReflectionAt:             getEnv("DUET_REFLECTION_AT", "03:00"),
		BriefingAt:               getEnv("DUET_BRIEFING_AT", "08:00"),
		Heartbeat:                getEnvDuration("DUET_HEARTBEAT", 60*time.Second),

		MetricsAddr: os.Getenv("DUET_METRICS_ADDR"),
		LogLevel:    getEnv("DUET_LOG_LEVEL", "info"),
	}

	return cfg, cfg.Validate()
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("OPENAI_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	if c.MaxToolSteps < 1 || c.MaxToolSteps > 20 {
		return fmt.Errorf("DUET_MAX_TOOL_STEPS must be 1-20, got %d", c.MaxToolSteps)
	}
	if c.ContextWindow < 1 {
		return fmt.Errorf("DUET_CONTEXT_WINDOW must be positive, got %d", c.ContextWindow)
	}
	if c.HistoryCap < c.ContextWindow {
		return fmt.Errorf("DUET_HISTORY_CAP (%d) must be >= DUET_CONTEXT_WINDOW (%d)", c.HistoryCap, c.ContextWindow)
	}
	if c.VectorThreshold < 0 || c.VectorThreshold > 1 {
		return fmt.Errorf("DUET_VECTOR_THRESHOLD must be 0-1, got %f", c.VectorThreshold)
	}
	if c.IdleProbabilityThreshold < 0 || c.IdleProbabilityThreshold > 1 {
		return fmt.Errorf("DUET_IDLE_PROBABILITY_THRESHOLD must be 0-1, got %f", c.IdleProbabilityThreshold)
	}
	if c.Heartbeat <= 0 {
		return fmt.Errorf("DUET_HEARTBEAT must be positive, got %v", c.Heartbeat)
	}
	switch c.HistoryBackend {
	case BackendSQLite, BackendCharm, BackendBolt:
	default:
		return fmt.Errorf("DUET_HISTORY_BACKEND must be %q, %q or %q, got %q", BackendSQLite, BackendCharm, BackendBolt, c.HistoryBackend)
	}
	switch c.IdleStrategy {
	case StrategyRecency, StrategyAffection:
	default:
		return fmt.Errorf("DUET_IDLE_STRATEGY must be %q or %q, got %q", StrategyRecency, StrategyAffection, c.IdleStrategy)
	}
	if _, _, err := ParseClock(c.ReflectionAt); err != nil {
		return fmt.Errorf("DUET_REFLECTION_AT: %w", err)
	}
	if _, _, err := ParseClock(c.BriefingAt); err != nil {
		return fmt.Errorf("DUET_BRIEFING_AT: %w", err)
	}
	return nil
}

// ParseClock parses an "HH:MM" local time of day
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	return t.Hour(), t.Minute(), nil
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
