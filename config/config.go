package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// VectorBackend selects the vector store implementation.
type VectorBackend string

const (
	// VectorBackendBadger is the embedding-backed similarity index persisted in BadgerDB.
	VectorBackendBadger VectorBackend = "badger"
	// VectorBackendSQLite is the SQLite index using the sqlite-vec extension.
	VectorBackendSQLite VectorBackend = "sqlite"
	// VectorBackendLexical is the token-overlap fallback needing no embedding service.
	VectorBackendLexical VectorBackend = "lexical"
)

// Config captures runtime configuration for the marketlens service.
type Config struct {
	// Ingestion
	EnableLiveSources  bool
	EnabledSources     []string
	EnableSeedData     bool
	SeedOnlyWhenNoLive bool
	EnableMarketQuotes bool
	UserAgent          string

	// Outbound HTTP
	HTTPTimeout time.Duration
	HTTPRetries int
	HTTPBackoff time.Duration

	// Vector store
	EnableVectorStore bool
	VectorBackend     VectorBackend
	VectorPath        string
	SQLiteDSN         string

	// AI collaborators
	LLMAPIKey        string
	LLMBaseURL       string
	LLMModel         string
	LLMTemperature   float64
	LLMMaxTokens     int
	EmbeddingBaseURL string
	EmbeddingModel   string

	// Analysis
	AnalysisCacheTTL time.Duration
	AnalysisTopK     int

	// Task queue
	TaskQueueMaxTasks int
	TaskQueueWorkers  int
}

// FromEnv creates a configuration instance sourced from environment variables.
// Unset variables fall back to defaults suitable for local development.
func FromEnv() (Config, error) {
	cfg := Config{
		EnableLiveSources:  getBool("ML_ENABLE_LIVE_SOURCES", false),
		EnabledSources:     getList("ML_SOURCES"),
		EnableSeedData:     getBool("ML_ENABLE_SEED_DATA", true),
		SeedOnlyWhenNoLive: getBool("ML_SEED_ONLY_WHEN_NO_LIVE", true),
		EnableMarketQuotes: getBool("ML_ENABLE_MARKET_QUOTES", false),
		UserAgent:          getEnv("ML_USER_AGENT", "marketlens/0.1 (contact: research@example.com)"),

		HTTPTimeout: 20 * time.Second,
		HTTPRetries: 3,
		HTTPBackoff: 500 * time.Millisecond,

		EnableVectorStore: getBool("ML_ENABLE_VECTOR_STORE", true),
		VectorBackend:     VectorBackend(getEnv("ML_VECTOR_BACKEND", string(VectorBackendLexical))),
		VectorPath:        getEnv("ML_VECTOR_PATH", "data/vectors"),
		SQLiteDSN:         getEnv("ML_SQLITE_DSN", "data/vectors.db"),

		LLMAPIKey:        getEnv("ML_LLM_API_KEY", ""),
		LLMBaseURL:       getEnv("ML_LLM_BASE_URL", "https://dashscope-intl.aliyuncs.com/compatible-mode/v1"),
		LLMModel:         getEnv("ML_LLM_MODEL", "qwen-plus"),
		LLMTemperature:   0.3,
		LLMMaxTokens:     1200,
		EmbeddingBaseURL: getEnv("ML_EMBEDDING_BASE_URL", ""),
		EmbeddingModel:   getEnv("ML_EMBEDDING_MODEL", "text-embedding-v3"),

		AnalysisCacheTTL: 10 * time.Minute,
		AnalysisTopK:     6,

		TaskQueueMaxTasks: 300,
		TaskQueueWorkers:  4,
	}

	if err := parseDuration("ML_HTTP_TIMEOUT", &cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}
	if err := parseInt("ML_HTTP_RETRIES", &cfg.HTTPRetries); err != nil {
		return Config{}, err
	}
	if err := parseDuration("ML_HTTP_BACKOFF", &cfg.HTTPBackoff); err != nil {
		return Config{}, err
	}
	if err := parseFloat("ML_LLM_TEMPERATURE", &cfg.LLMTemperature); err != nil {
		return Config{}, err
	}
	if err := parseInt("ML_LLM_MAX_TOKENS", &cfg.LLMMaxTokens); err != nil {
		return Config{}, err
	}
	if err := parseDuration("ML_ANALYSIS_CACHE_TTL", &cfg.AnalysisCacheTTL); err != nil {
		return Config{}, err
	}
	if err := parseInt("ML_ANALYSIS_TOP_K", &cfg.AnalysisTopK); err != nil {
		return Config{}, err
	}
	if err := parseInt("ML_TASK_QUEUE_MAX_TASKS", &cfg.TaskQueueMaxTasks); err != nil {
		return Config{}, err
	}
	if err := parseInt("ML_TASK_QUEUE_WORKERS", &cfg.TaskQueueWorkers); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise fail deep inside a refresh
// or analysis call.
func (c Config) Validate() error {
	switch c.VectorBackend {
	case VectorBackendBadger, VectorBackendSQLite, VectorBackendLexical:
	default:
		return fmt.Errorf("config: unsupported vector backend %q", c.VectorBackend)
	}
	if c.HTTPRetries < 0 {
		return fmt.Errorf("config: HTTP retries cannot be negative")
	}
	if c.AnalysisTopK < 1 {
		return fmt.Errorf("config: analysis top-k must be at least 1")
	}
	if c.TaskQueueWorkers < 1 {
		return fmt.Errorf("config: task queue workers must be at least 1")
	}
	return nil
}

// SourceEnabled reports whether a named source should run this cycle.
// An empty ML_SOURCES list enables every registered source.
func (c Config) SourceEnabled(name string) bool {
	if !c.EnableLiveSources {
		return false
	}
	if len(c.EnabledSources) == 0 {
		return true
	}
	for _, enabled := range c.EnabledSources {
		if strings.EqualFold(enabled, name) {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}

func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func parseInt(key string, out *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*out = value
	return nil
}

func parseFloat(key string, out *float64) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*out = value
	return nil
}

func parseDuration(key string, out *time.Duration) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*out = value
	return nil
}
