// Package config defines the validated configuration schema for the
// semantic cache engine and loads it from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cacheforge/semcache/cerr"
	"github.com/joho/godotenv"
)

// EvictionStrategy selects the L1 eviction policy.
type EvictionStrategy string

const (
	EvictionRecency   EvictionStrategy = "recency"
	EvictionFrequency EvictionStrategy = "frequency"
	EvictionAge       EvictionStrategy = "age"
)

// VectorizerProvider enumerates supported embedding providers.
type VectorizerProvider string

const (
	VectorizerOpenAI      VectorizerProvider = "openai"
	VectorizerHuggingFace VectorizerProvider = "huggingface"
	VectorizerCohere      VectorizerProvider = "cohere"
	VectorizerVertexAI    VectorizerProvider = "vertexai"
	VectorizerVoyageAI    VectorizerProvider = "voyageai"
)

// RerankerProvider enumerates supported reranker providers.
type RerankerProvider string

const (
	RerankerHuggingFace RerankerProvider = "huggingface"
	RerankerCohere      RerankerProvider = "cohere"
	RerankerVoyageAI    RerankerProvider = "voyageai"
)

// VectorizerConfig configures the pluggable embedding provider.
type VectorizerConfig struct {
	Provider  VectorizerProvider `validate:"required,oneof=openai huggingface cohere vertexai voyageai"`
	Model     string             `validate:"required"`
	APIConfig map[string]string
}

// RerankerConfig configures the optional reranking pass.
type RerankerConfig struct {
	Enabled   bool
	Provider  RerankerProvider `validate:"required_if=Enabled true,omitempty,oneof=huggingface cohere voyageai"`
	Model     string           `validate:"required_if=Enabled true"`
	Limit     int              `validate:"gte=0"`
	APIConfig map[string]string
}

// L1CacheConfig configures the bounded in-process tier.
type L1CacheConfig struct {
	Enabled          bool
	MaxSize          int              `validate:"gt=0"`
	TTLSeconds       int              `validate:"gte=0"`
	EvictionStrategy EvictionStrategy `validate:"oneof=recency frequency age"`
}

// ObservabilityConfig configures metrics and tracing surfaces.
type ObservabilityConfig struct {
	EnableDetailedMetrics bool
	MetricsPrefix         string `validate:"required"`
	EnableTracing         bool
	TracingExporter       string
	TracingEndpoint       string
	ServiceName           string
}

// Config is the validated, top-level configuration object described
// in spec §6. Zero-value fields are filled by Defaults before Load
// validates the result.
type Config struct {
	RedisURL          string  `validate:"required"`
	Name              string  `validate:"required"`
	TTL               int     `validate:"gt=0"`
	Overwrite         bool
	DistanceThreshold float64 `validate:"gte=0,lte=2"`
	TopK              int     `validate:"gt=0"`

	Vectorizer VectorizerConfig
	Reranker   RerankerConfig
	L1Cache    L1CacheConfig

	EnableContextHashing bool
	ContextFields        []string `validate:"required,min=1"`
	ContextHitKeyField   string

	EnableTags      bool
	MaxTagsPerEntry int `validate:"gte=0"`

	EnableStaleWhileRevalidate bool
	StaleToleranceSeconds      int `validate:"gte=0"`
	MaxStaleAgeSeconds         int `validate:"gte=0"`

	EnableVersionChecking bool
	CacheVersion          string `validate:"required"`

	Observability ObservabilityConfig

	RedisTimeout       time.Duration `validate:"gt=0"`
	EmbedTimeout       time.Duration `validate:"gt=0"`
	MaxRetries         int           `validate:"gte=0"`
	RetryBackoffBaseMs int           `validate:"gte=0"`

	// Process-level settings for the demonstration server in
	// cmd/semcached; not part of the cache engine contract itself.
	Env             string
	AdminAddr       string
	GracefulTimeout time.Duration
	RequestTimeout  time.Duration `validate:"gt=0"`

	RateLimitEnabled bool
	RateLimitRPM     int `validate:"gte=0"`
	RateLimitBurst   int `validate:"gte=0"`
}

var validate = validator.New()

// Defaults returns the documented defaults from spec §6, before any
// environment overrides or user edits are applied.
func Defaults() Config {
	return Config{
		Name:              "semantic_cache",
		TTL:               3600,
		Overwrite:         false,
		DistanceThreshold: 0.2,
		TopK:              1,
		Vectorizer: VectorizerConfig{
			Provider: VectorizerOpenAI,
			Model:    "text-embedding-3-small",
		},
		Reranker: RerankerConfig{
			Enabled: false,
			Limit:   10,
		},
		L1Cache: L1CacheConfig{
			Enabled:          false,
			MaxSize:          1000,
			TTLSeconds:       300,
			EvictionStrategy: EvictionRecency,
		},
		EnableContextHashing:  true,
		ContextFields:         []string{"conversation_id", "user_persona", "session_id"},
		EnableTags:            true,
		MaxTagsPerEntry:       10,
		EnableVersionChecking: false,
		CacheVersion:          "v1",
		Observability: ObservabilityConfig{
			EnableDetailedMetrics: true,
			MetricsPrefix:         "semantic_cache",
		},
		RedisTimeout:       5 * time.Second,
		EmbedTimeout:       30 * time.Second,
		MaxRetries:         3,
		RetryBackoffBaseMs: 100,
		Env:                "development",
		AdminAddr:          ":8090",
		GracefulTimeout:    15 * time.Second,
		RequestTimeout:     30 * time.Second,
		RateLimitEnabled:   false,
		RateLimitRPM:       600,
		RateLimitBurst:     50,
	}
}

// Load reads configuration from environment variables (and an
// optional .env file) following the SEMANTIC_CACHE_<FIELD>
// convention, overlaying spec §6 defaults, and validates the result.
//
// A validation failure surfaces as a *cerr.Error of KindConfigInvalid
// — rejected at construction, never at first use.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	cfg.RedisURL = getEnv("SEMANTIC_CACHE_REDIS_URL", cfg.RedisURL)
	cfg.Name = getEnv("SEMANTIC_CACHE_NAME", cfg.Name)
	cfg.TTL = getEnvInt("SEMANTIC_CACHE_TTL", cfg.TTL)
	cfg.Overwrite = getEnvBool("SEMANTIC_CACHE_OVERWRITE", cfg.Overwrite)
	cfg.DistanceThreshold = getEnvFloat("SEMANTIC_CACHE_DISTANCE_THRESHOLD", cfg.DistanceThreshold)
	cfg.TopK = getEnvInt("SEMANTIC_CACHE_TOP_K", cfg.TopK)

	cfg.Vectorizer.Provider = VectorizerProvider(getEnv("SEMANTIC_CACHE_VECTORIZER_PROVIDER", string(cfg.Vectorizer.Provider)))
	cfg.Vectorizer.Model = getEnv("SEMANTIC_CACHE_VECTORIZER_MODEL", cfg.Vectorizer.Model)
	cfg.Vectorizer.APIConfig = map[string]string{
		"api_key":  getEnv("SEMANTIC_CACHE_VECTORIZER_API_KEY", ""),
		"base_url": getEnv("SEMANTIC_CACHE_VECTORIZER_BASE_URL", ""),
	}

	cfg.Reranker.Enabled = getEnvBool("SEMANTIC_CACHE_RERANKER_ENABLED", cfg.Reranker.Enabled)
	cfg.Reranker.Provider = RerankerProvider(getEnv("SEMANTIC_CACHE_RERANKER_PROVIDER", string(cfg.Reranker.Provider)))
	cfg.Reranker.Model = getEnv("SEMANTIC_CACHE_RERANKER_MODEL", cfg.Reranker.Model)
	cfg.Reranker.Limit = getEnvInt("SEMANTIC_CACHE_RERANKER_LIMIT", cfg.Reranker.Limit)
	cfg.Reranker.APIConfig = map[string]string{
		"api_key":  getEnv("SEMANTIC_CACHE_RERANKER_API_KEY", ""),
		"base_url": getEnv("SEMANTIC_CACHE_RERANKER_BASE_URL", ""),
	}

	cfg.L1Cache.Enabled = getEnvBool("SEMANTIC_CACHE_L1_ENABLED", cfg.L1Cache.Enabled)
	cfg.L1Cache.MaxSize = getEnvInt("SEMANTIC_CACHE_L1_MAX_SIZE", cfg.L1Cache.MaxSize)
	cfg.L1Cache.TTLSeconds = getEnvInt("SEMANTIC_CACHE_L1_TTL_SECONDS", cfg.L1Cache.TTLSeconds)
	cfg.L1Cache.EvictionStrategy = EvictionStrategy(getEnv("SEMANTIC_CACHE_L1_EVICTION_STRATEGY", string(cfg.L1Cache.EvictionStrategy)))

	if v, ok := os.LookupEnv("SEMANTIC_CACHE_CONTEXT_FIELDS"); ok && v != "" {
		cfg.ContextFields = strings.Split(v, ",")
	}
	cfg.EnableContextHashing = getEnvBool("SEMANTIC_CACHE_ENABLE_CONTEXT_HASHING", cfg.EnableContextHashing)
	cfg.ContextHitKeyField = getEnv("SEMANTIC_CACHE_CONTEXT_HIT_KEY_FIELD", cfg.ContextHitKeyField)
	if cfg.ContextHitKeyField == "" && len(cfg.ContextFields) > 0 {
		cfg.ContextHitKeyField = cfg.ContextFields[0]
	}

	cfg.EnableTags = getEnvBool("SEMANTIC_CACHE_ENABLE_TAGS", cfg.EnableTags)
	cfg.MaxTagsPerEntry = getEnvInt("SEMANTIC_CACHE_MAX_TAGS_PER_ENTRY", cfg.MaxTagsPerEntry)

	cfg.EnableStaleWhileRevalidate = getEnvBool("SEMANTIC_CACHE_ENABLE_STALE_WHILE_REVALIDATE", cfg.EnableStaleWhileRevalidate)
	cfg.StaleToleranceSeconds = getEnvInt("SEMANTIC_CACHE_STALE_TOLERANCE_SECONDS", cfg.StaleToleranceSeconds)
	maxStale := getEnvInt("SEMANTIC_CACHE_MAX_STALE_AGE_SECONDS", cfg.MaxStaleAgeSeconds)
	if maxStale == 0 {
		maxStale = cfg.TTL
	}
	cfg.MaxStaleAgeSeconds = maxStale

	cfg.EnableVersionChecking = getEnvBool("SEMANTIC_CACHE_ENABLE_VERSION_CHECKING", cfg.EnableVersionChecking)
	cfg.CacheVersion = getEnv("SEMANTIC_CACHE_CACHE_VERSION", cfg.CacheVersion)

	cfg.Observability.EnableDetailedMetrics = getEnvBool("SEMANTIC_CACHE_OBS_DETAILED_METRICS", cfg.Observability.EnableDetailedMetrics)
	cfg.Observability.MetricsPrefix = getEnv("SEMANTIC_CACHE_OBS_METRICS_PREFIX", cfg.Observability.MetricsPrefix)
	cfg.Observability.EnableTracing = getEnvBool("SEMANTIC_CACHE_OBS_ENABLE_TRACING", cfg.Observability.EnableTracing)
	cfg.Observability.TracingExporter = getEnv("SEMANTIC_CACHE_OBS_TRACING_EXPORTER", cfg.Observability.TracingExporter)
	cfg.Observability.TracingEndpoint = getEnv("SEMANTIC_CACHE_OBS_TRACING_ENDPOINT", cfg.Observability.TracingEndpoint)
	cfg.Observability.ServiceName = getEnv("SEMANTIC_CACHE_OBS_SERVICE_NAME", cfg.Observability.ServiceName)

	cfg.RedisTimeout = time.Duration(getEnvInt("SEMANTIC_CACHE_REDIS_TIMEOUT_SEC", int(cfg.RedisTimeout/time.Second))) * time.Second
	cfg.EmbedTimeout = time.Duration(getEnvInt("SEMANTIC_CACHE_EMBED_TIMEOUT_SEC", int(cfg.EmbedTimeout/time.Second))) * time.Second
	cfg.MaxRetries = getEnvInt("SEMANTIC_CACHE_MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryBackoffBaseMs = getEnvInt("SEMANTIC_CACHE_RETRY_BACKOFF_BASE_MS", cfg.RetryBackoffBaseMs)

	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.AdminAddr = getEnv("SEMANTIC_CACHE_ADMIN_ADDR", cfg.AdminAddr)
	cfg.GracefulTimeout = time.Duration(getEnvInt("SEMANTIC_CACHE_GRACEFUL_TIMEOUT_SEC", int(cfg.GracefulTimeout/time.Second))) * time.Second
	cfg.RequestTimeout = time.Duration(getEnvInt("SEMANTIC_CACHE_REQUEST_TIMEOUT_SEC", int(cfg.RequestTimeout/time.Second))) * time.Second

	cfg.RateLimitEnabled = getEnvBool("SEMANTIC_CACHE_RATE_LIMIT_ENABLED", cfg.RateLimitEnabled)
	cfg.RateLimitRPM = getEnvInt("SEMANTIC_CACHE_RATE_LIMIT_RPM", cfg.RateLimitRPM)
	cfg.RateLimitBurst = getEnvInt("SEMANTIC_CACHE_RATE_LIMIT_BURST", cfg.RateLimitBurst)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct-tag validation over the configuration and
// wraps any failure as cerr.KindConfigInvalid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return cerr.New(cerr.KindConfigInvalid, "config.Validate", err)
	}
	if c.EnableStaleWhileRevalidate && c.MaxStaleAgeSeconds < c.StaleToleranceSeconds {
		return cerr.New(cerr.KindConfigInvalid, "config.Validate",
			fmt.Errorf("max_stale_age_seconds (%d) must be >= stale_tolerance_seconds (%d)", c.MaxStaleAgeSeconds, c.StaleToleranceSeconds))
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool { return c.Env == "production" }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
