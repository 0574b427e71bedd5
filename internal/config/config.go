package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppInfo holds basic application metadata.
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"` // e.g. "development", "production"
}

// LoggerConfig configures the structured logger.
type LoggerConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address         string `yaml:"address"`         // listen address, e.g. ":8080"
	ShutdownTimeout string `yaml:"shutdownTimeout"` // e.g. "10s"
}

// OpenAIConfig configures an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL,omitempty"` // empty means the official endpoint
	Model   string `yaml:"model"`
}

// GeminiConfig configures the Gemini API.
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// OllamaConfig configures a local Ollama instance.
type OllamaConfig struct {
	Host  string `yaml:"host"` // e.g. "http://localhost:11434"
	Model string `yaml:"model"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider string       `yaml:"provider"` // "openai", "gemini" or "ollama"
	Timeout  string       `yaml:"timeout"`  // per-call bound, e.g. "60s"
	OpenAI   OpenAIConfig `yaml:"openai"`
	Gemini   GeminiConfig `yaml:"gemini"`
	Ollama   OllamaConfig `yaml:"ollama"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider  string       `yaml:"provider"` // "openai", "gemini" or "ollama"
	Dimension int          `yaml:"dimension"`
	Timeout   string       `yaml:"timeout"` // per-call bound, e.g. "30s"
	OpenAI    OpenAIConfig `yaml:"openai"`
	Gemini    GeminiConfig `yaml:"gemini"`
	Ollama    OllamaConfig `yaml:"ollama"`
}

// MilvusConfig configures the fact vector store.
type MilvusConfig struct {
	Address        string `yaml:"address"`
	CollectionName string `yaml:"collectionName"`
	IndexType      string `yaml:"indexType"`  // e.g. "HNSW", "IVF_FLAT"
	MetricType     string `yaml:"metricType"` // e.g. "COSINE", "L2"
	Timeout        string `yaml:"timeout"`    // per-call bound, e.g. "10s"
}

// RedisConfig configures the pending-resolution store.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig configures the message archive database.
type MySQLConfig struct {
	Address         string `yaml:"address"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // seconds
}

// KafkaConfig configures the audit event publisher.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// DatabaseConfigs groups every backing store.
type DatabaseConfigs struct {
	Milvus MilvusConfig `yaml:"milvus"`
	Redis  RedisConfig  `yaml:"redis"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

// RerankConfig configures the optional reranking stage.
type RerankConfig struct {
	Enabled      bool    `yaml:"enabled"`
	URL          string  `yaml:"url"`
	APIKey       string  `yaml:"apiKey"`
	Model        string  `yaml:"model"`
	MinScore     float64 `yaml:"minScore"`     // candidates below this are dropped
	FallbackTopN int     `yaml:"fallbackTopN"` // kept from fused order when reranking fails or empties
	Timeout      string  `yaml:"timeout"`      // per-call bound, e.g. "10s"
}

// RetrievalConfig tunes the retrieval fusion engine.
type RetrievalConfig struct {
	MaxQueries    int          `yaml:"maxQueries"`    // cap on generated sub-queries
	TopKPerQuery  int          `yaml:"topKPerQuery"`  // results fetched per sub-query
	FusionK       int          `yaml:"fusionK"`       // reciprocal rank fusion constant
	MaxCandidates int          `yaml:"maxCandidates"` // fused candidates kept before dedup
	MaxResults    int          `yaml:"maxResults"`    // final context size after dedup
	Rerank        RerankConfig `yaml:"rerank"`
}

// ConflictConfig tunes conflict detection and resolution.
type ConflictConfig struct {
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"` // below this a detection is treated as no conflict
	ResolutionMode      string  `yaml:"resolutionMode"`      // "auto" or "interactive"
	PendingTTL          string  `yaml:"pendingTTL"`          // how long an unresolved conflict waits, e.g. "24h"
}

// ReasoningConfig tunes the reasoning loop.
type ReasoningConfig struct {
	MaxIterations int `yaml:"maxIterations"`
}

// RateLimiterConfig configures request rate limiting.
type RateLimiterConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Algorithm string  `yaml:"algorithm"` // "fixedWindow" or "tokenBucket"
	Limit     int     `yaml:"limit"`
	Window    string  `yaml:"window"` // fixedWindow only, e.g. "1m"
	Rate      float64 `yaml:"rate"`   // tokenBucket only, tokens per second
	Capacity  int     `yaml:"capacity"`
}

// CircuitBreakerConfig configures the breaker wrapped around model calls.
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // e.g. "30s"
}

// MiddlewareConfig groups cross-cutting middleware settings.
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Logger     LoggerConfig     `yaml:"logger"`
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Conflict   ConflictConfig   `yaml:"conflict"`
	Reasoning  ReasoningConfig  `yaml:"reasoning"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// LoadConfig reads and parses the YAML configuration at path, applying
// defaults for tuning knobs left unset.
func LoadConfig(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Retrieval.MaxQueries <= 0 {
		c.Retrieval.MaxQueries = 5
	}
	if c.Retrieval.TopKPerQuery <= 0 {
		c.Retrieval.TopKPerQuery = 5
	}
	if c.Retrieval.FusionK <= 0 {
		c.Retrieval.FusionK = 60
	}
	if c.Retrieval.MaxCandidates <= 0 {
		c.Retrieval.MaxCandidates = 15
	}
	if c.Retrieval.MaxResults <= 0 {
		c.Retrieval.MaxResults = 10
	}
	if c.Retrieval.Rerank.FallbackTopN <= 0 {
		c.Retrieval.Rerank.FallbackTopN = 2
	}
	if c.Retrieval.Rerank.Timeout == "" {
		c.Retrieval.Rerank.Timeout = "10s"
	}
	if c.LLM.Timeout == "" {
		c.LLM.Timeout = "60s"
	}
	if c.Embedding.Timeout == "" {
		c.Embedding.Timeout = "30s"
	}
	if c.Databases.Milvus.Timeout == "" {
		c.Databases.Milvus.Timeout = "10s"
	}
	if c.Conflict.ConfidenceThreshold <= 0 {
		c.Conflict.ConfidenceThreshold = 0.7
	}
	if c.Conflict.ResolutionMode == "" {
		c.Conflict.ResolutionMode = "auto"
	}
	if c.Conflict.PendingTTL == "" {
		c.Conflict.PendingTTL = "24h"
	}
	if c.Reasoning.MaxIterations <= 0 {
		c.Reasoning.MaxIterations = 3
	}
}

func (c *AppConfig) validate() error {
	switch c.Conflict.ResolutionMode {
	case "auto", "interactive":
	default:
		return fmt.Errorf("conflict.resolutionMode must be 'auto' or 'interactive', got '%s'", c.Conflict.ResolutionMode)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive")
	}
	for name, value := range map[string]string{
		"llm.timeout":              c.LLM.Timeout,
		"embedding.timeout":        c.Embedding.Timeout,
		"databases.milvus.timeout": c.Databases.Milvus.Timeout,
		"retrieval.rerank.timeout": c.Retrieval.Rerank.Timeout,
		"server.shutdownTimeout":   c.Server.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s is not a valid duration: %q", name, value)
		}
	}
	return nil
}
