// Package config provides the engine's configuration structure and a
// YAML-plus-environment-variable loader, modeled on agentflow's
// config.Loader (defaults → YAML file → env overrides).
package config

import "time"

// Config is the full configuration surface spec.md §6 enumerates.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Compression   CompressionConfig   `yaml:"compression"`
	Embeddings    EmbeddingsConfig    `yaml:"embeddings"`
	WorkingTier   WorkingConfig       `yaml:"working"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Heuristics    HeuristicsConfig    `yaml:"heuristics"`
	Importance    ImportanceConfig    `yaml:"importance"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
}

// StorageProvider selects the concrete driver set (spec.md §6).
type StorageProvider string

const (
	ProviderInProcess    StorageProvider = "in-process"
	ProviderEmbeddedFile StorageProvider = "embedded-file"
	ProviderNetworkedSQL StorageProvider = "networked-sql"
	ProviderNetworkedKV  StorageProvider = "networked-kv"
)

type StorageConfig struct {
	Provider       StorageProvider `yaml:"provider" env:"PROVIDER"`
	Connection     string          `yaml:"connection" env:"CONNECTION"`
	EnableFallback bool            `yaml:"enable_fallback" env:"ENABLE_FALLBACK"`
	MaxRetries     int             `yaml:"max_retries" env:"MAX_RETRIES"`
}

type CompressionAlgorithm string

const (
	CompressionGzip          CompressionAlgorithm = "gzip"
	CompressionBrotli        CompressionAlgorithm = "brotli"
	CompressionSelectiveGzip CompressionAlgorithm = "selective-gzip"
	CompressionSelectiveBrotli CompressionAlgorithm = "selective-brotli"
)

type CompressionConfig struct {
	Enabled        bool                 `yaml:"enabled" env:"ENABLED"`
	Algorithm      CompressionAlgorithm `yaml:"algorithm" env:"ALGORITHM"`
	ThresholdBytes int                  `yaml:"threshold_bytes" env:"THRESHOLD_BYTES"`
}

type EmbeddingPrecision string

const (
	PrecisionFloat32 EmbeddingPrecision = "float32"
	PrecisionInt8    EmbeddingPrecision = "int8"
)

type EmbeddingsConfig struct {
	QuantizationEnabled bool               `yaml:"quantization_enabled" env:"QUANTIZATION_ENABLED"`
	Precision           EmbeddingPrecision `yaml:"precision" env:"PRECISION"`
	Dimension           int                `yaml:"dimension" env:"DIMENSION"`
}

type WorkingConfig struct {
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
	MaxItems int           `yaml:"max_items" env:"MAX_ITEMS"`
}

type ConsolidationConfig struct {
	Period             time.Duration `yaml:"period" env:"PERIOD"`
	ThresholdMessages  int           `yaml:"threshold_messages" env:"THRESHOLD_MESSAGES"`
	GlobalThreshold    int           `yaml:"global_threshold" env:"GLOBAL_THRESHOLD"`
	MaxRetries         int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay" env:"RETRY_BASE_DELAY"`
	// SimilarityThreshold/SimilarityWindow govern Phase 2 fact
	// clustering (SPEC_FULL.md Open Question 1).
	SimilarityThreshold float64       `yaml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`
	SimilarityWindow    time.Duration `yaml:"similarity_window" env:"SIMILARITY_WINDOW"`
	FactTTL             time.Duration `yaml:"fact_ttl" env:"FACT_TTL"`
	FactMinAccessCount  int           `yaml:"fact_min_access_count" env:"FACT_MIN_ACCESS_COUNT"`
}

type HeuristicsConfig struct {
	SpecificLayersThreshold float64 `yaml:"specific_layers_threshold" env:"SPECIFIC_LAYERS_THRESHOLD"`
	Dampening               float64 `yaml:"dampening" env:"DAMPENING"`
}

// ImportanceConfig holds the amygdala's component weights (spec.md §4.3).
type ImportanceConfig struct {
	BaseWeight        float64       `yaml:"base_weight" env:"BASE_WEIGHT"`
	DecisionWeight    float64       `yaml:"decision_weight" env:"DECISION_WEIGHT"`
	QuestionWeight    float64       `yaml:"question_weight" env:"QUESTION_WEIGHT"`
	NoveltyWeight     float64       `yaml:"novelty_weight" env:"NOVELTY_WEIGHT"`
	SentimentWeight   float64       `yaml:"sentiment_weight" env:"SENTIMENT_WEIGHT"`
	TechnicalWeight   float64       `yaml:"technical_weight" env:"TECHNICAL_WEIGHT"`
	RecencyWeight     float64       `yaml:"recency_weight" env:"RECENCY_WEIGHT"`
	RecencyTau        time.Duration `yaml:"recency_tau" env:"RECENCY_TAU"`
	Default           float64       `yaml:"default" env:"DEFAULT"`
	NoveltyWindow     int           `yaml:"novelty_window" env:"NOVELTY_WINDOW"`
	PromotionThreshold float64      `yaml:"promotion_threshold" env:"PROMOTION_THRESHOLD"`
}

// RetrievalConfig holds RetrieveContext's per-tier defaults and deadline.
type RetrievalConfig struct {
	WorkingRecent     int           `yaml:"working_recent" env:"WORKING_RECENT"`
	SemanticTopK      int           `yaml:"semantic_top_k" env:"SEMANTIC_TOP_K"`
	EpisodicTopK      int           `yaml:"episodic_top_k" env:"EPISODIC_TOP_K"`
	SimilarityThreshold float64     `yaml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`
	Deadline          time.Duration `yaml:"deadline" env:"DEADLINE"`
	TierTokenBudget   map[string]int `yaml:"tier_token_budget" env:"-"`
}
