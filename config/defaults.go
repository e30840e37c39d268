package config

import "time"

// Default returns the engine's default configuration, modeled on
// agentflow's config/defaults.go Default*Config() functions.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Provider:       ProviderInProcess,
			EnableFallback: true,
			MaxRetries:     3,
		},
		Compression: CompressionConfig{
			Enabled:        true,
			Algorithm:      CompressionSelectiveGzip,
			ThresholdBytes: 512,
		},
		Embeddings: EmbeddingsConfig{
			QuantizationEnabled: false,
			Precision:           PrecisionFloat32,
			Dimension:           1536,
		},
		WorkingTier: WorkingConfig{
			TTL:      30 * time.Minute,
			MaxItems: 200,
		},
		Consolidation: ConsolidationConfig{
			Period:              5 * time.Minute,
			ThresholdMessages:   20,
			GlobalThreshold:     1000,
			MaxRetries:          3,
			RetryBaseDelay:      5 * time.Second,
			SimilarityThreshold: 0.85,
			SimilarityWindow:    7 * 24 * time.Hour,
			FactTTL:             30 * 24 * time.Hour,
			FactMinAccessCount:  3,
		},
		Heuristics: HeuristicsConfig{
			SpecificLayersThreshold: 0.6,
			Dampening:               0.90,
		},
		Importance: ImportanceConfig{
			BaseWeight:         0.15,
			DecisionWeight:     0.25,
			QuestionWeight:     -0.15,
			NoveltyWeight:      0.15,
			SentimentWeight:    0.10,
			TechnicalWeight:    0.10,
			RecencyWeight:      0.10,
			RecencyTau:         24 * time.Hour,
			Default:            0.3,
			NoveltyWindow:      50,
			PromotionThreshold: 0.7,
		},
		Retrieval: RetrievalConfig{
			WorkingRecent:       10,
			SemanticTopK:        10,
			EpisodicTopK:        5,
			SimilarityThreshold: 0.7,
			Deadline:            2 * time.Second,
			TierTokenBudget: map[string]int{
				"working":    1500,
				"semantic":   800,
				"episodic":   600,
				"procedural": 300,
			},
		},
	}
}
