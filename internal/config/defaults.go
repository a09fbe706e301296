package config

import "time"

// ApplyDefaults fills zero-valued fields of cfg with platform defaults.
// Explicitly set values are never overwritten.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = "migrations"
	}

	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "tariffwise:"
	}

	if cfg.Milvus.Collection == "" {
		cfg.Milvus.Collection = "tariff_codes"
	}
	if cfg.Milvus.EmbeddingDim == 0 {
		cfg.Milvus.EmbeddingDim = 768
	}
	if cfg.Milvus.DefaultTopK == 0 {
		cfg.Milvus.DefaultTopK = 25
	}
	if cfg.Milvus.SearchTimeout == 0 {
		cfg.Milvus.SearchTimeout = 5 * time.Second
	}

	if cfg.OpenSearch.Index == "" {
		cfg.OpenSearch.Index = "tariff-catalog"
	}
	if cfg.OpenSearch.SearchTimeout == 0 {
		cfg.OpenSearch.SearchTimeout = 5 * time.Second
	}

	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 10 * time.Second
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "default"
	}

	if cfg.Completion.Timeout == 0 {
		cfg.Completion.Timeout = 30 * time.Second
	}
	if cfg.Completion.Temperature == 0 {
		cfg.Completion.Temperature = 0.1
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "classification.completed"
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = time.Second
	}

	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "classification-audit"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	applyScoringDefaults(&cfg.Scoring)
	applyRetrievalDefaults(&cfg.Retrieval)
	applyEngineDefaults(&cfg.Engine)
	applyQuestionDefaults(&cfg.Question)

	if cfg.Conversation.IdleTTL == 0 {
		cfg.Conversation.IdleTTL = 30 * time.Minute
	}
	if cfg.Conversation.SweepInterval == 0 {
		cfg.Conversation.SweepInterval = 5 * time.Minute
	}
	if cfg.Conversation.Backend == "" {
		cfg.Conversation.Backend = "memory"
	}
}

// The scoring constants below reproduce the tuned heuristics of the ranking
// pipeline.  They have no analytical derivation; treat them as a unit when
// re-tuning.
func applyScoringDefaults(s *ScoringConfig) {
	if s.ExactMatchScore == 0 {
		s.ExactMatchScore = 10
	}
	if s.SubstringMatchScore == 0 {
		s.SubstringMatchScore = 5
	}
	if s.FuzzyMatchScore == 0 {
		s.FuzzyMatchScore = 3
	}
	if s.FuzzyMinSimilarity == 0 {
		s.FuzzyMinSimilarity = 0.75
	}
	if s.KeywordMatchBonus == 0 {
		s.KeywordMatchBonus = 2
	}
	if s.MultiTermBonus == 0 {
		s.MultiTermBonus = 3
	}
	if s.AllTermsBonus == 0 {
		s.AllTermsBonus = 5
	}
	if s.MaxKeywordBonus == 0 {
		s.MaxKeywordBonus = 15
	}
	if s.MaxContextBoost == 0 {
		s.MaxContextBoost = 10
	}
	if s.MaxSemanticScore == 0 {
		s.MaxSemanticScore = 10
	}
	if s.FunctionMatchBoost == 0 {
		s.FunctionMatchBoost = 5
	}
	if s.BothMatchBoost == 0 {
		s.BothMatchBoost = 3
	}
	if s.MaterialOnlyPenalty == 0 {
		s.MaterialOnlyPenalty = 3
	}
	if s.OverrideChapterBoost == 0 {
		s.OverrideChapterBoost = 30
	}
	if s.OverrideChapterPenalty == 0 {
		s.OverrideChapterPenalty = 20
	}
	if s.RankBoostBase == 0 {
		s.RankBoostBase = 15
	}
	if s.RankBoostStep == 0 {
		s.RankBoostStep = 5
	}
	if s.UnpredictedPenalty == 0 {
		s.UnpredictedPenalty = 5
	}
	if s.MinScore == 0 {
		s.MinScore = -50
	}
	if s.MaxScore == 0 {
		s.MaxScore = 100
	}
}

func applyRetrievalDefaults(r *RetrievalConfig) {
	if r.VectorTopK == 0 {
		r.VectorTopK = 25
	}
	if r.ScopedTopK == 0 {
		r.ScopedTopK = 10
	}
	if r.ScopedChapters == 0 {
		r.ScopedChapters = 2
	}
	if r.SemanticOnlyTokens == 0 {
		r.SemanticOnlyTokens = 3
	}
	if r.MaxCandidates == 0 {
		r.MaxCandidates = 50
	}
	if r.ChannelTimeout == 0 {
		r.ChannelTimeout = 5 * time.Second
	}
	if r.FuzzyNoiseMinTerms == 0 {
		r.FuzzyNoiseMinTerms = 2
	}
	if r.FuzzyNoiseMinScore == 0 {
		r.FuzzyNoiseMinScore = 5
	}
}

func applyEngineDefaults(e *EngineConfig) {
	if e.HighSimilarity == 0 {
		e.HighSimilarity = 0.82
	}
	if e.HighSimilarityGap == 0 {
		e.HighSimilarityGap = 0.08
	}
	if e.DominantChapterShare == 0 {
		e.DominantChapterShare = 0.8
	}
	if e.DominantChapterTopN == 0 {
		e.DominantChapterTopN = 5
	}
	if e.MediumSimilarity == 0 {
		e.MediumSimilarity = 0.65
	}
	if e.VerifyMinConfidence == 0 {
		e.VerifyMinConfidence = 0.75
	}
	if e.FallbackConfidence == 0 {
		e.FallbackConfidence = 55
	}
	if e.SingleCandidateConfidence == 0 {
		e.SingleCandidateConfidence = 95
	}
	if e.ShortlistSize == 0 {
		e.ShortlistSize = 8
	}
}

func applyQuestionDefaults(q *QuestionConfig) {
	if q.PerRoundCap == 0 {
		q.PerRoundCap = 3
	}
	if q.HighImpactThreshold == 0 {
		q.HighImpactThreshold = 60
	}
	if q.FewCandidatesCutoff == 0 {
		q.FewCandidatesCutoff = 2
	}
	if q.HighConfidenceCutoff == 0 {
		q.HighConfidenceCutoff = 90
	}
	if q.MaxDependencyPasses == 0 {
		q.MaxDependencyPasses = 10
	}
}

// NewDefaultConfig returns a Config populated entirely from defaults.
// Intended for tests and local development; production deployments load from
// file or environment.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Database.Host = "localhost"
	cfg.Database.User = "tariffwise"
	cfg.Database.DBName = "tariffwise"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Milvus.Addr = "localhost:19530"
	cfg.OpenSearch.Addresses = []string{"http://localhost:9200"}
	cfg.Embedding.BaseURL = "http://localhost:8100"
	return cfg
}
