// Package app builds the full service dependency graph from configuration:
// rules, pipeline stages, retrieval adapters, conversation store, engine,
// and the HTTP server. Both the apiserver binary and the serve CLI command
// start from here.
package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/turtacn/tariffwise/internal/classify/candidate"
	"github.com/turtacn/tariffwise/internal/classify/chapter"
	"github.com/turtacn/tariffwise/internal/classify/conversation"
	"github.com/turtacn/tariffwise/internal/classify/differential"
	"github.com/turtacn/tariffwise/internal/classify/engine"
	"github.com/turtacn/tariffwise/internal/classify/question"
	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/internal/classify/terms"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/database/postgres"
	redisclient "github.com/turtacn/tariffwise/internal/infrastructure/database/redis"
	"github.com/turtacn/tariffwise/internal/infrastructure/embedding"
	"github.com/turtacn/tariffwise/internal/infrastructure/llm"
	"github.com/turtacn/tariffwise/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/tariffwise/internal/infrastructure/search/milvus"
	"github.com/turtacn/tariffwise/internal/infrastructure/search/opensearch"
	"github.com/turtacn/tariffwise/internal/infrastructure/storage/minio"
	httpserver "github.com/turtacn/tariffwise/internal/interfaces/http"
	"github.com/turtacn/tariffwise/internal/interfaces/http/handlers"
)

// App is the assembled service.
type App struct {
	Server  *httpserver.Server
	Engine  *engine.Service
	Catalog *postgres.CatalogRepository
	Metrics *prometheus.Metrics

	logger  logging.Logger
	closers []func() error
}

// New assembles the service. Failures during assembly tear down everything
// constructed so far.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *App, err error) {
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// Classification rules, optionally overridden from disk and hot
	// reloaded.
	ruleSet, err := loadRules(cfg.Rules)
	if err != nil {
		return nil, err
	}
	provider := rules.NewProvider(ruleSet, logger)
	a.addCloser(provider.Close)
	if cfg.Rules.WatchEnabled && cfg.Rules.OverridePath != "" {
		if err := provider.Watch(cfg.Rules.OverridePath); err != nil {
			return nil, fmt.Errorf("app: failed to watch rules: %w", err)
		}
	}

	// Pipeline stages.
	analyzer := terms.NewAnalyzer(provider, logger)
	predictor := chapter.NewPredictor(provider, cfg.Scoring, logger)
	differ := differential.NewAnalyzer(provider, logger)
	questions := question.NewOrchestrator(provider, differ, cfg.Question, logger)

	// Retrieval adapters.
	pool, err := postgres.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.addCloser(func() error { pool.Close(); return nil })
	a.Catalog = postgres.NewCatalogRepository(pool, logger)

	osClient, err := opensearch.NewClient(opensearch.ClientConfig{
		Addresses:          cfg.OpenSearch.Addresses,
		Username:           cfg.OpenSearch.User,
		Password:           cfg.OpenSearch.Password,
		InsecureSkipVerify: cfg.OpenSearch.InsecureSkipVerify,
		RequestTimeout:     cfg.OpenSearch.SearchTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.addCloser(osClient.Close)

	catalogIndex, err := opensearch.NewCatalogSearcher(osClient, opensearch.CatalogConfig{
		Index:         cfg.OpenSearch.Index,
		SearchTimeout: cfg.OpenSearch.SearchTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	vectorSearcher, err := milvus.NewSearcher(ctx, milvus.Config{
		Addr:          cfg.Milvus.Addr,
		DBName:        cfg.Milvus.DBName,
		Collection:    cfg.Milvus.Collection,
		EmbeddingDim:  cfg.Milvus.EmbeddingDim,
		DefaultTopK:   cfg.Milvus.DefaultTopK,
		SearchTimeout: cfg.Milvus.SearchTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.addCloser(vectorSearcher.Close)

	embedder, err := embedding.NewClient(embedding.Config{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		Timeout: cfg.Embedding.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	generator := candidate.NewGenerator(candidate.GeneratorDeps{
		Embedder: embedder,
		Vector:   vectorSearcher,
		Catalog:  catalogIndex,
		Logger:   logger,
	}, cfg.Retrieval, cfg.Scoring)
	scorer := candidate.NewScorer(provider, cfg.Scoring, predictor, logger)
	reranker := candidate.NewReranker(provider, cfg.Scoring, logger)

	// Conversation store.
	store, redisCli, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.addCloser(store.Close)

	// Optional collaborators.
	var verifier engine.Verifier
	if cfg.Completion.BaseURL != "" {
		verifier, err = llm.NewVerifier(llm.Config{
			BaseURL:     cfg.Completion.BaseURL,
			APIKey:      cfg.Completion.APIKey,
			Model:       cfg.Completion.Model,
			Temperature: cfg.Completion.Temperature,
			Timeout:     cfg.Completion.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
	}

	var events engine.EventPublisher
	if cfg.Kafka.Enabled {
		publisher, err := kafka.NewPublisher(cfg.Kafka, logger)
		if err != nil {
			return nil, err
		}
		a.addCloser(publisher.Close)
		events = publisher
	}

	var audit engine.AuditArchiver
	if cfg.MinIO.Enabled {
		archiver, err := minio.NewArchiver(ctx, cfg.MinIO, logger)
		if err != nil {
			return nil, err
		}
		audit = archiver
	}

	a.Metrics = prometheus.NewMetrics()

	a.Engine = engine.NewService(engine.Deps{
		Analyzer:  analyzer,
		Predictor: predictor,
		Generator: generator,
		Scorer:    scorer,
		Reranker:  reranker,
		Differ:    differ,
		Questions: questions,
		Store:     store,
		Verifier:  verifier,
		Events:    events,
		Audit:     audit,
		Metrics:   a.Metrics,
		Logger:    logger,
	}, cfg.Engine)

	// HTTP surface.
	checks := []handlers.DependencyCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "opensearch", Check: osClient.Ping},
		{Name: "milvus", Check: vectorSearcher.Healthy},
	}
	if redisCli != nil {
		checks = append(checks, handlers.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisCli.Ping(ctx).Err() },
		})
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Classify:        handlers.NewClassifyHandler(a.Engine, predictor, logger),
		Health:          handlers.NewHealthHandler(checks, logger),
		MetricsHandler:  a.Metrics.Handler(),
		MetricsObserver: a.Metrics,
		Logger:          logger,
		Mode:            cfg.Server.Mode,
	})
	a.Server = httpserver.NewServer(cfg.Server, router, logger)

	return a, nil
}

// Close releases resources in reverse construction order.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func (a *App) addCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

func loadRules(cfg config.RulesConfig) (*rules.RuleSet, error) {
	if cfg.OverridePath != "" {
		return rules.LoadFromDir(cfg.OverridePath)
	}
	return rules.Load()
}

func buildStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (conversation.Store, *goredis.Client, error) {
	if cfg.Conversation.Backend == "redis" {
		client, err := redisclient.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, nil, err
		}
		return conversation.NewRedisStore(client, cfg.Conversation, logger), client, nil
	}
	return conversation.NewMemoryStore(cfg.Conversation, logger), nil, nil
}
