package app

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/database/postgres"
	"github.com/turtacn/tariffwise/internal/infrastructure/embedding"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/internal/infrastructure/search/milvus"
	"github.com/turtacn/tariffwise/internal/infrastructure/search/opensearch"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

const syncBatchSize = 200

// Syncer rebuilds the derived search indexes from the catalog's system of
// record: every row goes to the lexical index, and rows with descriptions
// are embedded and written to the vector store.
type Syncer struct {
	repo     *postgres.CatalogRepository
	indexer  *opensearch.Indexer
	vector   *milvus.Searcher
	embedder *embedding.Client
	logger   logging.Logger
	closers  []func() error
}

// SyncStats summarizes one sync run.
type SyncStats struct {
	CatalogRows int
	Indexed     int
	Embedded    int
	Elapsed     time.Duration
}

// NewSyncer assembles only the components a sync run needs.
func NewSyncer(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *Syncer, err error) {
	s := &Syncer{logger: logger.Named("sync")}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	pool, err := postgres.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error { pool.Close(); return nil })
	s.repo = postgres.NewCatalogRepository(pool, logger)

	osClient, err := opensearch.NewClient(opensearch.ClientConfig{
		Addresses:          cfg.OpenSearch.Addresses,
		Username:           cfg.OpenSearch.User,
		Password:           cfg.OpenSearch.Password,
		InsecureSkipVerify: cfg.OpenSearch.InsecureSkipVerify,
	}, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, osClient.Close)

	s.indexer, err = opensearch.NewIndexer(osClient, cfg.OpenSearch.Index, logger)
	if err != nil {
		return nil, err
	}

	s.vector, err = milvus.NewSearcher(ctx, milvus.Config{
		Addr:         cfg.Milvus.Addr,
		DBName:       cfg.Milvus.DBName,
		Collection:   cfg.Milvus.Collection,
		EmbeddingDim: cfg.Milvus.EmbeddingDim,
	}, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.vector.Close)

	s.embedder, err = embedding.NewClient(embedding.Config{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		Timeout: cfg.Embedding.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Run performs one full sync pass.
func (s *Syncer) Run(ctx context.Context) (SyncStats, error) {
	start := time.Now()
	var stats SyncStats

	if err := s.indexer.EnsureIndex(ctx); err != nil {
		return stats, err
	}
	if err := s.vector.EnsureCollection(ctx); err != nil {
		return stats, err
	}

	err := s.repo.ForEachBatch(ctx, syncBatchSize, func(entries []classify.CatalogEntry) error {
		stats.CatalogRows += len(entries)

		indexed, err := s.indexer.IndexEntries(ctx, entries)
		if err != nil {
			return err
		}
		stats.Indexed += indexed

		embedded, err := s.embedBatch(ctx, entries)
		if err != nil {
			return err
		}
		stats.Embedded += embedded
		return nil
	})

	stats.Elapsed = time.Since(start)
	if err != nil {
		return stats, err
	}

	s.logger.Info("catalog sync complete",
		logging.Int("rows", stats.CatalogRows),
		logging.Int("indexed", stats.Indexed),
		logging.Int("embedded", stats.Embedded),
		logging.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

func (s *Syncer) embedBatch(ctx context.Context, entries []classify.CatalogEntry) (int, error) {
	withText := make([]classify.CatalogEntry, 0, len(entries))
	vectors := make([][]float32, 0, len(entries))

	for _, entry := range entries {
		text := embeddingText(entry)
		if text == "" {
			continue
		}
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return 0, err
		}
		withText = append(withText, entry)
		vectors = append(vectors, vec)
	}
	return s.vector.InsertEntries(ctx, withText, vectors)
}

// embeddingText renders the embedded representation of an entry:
// description plus keyword bag, matching what queries are compared against.
func embeddingText(entry classify.CatalogEntry) string {
	parts := make([]string, 0, 2)
	if entry.Description != "" {
		parts = append(parts, entry.Description)
	}
	if len(entry.Keywords) > 0 {
		parts = append(parts, strings.Join(entry.Keywords, " "))
	}
	return strings.Join(parts, " ")
}

// Close releases the syncer's connections.
func (s *Syncer) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
