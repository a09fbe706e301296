package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// CatalogRepository reads and writes tariff catalog rows. Postgres is the
// system of record; the search indexes are derived from it by the sync
// command.
type CatalogRepository struct {
	pool   *Pool
	logger logging.Logger
}

// NewCatalogRepository binds a repository to the pool.
func NewCatalogRepository(pool *Pool, logger logging.Logger) *CatalogRepository {
	return &CatalogRepository{pool: pool, logger: logger.Named("catalog-repo")}
}

const upsertEntrySQL = `
INSERT INTO tariff_codes (code, description, keywords, common_products, synonyms, chapter, heading, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (code) DO UPDATE SET
    description     = EXCLUDED.description,
    keywords        = EXCLUDED.keywords,
    common_products = EXCLUDED.common_products,
    synonyms        = EXCLUDED.synonyms,
    chapter         = EXCLUDED.chapter,
    heading         = EXCLUDED.heading,
    updated_at      = now()`

// UpsertEntries writes entries in one transaction, inserting new codes and
// refreshing existing ones.
func (r *CatalogRepository) UpsertEntries(ctx context.Context, entries []classify.CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.pool.Raw().BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "postgres: failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		if e.Code == "" {
			continue
		}
		chapter := e.Chapter
		if chapter == "" {
			chapter = classify.ChapterOf(e.Code)
		}
		batch.Queue(upsertEntrySQL,
			e.Code, e.Description, e.Keywords, e.CommonProducts, e.Synonyms, chapter, e.Heading)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "postgres: catalog upsert failed")
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "postgres: failed to commit catalog upsert")
	}

	r.logger.Info("catalog entries upserted", logging.Int("count", len(entries)))
	return nil
}

const selectEntrySQL = `
SELECT code, description, keywords, common_products, synonyms, chapter, heading
FROM tariff_codes WHERE code = $1`

// GetByCode fetches one catalog entry.
func (r *CatalogRepository) GetByCode(ctx context.Context, code string) (*classify.CatalogEntry, error) {
	var e classify.CatalogEntry
	err := r.pool.Raw().QueryRow(ctx, selectEntrySQL, code).Scan(
		&e.Code, &e.Description, &e.Keywords, &e.CommonProducts, &e.Synonyms, &e.Chapter, &e.Heading)
	if err == pgx.ErrNoRows {
		return nil, errors.Newf(errors.ErrCodeNotFound, "postgres: tariff code %s not found", code)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "postgres: catalog lookup failed")
	}
	return &e, nil
}

const listEntriesSQL = `
SELECT code, description, keywords, common_products, synonyms, chapter, heading
FROM tariff_codes ORDER BY code LIMIT $1 OFFSET $2`

// ForEachBatch streams the catalog in pages of batchSize through fn. fn
// returning an error stops the scan.
func (r *CatalogRepository) ForEachBatch(ctx context.Context, batchSize int, fn func([]classify.CatalogEntry) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	offset := 0
	for {
		rows, err := r.pool.Raw().Query(ctx, listEntriesSQL, batchSize, offset)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "postgres: catalog scan failed")
		}

		batch := make([]classify.CatalogEntry, 0, batchSize)
		for rows.Next() {
			var e classify.CatalogEntry
			if err := rows.Scan(&e.Code, &e.Description, &e.Keywords, &e.CommonProducts, &e.Synonyms, &e.Chapter, &e.Heading); err != nil {
				rows.Close()
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "postgres: catalog row scan failed")
			}
			batch = append(batch, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "postgres: catalog scan failed")
		}

		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		offset += batchSize
	}
}

// Count reports the catalog size. Used by the readiness probe to refuse
// serving from an empty catalog.
func (r *CatalogRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.Raw().QueryRow(ctx, `SELECT count(*) FROM tariff_codes`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "postgres: catalog count failed")
	}
	return n, nil
}
