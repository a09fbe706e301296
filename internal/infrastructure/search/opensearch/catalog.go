package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"

	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// CatalogConfig tunes the catalog searcher.
type CatalogConfig struct {
	Index         string
	SearchTimeout time.Duration
	// LookupSize caps the recall pool returned by Lookup. The generator
	// re-scores entries term by term, so the pool is deliberately generous.
	LookupSize int
}

// CatalogSearcher queries the catalog index. It implements
// candidate.CatalogIndex.
type CatalogSearcher struct {
	client *Client
	config CatalogConfig
	logger logging.Logger
}

// NewCatalogSearcher wires a searcher onto an established client.
func NewCatalogSearcher(client *Client, cfg CatalogConfig, logger logging.Logger) (*CatalogSearcher, error) {
	if cfg.Index == "" {
		return nil, errors.New(errors.ErrCodeValidation, "opensearch: catalog index name is required")
	}
	if cfg.SearchTimeout == 0 {
		cfg.SearchTimeout = 5 * time.Second
	}
	if cfg.LookupSize == 0 {
		cfg.LookupSize = 200
	}
	return &CatalogSearcher{
		client: client,
		config: cfg,
		logger: logger.Named("catalog-searcher"),
	}, nil
}

// catalogDoc is the indexed document shape. It mirrors classify.CatalogEntry
// field for field so hits unmarshal directly.
type catalogDoc struct {
	Code           string   `json:"code"`
	Description    string   `json:"description"`
	Keywords       []string `json:"keywords"`
	CommonProducts []string `json:"common_products"`
	Synonyms       []string `json:"synonyms"`
	Chapter        string   `json:"chapter"`
	Heading        string   `json:"heading"`
}

// Lookup returns catalog entries whose indexed term bag intersects terms.
// Matching is recall oriented: each term is matched with fuzziness so the
// generator's own exact/substring/fuzzy pass sees near misses too.
func (s *CatalogSearcher) Lookup(ctx context.Context, terms []string) ([]classify.CatalogEntry, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	should := make([]map[string]interface{}, 0, len(terms))
	for _, term := range terms {
		should = append(should, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     term,
				"fields":    []string{"keywords^3", "common_products^2", "synonyms^2", "description"},
				"fuzziness": "AUTO",
			},
		})
	}
	query := map[string]interface{}{
		"size": s.config.LookupSize,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should":               should,
				"minimum_should_match": 1,
			},
		},
	}

	entries, err := s.search(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeLexicalSearchFailed, "opensearch: term lookup failed")
	}
	return entries, nil
}

// ScopedSubstring searches descriptions and keyword bags for literal term
// occurrences inside the given chapters.
func (s *CatalogSearcher) ScopedSubstring(ctx context.Context, terms []string, chapters []string, limit int) ([]classify.CatalogEntry, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = s.config.LookupSize
	}

	should := make([]map[string]interface{}, 0, len(terms)*2)
	for _, term := range terms {
		should = append(should,
			map[string]interface{}{
				"match_phrase": map[string]interface{}{"description": term},
			},
			map[string]interface{}{
				"wildcard": map[string]interface{}{
					"keywords.raw": map[string]interface{}{"value": "*" + term + "*"},
				},
			},
		)
	}
	boolQuery := map[string]interface{}{
		"should":               should,
		"minimum_should_match": 1,
	}
	if len(chapters) > 0 {
		boolQuery["filter"] = []map[string]interface{}{
			{"terms": map[string]interface{}{"chapter": chapters}},
		}
	}
	query := map[string]interface{}{
		"size":  limit,
		"query": map[string]interface{}{"bool": boolQuery},
	}

	entries, err := s.search(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeLexicalSearchFailed, "opensearch: scoped substring search failed")
	}
	return entries, nil
}

func (s *CatalogSearcher) search(ctx context.Context, query map[string]interface{}) ([]classify.CatalogEntry, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.SearchTimeout)
	defer cancel()

	resp, err := s.client.API().Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{s.config.Index},
		Body:    bytes.NewReader(body),
	})
	if err != nil {
		return nil, err
	}

	entries := make([]classify.CatalogEntry, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var doc catalogDoc
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			s.logger.Warn("skipping malformed catalog document", logging.String("id", hit.ID), logging.Err(err))
			continue
		}
		if doc.Code == "" {
			continue
		}
		entries = append(entries, classify.CatalogEntry{
			Code:           doc.Code,
			Description:    doc.Description,
			Keywords:       doc.Keywords,
			CommonProducts: doc.CommonProducts,
			Synonyms:       doc.Synonyms,
			Chapter:        doc.Chapter,
			Heading:        doc.Heading,
		})
	}
	return entries, nil
}
