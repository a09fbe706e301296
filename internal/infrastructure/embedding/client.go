// Package embedding is the HTTP client for the embedding service. Failures
// here degrade retrieval to the lexical channels, so the client reports
// errors with the retrieval error code and never panics on malformed
// responses.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/errors"
)

// Config holds the embedding-service client settings.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls the embedding service. Identical in-flight requests are
// coalesced: the generator embeds the same normalized query on every
// conversation round, and concurrent rounds for one query should hit the
// service once.
type Client struct {
	httpClient *http.Client
	config     Config
	group      singleflight.Group
	logger     logging.Logger
}

// NewClient validates cfg and returns a ready client.
func NewClient(cfg Config, logger logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "embedding: base URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.New(errors.ErrCodeValidation, "embedding: model name is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logger.Named("embedding"),
	}, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns the vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New(errors.ErrCodeValidation, "embedding: empty input text")
	}

	v, err, _ := c.group.Do(text, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embedRequest{
		Model: c.config.Model,
		Input: []string{text},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "embedding: failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "embedding: failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "embedding: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "embedding: failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrCodeEmbeddingFailed,
			"embedding: service returned status %d", resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "embedding: malformed response")
	}
	if parsed.Error != nil {
		return nil, errors.Newf(errors.ErrCodeEmbeddingFailed, "embedding: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "embedding: response contains no vector")
	}

	c.logger.Debug("embedded query",
		logging.Int("dim", len(parsed.Data[0].Embedding)),
		logging.Duration("elapsed", time.Since(start)))
	return parsed.Data[0].Embedding, nil
}
