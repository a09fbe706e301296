// Package llm is the completion-service client used to verify
// medium-confidence classifications. The suggestion it returns is advisory:
// the decision engine discards it below a confidence floor, and any failure
// here maps to the verification error code so the engine can fall back.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

// Config holds the completion-service client settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Verifier asks the completion service to pick the best code from a
// shortlist. It implements engine.Verifier.
type Verifier struct {
	httpClient *http.Client
	config     Config
	logger     logging.Logger
}

// NewVerifier validates cfg and returns a ready verifier.
func NewVerifier(cfg Config, logger logging.Logger) (*Verifier, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "llm: base URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.New(errors.ErrCodeValidation, "llm: model name is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Verifier{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logger.Named("verifier"),
	}, nil
}

const systemPrompt = `You are a customs tariff classification assistant. ` +
	`Given a product description and a shortlist of HS codes, pick the single ` +
	`best code. Respond with JSON only: ` +
	`{"code": "<code from the list>", "confidence": <0..1>, "reasoning": "<one sentence>"}`

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Verify asks the service to choose among cands for query.
func (v *Verifier) Verify(ctx context.Context, query string, cands []classify.Candidate) (*classify.VerificationResult, error) {
	if len(cands) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "llm: no candidates to verify")
	}

	payload, err := json.Marshal(chatRequest{
		Model: v.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(query, cands)},
		},
		Temperature: v.config.Temperature,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "llm: failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		v.config.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVerificationFailed, "llm: failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if v.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.config.APIKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVerificationFailed, "llm: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVerificationFailed, "llm: failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrCodeVerificationFailed, "llm: service returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVerificationFailed, "llm: malformed response")
	}
	if parsed.Error != nil {
		return nil, errors.Newf(errors.ErrCodeVerificationFailed, "llm: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New(errors.ErrCodeVerificationFailed, "llm: response contains no choices")
	}

	result, err := parseVerification(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if !codeInShortlist(result.Code, cands) {
		// A hallucinated code must not leak into results.
		return nil, errors.Newf(errors.ErrCodeVerificationFailed,
			"llm: suggested code %s is not in the shortlist", result.Code)
	}
	return result, nil
}

func buildPrompt(query string, cands []classify.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\n\nCandidate codes:\n", query)
	for _, c := range cands {
		fmt.Fprintf(&b, "- %s: %s\n", c.Code, c.Description)
	}
	return b.String()
}

// parseVerification extracts the JSON object from the completion content,
// tolerating markdown code fences around it.
func parseVerification(content string) (*classify.VerificationResult, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if i := strings.LastIndex(content, "```"); i >= 0 {
			content = content[:i]
		}
		content = strings.TrimSpace(content)
	}
	// Fall back to the outermost braces when the model wraps the object in
	// prose.
	if !strings.HasPrefix(content, "{") {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start < 0 || end <= start {
			return nil, errors.New(errors.ErrCodeVerificationFailed, "llm: no JSON object in response")
		}
		content = content[start : end+1]
	}

	var result classify.VerificationResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVerificationFailed, "llm: unparseable verification payload")
	}
	if result.Code == "" {
		return nil, errors.New(errors.ErrCodeVerificationFailed, "llm: verification payload has no code")
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, errors.Newf(errors.ErrCodeVerificationFailed,
			"llm: confidence %v is outside [0,1]", result.Confidence)
	}
	return &result, nil
}

func codeInShortlist(code string, cands []classify.Candidate) bool {
	for _, c := range cands {
		if c.Code == code {
			return true
		}
	}
	return false
}
