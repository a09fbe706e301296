package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/errors"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

var shortlist = []classify.Candidate{
	{Code: "0901.21", Description: "Coffee, roasted, not decaffeinated"},
	{Code: "2101.11", Description: "Extracts, essences and concentrates of coffee"},
}

func newTestVerifier(t *testing.T, content string, status int) *Verifier {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	v, err := NewVerifier(Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "qwen2.5-72b"}, logging.NewNopLogger())
	require.NoError(t, err)
	return v
}

func TestVerifyPlainJSON(t *testing.T) {
	v := newTestVerifier(t, `{"code": "0901.21", "confidence": 0.88, "reasoning": "roasted beans"}`, http.StatusOK)

	res, err := v.Verify(context.Background(), "roasted coffee beans", shortlist)
	require.NoError(t, err)
	assert.Equal(t, "0901.21", res.Code)
	assert.InDelta(t, 0.88, res.Confidence, 1e-9)
}

func TestVerifyFencedJSON(t *testing.T) {
	content := "```json\n{\"code\": \"2101.11\", \"confidence\": 0.8, \"reasoning\": \"instant\"}\n```"
	v := newTestVerifier(t, content, http.StatusOK)

	res, err := v.Verify(context.Background(), "instant coffee", shortlist)
	require.NoError(t, err)
	assert.Equal(t, "2101.11", res.Code)
}

func TestVerifyJSONWrappedInProse(t *testing.T) {
	content := `Based on the description, {"code": "0901.21", "confidence": 0.7, "reasoning": "whole beans"} is best.`
	v := newTestVerifier(t, content, http.StatusOK)

	res, err := v.Verify(context.Background(), "coffee beans", shortlist)
	require.NoError(t, err)
	assert.Equal(t, "0901.21", res.Code)
}

func TestVerifyRejectsCodeOutsideShortlist(t *testing.T) {
	v := newTestVerifier(t, `{"code": "8703.23", "confidence": 0.9, "reasoning": "?"}`, http.StatusOK)

	_, err := v.Verify(context.Background(), "coffee", shortlist)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeVerificationFailed))
}

func TestVerifyRejectsOutOfRangeConfidence(t *testing.T) {
	v := newTestVerifier(t, `{"code": "0901.21", "confidence": 8.8, "reasoning": "?"}`, http.StatusOK)

	_, err := v.Verify(context.Background(), "coffee", shortlist)
	require.Error(t, err)
}

func TestVerifyServerError(t *testing.T) {
	v := newTestVerifier(t, "", http.StatusServiceUnavailable)

	_, err := v.Verify(context.Background(), "coffee", shortlist)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeVerificationFailed))
}

func TestVerifyNoCandidates(t *testing.T) {
	v := newTestVerifier(t, `{"code": "0901.21", "confidence": 0.9}`, http.StatusOK)

	_, err := v.Verify(context.Background(), "coffee", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}
