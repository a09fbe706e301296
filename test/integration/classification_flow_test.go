package integration

import (
	"net/http"
	"testing"

	"github.com/turtacn/tariffwise/pkg/types/classify"
)

func TestDirectClassificationOverHTTP(t *testing.T) {
	st := newStack(t)
	st.vector.hits = []classify.VectorHit{
		{Code: "0901.21", Description: "coffee, roasted, not decaffeinated", Similarity: 0.93},
		{Code: "0902.10", Description: "green tea", Similarity: 0.40},
	}

	status, body := st.postJSON(t, "/api/v1/classify", map[string]string{
		"query": "roasted arabica coffee",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["type"] != "result" {
		t.Fatalf("type = %v, want result (%v)", body["type"], body)
	}
	result, ok := body["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing result payload: %v", body)
	}
	if result["code"] != "0901.21" {
		t.Errorf("code = %v, want 0901.21", result["code"])
	}
	if conf, _ := result["confidence"].(float64); conf < 80 {
		t.Errorf("confidence = %v, want high", result["confidence"])
	}
}

func TestQuestionFlowOverHTTP(t *testing.T) {
	st := newStack(t)
	st.vector.hits = []classify.VectorHit{
		{Code: "2101.11", Description: "instant coffee", Similarity: 0.91},
		{Code: "0901.21", Description: "coffee, roasted", Similarity: 0.90},
	}

	status, body := st.postJSON(t, "/api/v1/classify", map[string]string{"query": "coffee"})
	if status != http.StatusOK || body["type"] != "question" {
		t.Fatalf("status = %d, body = %v, want a question outcome", status, body)
	}
	conversationID, _ := body["conversation_id"].(string)
	q, ok := body["question"].(map[string]interface{})
	if conversationID == "" || !ok {
		t.Fatalf("incomplete question outcome: %v", body)
	}
	questionID, _ := q["id"].(string)
	if questionID == "" {
		t.Fatalf("question without id: %v", q)
	}

	status, body = st.postJSON(t, "/api/v1/conversations/"+conversationID+"/answer", map[string]string{
		"question_id": questionID,
		"answer":      "21",
	})
	if status != http.StatusOK {
		t.Fatalf("answer status = %d, body = %v", status, body)
	}
	if body["type"] != "result" {
		t.Fatalf("type = %v after answer, want result (%v)", body["type"], body)
	}
	result := body["result"].(map[string]interface{})
	code, _ := result["code"].(string)
	if classify.ChapterOf(code) != "21" {
		t.Errorf("code = %s, want chapter 21", code)
	}
}

func TestMediumConfidenceConsultsCompletionService(t *testing.T) {
	st := newStack(t)
	st.vector.hits = []classify.VectorHit{
		{Code: "0901.21", Description: "coffee, roasted", Similarity: 0.72},
		{Code: "2101.12", Description: "preparations with a basis of coffee", Similarity: 0.70},
	}
	st.verification = &classify.VerificationResult{
		Code:       "0901.21",
		Confidence: 0.88,
		Reasoning:  "roasted beans, not an extract",
	}

	status, body := st.postJSON(t, "/api/v1/classify", map[string]string{
		"query": "roasted coffee",
	})
	if status != http.StatusOK || body["type"] != "result" {
		t.Fatalf("status = %d, body = %v, want a verified result", status, body)
	}
	result := body["result"].(map[string]interface{})
	if result["code"] != "0901.21" {
		t.Errorf("code = %v, want 0901.21", result["code"])
	}
	if conf, _ := result["confidence"].(float64); conf != 88 {
		t.Errorf("confidence = %v, want 88", result["confidence"])
	}
}

func TestNoCandidatesNeedsMoreInfo(t *testing.T) {
	st := newStack(t)

	status, body := st.postJSON(t, "/api/v1/classify", map[string]string{
		"query": "roasted coffee",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["type"] != "need_more_info" {
		t.Fatalf("type = %v, want need_more_info (%v)", body["type"], body)
	}
	if msg, _ := body["message"].(string); msg == "" {
		t.Error("need-more-info outcome must carry a message")
	}
}

func TestLexicalChannelFeedsCandidates(t *testing.T) {
	st := newStack(t)
	st.searchResponse = searchResponseFor([]classify.CatalogEntry{
		{
			Code:        "0901.21",
			Description: "Coffee, roasted, not decaffeinated",
			Keywords:    []string{"coffee", "roasted"},
			Chapter:     "09",
			Heading:     "0901",
		},
	})

	status, body := st.postJSON(t, "/api/v1/classify", map[string]string{
		"query": "roasted arabica coffee",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	// With only the lexical channel contributing, the outcome may be a
	// result or a clarifying question, but never an empty shrug.
	if body["type"] == "need_more_info" {
		t.Fatalf("lexical hits were dropped: %v", body)
	}
}

func TestAbandonConversationIdempotent(t *testing.T) {
	st := newStack(t)

	resp := st.do(t, http.MethodDelete, "/api/v1/conversations/nonexistent")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestProbesOverHTTP(t *testing.T) {
	st := newStack(t)

	live := st.do(t, http.MethodGet, "/healthz")
	defer live.Body.Close()
	if live.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d, want 200", live.StatusCode)
	}

	ready := st.do(t, http.MethodGet, "/readyz")
	defer ready.Body.Close()
	if ready.StatusCode != http.StatusOK {
		t.Errorf("readyz = %d, want 200", ready.StatusCode)
	}
}
