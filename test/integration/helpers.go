// Package integration wires the real HTTP stack against in-process fake
// backends: an OpenSearch lookalike, an embedding endpoint, and a completion
// endpoint, all served over httptest. Only the vector store is stubbed at
// the port boundary since it speaks gRPC.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/turtacn/tariffwise/internal/classify/candidate"
	"github.com/turtacn/tariffwise/internal/classify/chapter"
	"github.com/turtacn/tariffwise/internal/classify/conversation"
	"github.com/turtacn/tariffwise/internal/classify/differential"
	"github.com/turtacn/tariffwise/internal/classify/engine"
	"github.com/turtacn/tariffwise/internal/classify/question"
	"github.com/turtacn/tariffwise/internal/classify/rules"
	"github.com/turtacn/tariffwise/internal/classify/terms"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/embedding"
	"github.com/turtacn/tariffwise/internal/infrastructure/llm"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/internal/infrastructure/search/opensearch"
	httpiface "github.com/turtacn/tariffwise/internal/interfaces/http"
	"github.com/turtacn/tariffwise/internal/interfaces/http/handlers"
	"github.com/turtacn/tariffwise/pkg/types/classify"
)

const emptySearchResponse = `{"hits":{"total":{"value":0,"relation":"eq"},"hits":[]}}`

// stubVector stands in for the vector store. Scoping filters hits by the
// chapter prefix of their code, matching the real searcher's expr semantics.
type stubVector struct {
	hits []classify.VectorHit
}

func (s *stubVector) Search(_ context.Context, _ []float32, chapters []string, _ int) ([]classify.VectorHit, error) {
	if len(chapters) == 0 {
		return s.hits, nil
	}
	scoped := map[string]bool{}
	for _, ch := range chapters {
		scoped[ch] = true
	}
	var out []classify.VectorHit
	for _, h := range s.hits {
		if scoped[classify.ChapterOf(h.Code)] {
			out = append(out, h)
		}
	}
	return out, nil
}

// stack is a fully wired API server speaking to fake backends.
type stack struct {
	server *httptest.Server
	vector *stubVector

	// searchResponse is the canned body the fake OpenSearch returns for
	// every _search request. Defaults to no hits.
	searchResponse string

	// verification is the structured answer the fake completion service
	// produces, or nil for an empty shrug.
	verification *classify.VerificationResult
}

func newStack(t *testing.T) *stack {
	t.Helper()

	st := &stack{
		vector:         &stubVector{},
		searchResponse: emptySearchResponse,
	}

	osServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "_search") {
			_, _ = io.Copy(io.Discard, r.Body)
			_, _ = w.Write([]byte(st.searchResponse))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(osServer.Close)

	embedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	t.Cleanup(embedServer.Close)

	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		verdict := st.verification
		if verdict == nil {
			verdict = &classify.VerificationResult{}
		}
		content, _ := json.Marshal(verdict)
		body, _ := json.Marshal(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": string(content)}},
			},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(llmServer.Close)

	nop := logging.NewNopLogger()
	cfg := config.NewDefaultConfig()

	rs, err := rules.Load()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	provider := rules.NewProvider(rs, nop)
	t.Cleanup(func() { _ = provider.Close() })

	osClient, err := opensearch.NewClient(opensearch.ClientConfig{
		Addresses:           []string{osServer.URL},
		HealthCheckInterval: time.Hour,
	}, nop)
	if err != nil {
		t.Fatalf("opensearch client: %v", err)
	}
	t.Cleanup(func() { _ = osClient.Close() })

	catalog, err := opensearch.NewCatalogSearcher(osClient, opensearch.CatalogConfig{Index: "tariff-catalog"}, nop)
	if err != nil {
		t.Fatalf("catalog searcher: %v", err)
	}

	embedder, err := embedding.NewClient(embedding.Config{
		BaseURL: embedServer.URL,
		Model:   "test-embed",
	}, nop)
	if err != nil {
		t.Fatalf("embedding client: %v", err)
	}

	verifier, err := llm.NewVerifier(llm.Config{
		BaseURL: llmServer.URL,
		Model:   "test-chat",
	}, nop)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	store := conversation.NewMemoryStore(config.ConversationConfig{
		IdleTTL:       time.Minute,
		SweepInterval: time.Minute,
	}, nop)
	t.Cleanup(func() { _ = store.Close() })

	analyzer := terms.NewAnalyzer(provider, nop)
	predictor := chapter.NewPredictor(provider, cfg.Scoring, nop)
	generator := candidate.NewGenerator(candidate.GeneratorDeps{
		Embedder: embedder,
		Vector:   st.vector,
		Catalog:  catalog,
		Logger:   nop,
	}, cfg.Retrieval, cfg.Scoring)
	scorer := candidate.NewScorer(provider, cfg.Scoring, predictor, nop)
	reranker := candidate.NewReranker(provider, cfg.Scoring, nop)
	differ := differential.NewAnalyzer(provider, nop)
	orchestrator := question.NewOrchestrator(provider, differ, cfg.Question, nop)

	svc := engine.NewService(engine.Deps{
		Analyzer:  analyzer,
		Predictor: predictor,
		Generator: generator,
		Scorer:    scorer,
		Reranker:  reranker,
		Differ:    differ,
		Questions: orchestrator,
		Store:     store,
		Verifier:  verifier,
		Logger:    nop,
	}, cfg.Engine)

	router := httpiface.NewRouter(httpiface.RouterConfig{
		Classify: handlers.NewClassifyHandler(svc, predictor, nop),
		Health: handlers.NewHealthHandler([]handlers.DependencyCheck{
			{Name: "opensearch", Check: osClient.Ping},
		}, nop),
		Logger: nop,
		Mode:   "test",
	})

	st.server = httptest.NewServer(router)
	t.Cleanup(st.server.Close)
	return st
}

func (s *stack) postJSON(t *testing.T, path string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(s.server.URL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode %s response %q: %v", path, raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func (s *stack) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// searchResponseFor renders entries into the OpenSearch hits envelope.
func searchResponseFor(entries []classify.CatalogEntry) string {
	hits := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		hits = append(hits, map[string]interface{}{
			"_index":  "tariff-catalog",
			"_id":     e.Code,
			"_score":  1.0,
			"_source": e,
		})
	}
	envelope := map[string]interface{}{
		"hits": map[string]interface{}{
			"total": map[string]interface{}{"value": len(hits), "relation": "eq"},
			"hits":  hits,
		},
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		panic(fmt.Sprintf("render search response: %v", err))
	}
	return string(raw)
}
