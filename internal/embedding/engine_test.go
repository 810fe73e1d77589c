package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled copy", []float32{1, 0}, []float32{4, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CosineSimilarity(tc.a, tc.b)
			if err != nil {
				t.Fatalf("CosineSimilarity failed: %v", err)
			}
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("similarity = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); err == nil {
		t.Fatal("expected an error for mismatched dimensions")
	}
}

func TestCosineSimilarityZeroMagnitude(t *testing.T) {
	got, err := CosineSimilarity([]float32{0, 0}, []float32{1, 2})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if got != 0 {
		t.Errorf("zero vector should compare as 0, got %f", got)
	}
}

func TestNewEngineRejectsUnknownProvider(t *testing.T) {
	if _, err := NewEngine(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("expected an error for an unknown provider")
	}
}

func TestNewEngineGenAIRequiresAPIKey(t *testing.T) {
	if _, err := NewEngine(Config{Provider: "genai"}); err == nil {
		t.Fatal("expected an error when the GenAI key is missing")
	}
}

func TestNewEngineOllamaDefaults(t *testing.T) {
	eng, err := NewEngine(Config{Provider: "ollama"})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if eng.Name() != "ollama:embeddinggemma" {
		t.Errorf("Name() = %q, want ollama:embeddinggemma", eng.Name())
	}
	if eng.Dimensions() != 768 {
		t.Errorf("Dimensions() = %d, want the embeddinggemma default 768", eng.Dimensions())
	}
}

func TestOllamaEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Model != "testmodel" {
			t.Errorf("model = %q, want testmodel", req.Model)
		}
		if req.Prompt != "def add(a, b): return a + b" {
			t.Errorf("prompt = %q", req.Prompt)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embedding": [0.5, 0.25, 0.125]}`))
	}))
	defer server.Close()

	eng, err := NewOllamaEngine(server.URL, "testmodel")
	if err != nil {
		t.Fatalf("NewOllamaEngine failed: %v", err)
	}

	vec, err := eng.Embed(context.Background(), "def add(a, b): return a + b")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	want := []float32{0.5, 0.25, 0.125}
	if len(vec) != len(want) {
		t.Fatalf("got %d dimensions, want %d", len(vec), len(want))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("vec[%d] = %f, want %f", i, vec[i], want[i])
		}
	}

	// The first response corrects the dimension guess.
	if eng.Dimensions() != 3 {
		t.Errorf("Dimensions() = %d after a 3-wide response", eng.Dimensions())
	}
}

func TestOllamaEmbedBatchPreservesOrder(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		// One dimension per prompt character keeps the order visible.
		fmt.Fprintf(w, `{"embedding": [%d]}`, len(req.Prompt))
	}))
	defer server.Close()

	eng, _ := NewOllamaEngine(server.URL, "testmodel")
	vecs, err := eng.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if requests != 3 {
		t.Errorf("expected 3 sequential requests, saw %d", requests)
	}
	for i, wantLen := range []float32{1, 2, 3} {
		if len(vecs[i]) != 1 || vecs[i][0] != wantLen {
			t.Errorf("vecs[%d] = %v, want [%f]", i, vecs[i], wantLen)
		}
	}
}

func TestOllamaEmbedSurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	eng, _ := NewOllamaEngine(server.URL, "missingmodel")
	_, err := eng.Embed(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected an error from a 404 response")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error should carry status and body, got: %v", err)
	}
}

func TestOllamaEmbedRejectsEmptyVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding": []}`))
	}))
	defer server.Close()

	eng, _ := NewOllamaEngine(server.URL, "testmodel")
	if _, err := eng.Embed(context.Background(), "anything"); err == nil {
		t.Fatal("an empty embedding should be an error, not a zero-dim vector")
	}
}

func TestOllamaHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("health check hit %s, want /api/tags", r.URL.Path)
		}
		w.Write([]byte(`{"models": []}`))
	}))

	eng, _ := NewOllamaEngine(server.URL, "testmodel")
	if err := eng.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck against a live server failed: %v", err)
	}

	server.Close()
	if err := eng.HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck against a dead server should fail")
	}
}

func TestParseTaskTypeFallsBack(t *testing.T) {
	if got := parseTaskType("NOT_A_TASK"); got != parseTaskType("SEMANTIC_SIMILARITY") {
		t.Errorf("unknown task type should fall back to semantic similarity, got %v", got)
	}
	if got := parseTaskType(""); got != parseTaskType("SEMANTIC_SIMILARITY") {
		t.Errorf("empty task type should default to semantic similarity, got %v", got)
	}
}
