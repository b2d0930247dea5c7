package chroma_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gyojeong/bff/internal/retrieval/chroma"
	"github.com/gyojeong/bff/pkg/provider/embeddings/mock"
)

// collectionServer serves the collection-id lookup and a canned query
// response, counting requests per endpoint.
func collectionServer(t *testing.T, name, id string, query map[string]any, lookups, queries *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/collections/" + name:
			*lookups++
			_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "name": name})
		case "/api/v1/collections/" + id + "/query":
			*queries++
			body, _ := io.ReadAll(r.Body)
			var req map[string]any
			if err := json.Unmarshal(body, &req); err != nil {
				t.Errorf("decode query request: %v", err)
			}
			if n, _ := req["n_results"].(float64); n != 5 {
				t.Errorf("n_results = %v, want 5", req["n_results"])
			}
			include, _ := req["include"].([]any)
			if len(include) != 3 {
				t.Errorf("include = %v, want documents/metadatas/distances", include)
			}
			_ = json.NewEncoder(w).Encode(query)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetrieve_ParsesHitsAndSimilarity(t *testing.T) {
	var lookups, queries int
	srv := collectionServer(t, "korean_error_words", "col-1", map[string]any{
		"documents": [][]string{{"나는 학교에 갔다.", "밥이 먹었다."}},
		"metadatas": [][]map[string]any{{
			{"error_words": `[{"text":"은 -> 는"}]`},
			{"error_words": []any{map[string]any{"text": "이 -> 을", "error_aspect": "조사"}}},
		}},
		"distances": [][]float64{{0.25, 0.4}},
	}, &lookups, &queries)
	defer srv.Close()

	client, err := chroma.NewClient(srv.URL, "korean_error_words")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	embedder := &mock.Provider{EmbedResult: []float32{0.1, 0.2}, DimensionsValue: 2}
	r := chroma.NewRetriever(embedder, client, discard())

	examples, sim, err := r.Retrieve(context.Background(), "나는 학교에 간다.")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(examples) != 2 {
		t.Fatalf("examples = %+v, want 2", examples)
	}
	if examples[0].OriginalSentence != "나는 학교에 갔다." || examples[0].ErrorWords[0].Text != "은 -> 는" {
		t.Errorf("first example = %+v", examples[0])
	}
	if examples[1].ErrorWords[0].ErrorAspect != "조사" {
		t.Errorf("second example = %+v", examples[1])
	}
	if math.Abs(sim-0.75) > 1e-9 {
		t.Errorf("similarity = %v, want 0.75", sim)
	}
	if len(embedder.EmbedCalls) != 1 || embedder.EmbedCalls[0].Text != "나는 학교에 간다." {
		t.Errorf("embed calls = %+v", embedder.EmbedCalls)
	}
}

func TestRetrieve_CachesCollectionID(t *testing.T) {
	var lookups, queries int
	srv := collectionServer(t, "korean_error_words", "col-1", map[string]any{
		"documents": [][]string{{}},
		"metadatas": [][]map[string]any{{}},
		"distances": [][]float64{{}},
	}, &lookups, &queries)
	defer srv.Close()

	client, err := chroma.NewClient(srv.URL, "korean_error_words")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	embedder := &mock.Provider{EmbedResult: []float32{0.5}}
	r := chroma.NewRetriever(embedder, client, discard())

	for range 3 {
		if _, _, err := r.Retrieve(context.Background(), "문장"); err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
	}
	if lookups != 1 {
		t.Errorf("collection lookups = %d, want 1", lookups)
	}
	if queries != 3 {
		t.Errorf("queries = %d, want 3", queries)
	}
}

func TestRetrieve_SkipsMalformedMetadata(t *testing.T) {
	var lookups, queries int
	srv := collectionServer(t, "korean_error_words", "col-1", map[string]any{
		"documents": [][]string{{"좋은 문장.", "깨진 문장."}},
		"metadatas": [][]map[string]any{{
			{"error_words": `[{"text":"은 -> 는"}]`},
			{"error_words": 42},
		}},
		"distances": [][]float64{{0.1, 0.2}},
	}, &lookups, &queries)
	defer srv.Close()

	client, err := chroma.NewClient(srv.URL, "korean_error_words")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	r := chroma.NewRetriever(&mock.Provider{EmbedResult: []float32{0.5}}, client, discard())

	examples, sim, err := r.Retrieve(context.Background(), "문장")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(examples) != 1 || examples[0].OriginalSentence != "좋은 문장." {
		t.Errorf("examples = %+v, want only the well-formed hit", examples)
	}
	if math.Abs(sim-0.9) > 1e-9 {
		t.Errorf("similarity = %v, want 0.9", sim)
	}
}

func TestRetrieve_EmptyResult(t *testing.T) {
	var lookups, queries int
	srv := collectionServer(t, "korean_error_words", "col-1", map[string]any{
		"documents": [][]string{{}},
		"metadatas": [][]map[string]any{{}},
		"distances": [][]float64{{}},
	}, &lookups, &queries)
	defer srv.Close()

	client, err := chroma.NewClient(srv.URL, "korean_error_words")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	r := chroma.NewRetriever(&mock.Provider{EmbedResult: []float32{0.5}}, client, discard())

	examples, sim, err := r.Retrieve(context.Background(), "문장")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(examples) != 0 || sim != 0 {
		t.Errorf("examples = %v, sim = %v; want empty and 0", examples, sim)
	}
}

func TestRetrieve_EmbedFailure(t *testing.T) {
	client, err := chroma.NewClient("http://127.0.0.1:19999", "korean_error_words")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	embedder := &mock.Provider{EmbedErr: context.DeadlineExceeded}
	r := chroma.NewRetriever(embedder, client, discard())

	if _, _, err := r.Retrieve(context.Background(), "문장"); err == nil {
		t.Error("Retrieve must fail when the encoder fails")
	}
}

func TestNewClient_EmptyCollection(t *testing.T) {
	if _, err := chroma.NewClient("http://localhost:8000", ""); err == nil {
		t.Error("NewClient with empty collection must error")
	}
}

func TestRetrieve_TimeoutBoundsHangingStore(t *testing.T) {
	t.Parallel()

	if chroma.DefaultTimeout != 5*time.Second {
		t.Errorf("DefaultTimeout = %v, want 5s", chroma.DefaultTimeout)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client, err := chroma.NewClient(srv.URL, "korean_error_words",
		chroma.WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	r := chroma.NewRetriever(&mock.Provider{EmbedResult: []float32{0.5}}, client, discard())

	start := time.Now()
	_, _, err = r.Retrieve(context.Background(), "나는 밥을 먹었다.")
	if err == nil {
		t.Fatal("Retrieve must fail when the store never answers")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Retrieve took %v, the timeout did not bind", elapsed)
	}
}
