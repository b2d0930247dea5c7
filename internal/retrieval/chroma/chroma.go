// Package chroma provides the dense vector retriever backed by a Chroma
// collection of annotated learner-error sentences.
//
// Chroma exposes collections over plain HTTP. The client resolves the
// collection name to its id once, then issues nearest-neighbor queries:
//
//	GET  /api/v1/collections/{name}       -> {"id": "...", ...}
//	POST /api/v1/collections/{id}/query   -> {"documents": [[...]], "metadatas": [[...]], "distances": [[...]]}
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gyojeong/bff/internal/retrieval"
	"github.com/gyojeong/bff/pkg/provider/embeddings"
)

// DefaultBaseURL is the default address of a locally running Chroma server.
const DefaultBaseURL = "http://localhost:8000"

// DefaultTimeout bounds one outbound Chroma request. Retrieval is a
// best-effort prompt enrichment; a slow store must not hold a sentence task
// longer than this.
const DefaultTimeout = 5 * time.Second

const topK = 5

// Client is a minimal Chroma HTTP client scoped to one collection. The
// collection id is resolved lazily on first query and cached for the lifetime
// of the Client.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	mu sync.Mutex
	id string
}

// ClientOption is a functional option for [Client].
type ClientOption func(*Client)

// WithTimeout sets the per-request HTTP timeout. Default: [DefaultTimeout].
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a Client for the named collection. If baseURL is empty,
// [DefaultBaseURL] is used. collection must not be empty.
func NewClient(baseURL, collection string, opts ...ClientOption) (*Client, error) {
	if collection == "" {
		return nil, fmt.Errorf("chroma: collection must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// QueryResult is one raw nearest-neighbor hit.
type QueryResult struct {
	// Document is the stored sentence text.
	Document string
	// Metadata is the stored metadata object, decoded as loose JSON.
	Metadata map[string]any
	// Distance is the embedding-space distance reported by the store.
	Distance float64
}

type collectionResponse struct {
	ID string `json:"id"`
}

type queryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

type queryResponse struct {
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// Query runs a top-k nearest-neighbor search with the given query embedding.
// Results arrive ordered by ascending distance.
func (c *Client) Query(ctx context.Context, embedding []float32) ([]QueryResult, error) {
	id, err := c.collectionID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chroma: resolve collection %q: %w", c.collection, err)
	}

	body, err := json.Marshal(queryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"documents", "metadatas", "distances"},
	})
	if err != nil {
		return nil, fmt.Errorf("chroma: marshal query: %w", err)
	}

	var resp queryResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/collections/"+id+"/query", body, &resp); err != nil {
		return nil, fmt.Errorf("chroma: query: %w", err)
	}
	if len(resp.Documents) == 0 {
		return nil, nil
	}

	docs := resp.Documents[0]
	results := make([]QueryResult, 0, len(docs))
	for i, doc := range docs {
		r := QueryResult{Document: doc}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Distance = resp.Distances[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}

// collectionID resolves and caches the collection's id.
func (c *Client) collectionID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id != "" {
		return c.id, nil
	}
	var resp collectionResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/collections/"+url.PathEscape(c.collection), nil, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("collection response has no id")
	}
	c.id = resp.ID
	return c.id, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Retriever embeds a learner sentence and retrieves its nearest annotated
// error examples from the collection.
type Retriever struct {
	embedder embeddings.Provider
	client   *Client
	logger   *slog.Logger
}

// NewRetriever wires an embeddings provider to a collection client.
func NewRetriever(embedder embeddings.Provider, client *Client, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, client: client, logger: logger}
}

// Retrieve returns up to five nearest error examples for the sentence, plus
// the best-hit similarity estimated as 1 - distance. Hits whose error_words
// metadata cannot be parsed are skipped rather than failing the retrieval.
// An empty result reports similarity 0.
func (r *Retriever) Retrieve(ctx context.Context, sentence string) ([]retrieval.ErrorExample, float64, error) {
	embedding, err := r.embedder.Embed(ctx, sentence)
	if err != nil {
		return nil, 0, fmt.Errorf("chroma: embed query: %w", err)
	}

	hits, err := r.client.Query(ctx, embedding)
	if err != nil {
		return nil, 0, err
	}
	if len(hits) == 0 {
		return nil, 0, nil
	}

	examples := make([]retrieval.ErrorExample, 0, len(hits))
	for _, hit := range hits {
		words, err := retrieval.ParseErrorWords(hit.Metadata["error_words"])
		if err != nil {
			r.logger.Warn("skipping hit with malformed error_words",
				"document", hit.Document, "error", err)
			continue
		}
		examples = append(examples, retrieval.ErrorExample{
			OriginalSentence: hit.Document,
			ErrorWords:       words,
		})
	}

	similarity := 1 - hits[0].Distance
	return examples, similarity, nil
}
