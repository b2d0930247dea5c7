// Package lexical provides the fallback retriever used when dense vector
// search comes back empty or weak. It standardizes a sentence's morphological
// analysis into a tag sequence and matches it against the normalized_tags
// field of a full-text index of annotated learner errors.
package lexical

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/gyojeong/bff/internal/retrieval"
	"github.com/gyojeong/bff/pkg/morph"
)

// DefaultIndex is the learner-error index searched by default.
const DefaultIndex = "graduation_project_data"

// DefaultTimeout bounds one analyze-and-search round trip. A hung index node
// must not stall the sentence task that is waiting on the fallback.
const DefaultTimeout = 5 * time.Second

const maxResults = 5

// Retriever analyzes a sentence, standardizes it, and searches the index.
type Retriever struct {
	analyzer morph.Analyzer
	es       *elasticsearch.Client
	index    string
	timeout  time.Duration
	logger   *slog.Logger
}

// Option is a functional option for [Retriever].
type Option func(*Retriever)

// WithTimeout overrides the per-retrieval deadline. Default: [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(r *Retriever) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRetriever wires the analyzer to an Elasticsearch client. If index is
// empty, [DefaultIndex] is used.
func NewRetriever(analyzer morph.Analyzer, es *elasticsearch.Client, index string, logger *slog.Logger, opts ...Option) *Retriever {
	if index == "" {
		index = DefaultIndex
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retriever{analyzer: analyzer, es: es, index: index, timeout: DefaultTimeout, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

type searchQuery struct {
	Size  int `json:"size"`
	Query struct {
		Match struct {
			NormalizedTags string `json:"normalized_tags"`
		} `json:"match"`
	} `json:"query"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Retrieve analyzes the sentence, builds the standardized tag query, and
// returns up to five matching error examples, all within the retriever's
// deadline. An empty standardized query
// short-circuits to an empty result without touching the index. Hits whose
// error_words field cannot be parsed are skipped.
func (r *Retriever) Retrieve(ctx context.Context, sentence string) ([]retrieval.ErrorExample, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	words, err := r.analyzer.Analyze(ctx, sentence)
	if err != nil {
		return nil, fmt.Errorf("lexical: analyze: %w", err)
	}

	query := Standardize(words)
	if query == "" {
		return nil, nil
	}

	var q searchQuery
	q.Size = maxResults
	q.Query.Match.NormalizedTags = query
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("lexical: marshal query: %w", err)
	}

	res, err := r.es.Search(
		r.es.Search.WithContext(ctx),
		r.es.Search.WithIndex(r.index),
		r.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("lexical: search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("lexical: search: unexpected status %s", res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("lexical: decode search response: %w", err)
	}

	examples := make([]retrieval.ErrorExample, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		original, _ := hit.Source["original_sentence"].(string)
		if original == "" {
			continue
		}
		errWords, err := retrieval.ParseErrorWords(hit.Source["error_words"])
		if err != nil {
			r.logger.Warn("skipping hit with malformed error_words",
				"original_sentence", original, "error", err)
			continue
		}
		examples = append(examples, retrieval.ErrorExample{
			OriginalSentence: original,
			ErrorWords:       errWords,
		})
	}
	if len(examples) == 0 {
		return nil, nil
	}
	return examples, nil
}
