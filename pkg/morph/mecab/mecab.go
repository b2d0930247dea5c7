// Package mecab provides a morph.Analyzer backed by a mecab-ko analysis
// sidecar over HTTP.
//
// The sidecar wraps the mecab-ko tagger and a morphology-aware sentence
// splitter behind two JSON endpoints:
//
//	POST /v1/split    {"text": "..."}      -> {"sentences": ["...", ...]}
//	POST /v1/analyze  {"sentence": "..."}  -> {"words": [{"surface": ..., "morphemes": [...]}]}
package mecab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gyojeong/bff/pkg/morph"
)

// DefaultBaseURL is the default address of a locally running sidecar.
const DefaultBaseURL = "http://localhost:9040"

const defaultTimeout = 5 * time.Second

// Ensure Analyzer implements the morph.Analyzer interface at compile time.
var _ morph.Analyzer = (*Analyzer)(nil)

// Analyzer implements morph.Analyzer using the analysis sidecar.
// It is safe for concurrent use.
type Analyzer struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for [Analyzer].
type Option func(*Analyzer)

// WithTimeout sets the per-request HTTP timeout. Default: 5 s.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.httpClient.Timeout = d
		}
	}
}

// New creates an [Analyzer] talking to the sidecar at baseURL. If baseURL is
// empty, [DefaultBaseURL] is used. A trailing slash is stripped.
func New(baseURL string, opts ...Option) *Analyzer {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	a := &Analyzer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

type splitRequest struct {
	Text string `json:"text"`
}

type splitResponse struct {
	Sentences []string `json:"sentences"`
}

type analyzeRequest struct {
	Sentence string `json:"sentence"`
}

type analyzeResponse struct {
	Words []morph.Word `json:"words"`
}

// Split implements morph.Analyzer.
func (a *Analyzer) Split(ctx context.Context, text string) ([]string, error) {
	var out splitResponse
	if err := a.post(ctx, "/v1/split", splitRequest{Text: text}, &out); err != nil {
		return nil, fmt.Errorf("mecab: split: %w", err)
	}
	return out.Sentences, nil
}

// Analyze implements morph.Analyzer.
func (a *Analyzer) Analyze(ctx context.Context, sentence string) ([]morph.Word, error) {
	var out analyzeResponse
	if err := a.post(ctx, "/v1/analyze", analyzeRequest{Sentence: sentence}, &out); err != nil {
		return nil, fmt.Errorf("mecab: analyze: %w", err)
	}
	return out.Words, nil
}

func (a *Analyzer) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
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
