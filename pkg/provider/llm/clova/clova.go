// Package clova implements llm.Provider against the Clova Studio
// chat-completions v3 HTTP API.
//
// The client enforces a process-wide token bucket of 60 calls per rolling
// 60-second window shared by both operations, retries HTTP 429 responses with
// exponential backoff (2 s initial, ×2, capped at 60 s, at most 3 attempts
// total), and checks the remote status envelope on every reply; the service
// wraps results in {"status": {"code", "message"}, ...} and signals success
// with the string code "20000" regardless of the HTTP status line.
package clova

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/gyojeong/bff/pkg/provider/llm"
)

const (
	// DefaultURL is the chat-completions endpoint for the HCX-007 model.
	DefaultURL = "https://clovastudio.stream.ntruss.com/v3/chat-completions/HCX-007"

	// successCode is the status envelope code that marks a successful reply.
	successCode = "20000"

	defaultTimeout      = 30 * time.Second
	defaultRetryInitial = 2 * time.Second
	defaultRetryCap     = 60 * time.Second

	// maxAttempts is the total request budget per call: the first attempt
	// plus up to two retries, taken only on HTTP 429.
	maxAttempts = 3

	// Rate limit: 60 calls per rolling 60-second window.
	rateCallsPerWindow = 60
)

// Ensure Client implements llm.Provider at compile time.
var _ llm.Provider = (*Client)(nil)

// Client is an llm.Provider backed by Clova Studio. It is safe for concurrent
// use; the rate limiter and HTTP client are shared across goroutines.
type Client struct {
	apiKey     string
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	params     llm.Params

	retryInitial time.Duration
	retryCap     time.Duration
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithURL overrides the chat-completions endpoint URL.
func WithURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.url = url
		}
	}
}

// WithTimeout sets the per-request HTTP timeout. Default: 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLimiter replaces the default 60-per-minute token bucket. Pass a shared
// limiter when several clients must draw from one budget.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithDefaultParams replaces the sampling parameters used when a call passes
// no overrides.
func WithDefaultParams(p llm.Params) Option {
	return func(c *Client) { c.params = p }
}

// WithRetrySchedule tunes the 429 backoff schedule. initial is the delay
// before the first retry; cap bounds the growth of subsequent delays.
func WithRetrySchedule(initial, cap time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.retryInitial = initial
		}
		if cap > 0 {
			c.retryCap = cap
		}
	}
}

// New creates a Clova Studio client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("clova: apiKey must not be empty")
	}
	c := &Client{
		apiKey:       apiKey,
		url:          DefaultURL,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		limiter:      rate.NewLimiter(rate.Every(time.Second), rateCallsPerWindow),
		params:       llm.DefaultParams(),
		retryInitial: defaultRetryInitial,
		retryCap:     defaultRetryCap,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ---- wire types ----

// chatRequest is the JSON body of a chat-completions v3 request.
type chatRequest struct {
	Messages            []llm.Message   `json:"messages"`
	TopP                float64         `json:"topP"`
	TopK                int             `json:"topK"`
	MaxCompletionTokens int             `json:"maxCompletionTokens"`
	Temperature         float64         `json:"temperature"`
	RepetitionPenalty   float64         `json:"repetitionPenalty"`
	ResponseFormat      *responseFormat `json:"responseFormat,omitempty"`
	Thinking            thinking        `json:"thinking"`
}

// responseFormat requests a JSON-only reply constrained by schema.
type responseFormat struct {
	Type   string         `json:"type"`
	Schema map[string]any `json:"schema"`
}

// thinking disables the model's reasoning pass; the pipeline needs short
// deterministic outputs, not chain-of-thought latency.
type thinking struct {
	Effort string `json:"effort"`
}

// statusEnvelope wraps every reply. Code is a string, not an integer.
type statusEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// chatResponse is the JSON body of a chat-completions v3 reply.
type chatResponse struct {
	Status statusEnvelope `json:"status"`
	Result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"result"`
}

// ---- Provider implementation ----

// Chat implements llm.Provider by requesting a free-form text completion.
func (c *Client) Chat(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (string, error) {
	cfg := c.callConfig(opts)
	return c.call(ctx, messages, nil, cfg)
}

// ChatStructured implements llm.Provider. It derives a JSON schema from out's
// type, requests a JSON-constrained completion, and strictly decodes the
// returned content into out. Unknown fields and type mismatches fail the call
// with reason "schema"; malformed JSON fails it with reason "parse".
func (c *Client) ChatStructured(ctx context.Context, messages []llm.Message, out any, opts ...llm.CallOption) error {
	schema, err := llm.BuildSchema(out)
	if err != nil {
		return llm.NewError(llm.ReasonSchema, "build response schema", err)
	}
	cfg := c.callConfig(opts)
	content, err := c.call(ctx, messages, &responseFormat{Type: "json", Schema: schema}, cfg)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) || strings.Contains(err.Error(), "unknown field") {
			return llm.NewError(llm.ReasonSchema, "response does not conform to schema", err)
		}
		return llm.NewError(llm.ReasonParse, "response content is not valid JSON", err)
	}
	return nil
}

func (c *Client) callConfig(opts []llm.CallOption) llm.CallConfig {
	cfg := llm.CallConfig{Params: c.params}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// call acquires a rate-limit slot, then performs the HTTP exchange with the
// 429 retry schedule. The slot admits the whole call; individual attempts do
// not draw additional tokens.
func (c *Client) call(ctx context.Context, messages []llm.Message, format *responseFormat, cfg llm.CallConfig) (string, error) {
	if len(messages) == 0 {
		return "", llm.NewError(llm.ReasonTransport, "empty message list", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", llm.NewError(llm.ReasonTransport, "rate limiter wait", err)
	}

	body, err := json.Marshal(chatRequest{
		Messages:            messages,
		TopP:                cfg.Params.TopP,
		TopK:                cfg.Params.TopK,
		MaxCompletionTokens: cfg.Params.MaxCompletionTokens,
		Temperature:         cfg.Params.Temperature,
		RepetitionPenalty:   cfg.Params.RepetitionPenalty,
		ResponseFormat:      format,
		Thinking:            thinking{Effort: "none"},
	})
	if err != nil {
		return "", llm.NewError(llm.ReasonTransport, "marshal request", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInitial
	bo.MaxInterval = c.retryCap
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var (
		content  string
		attempts int
	)
	op := func() error {
		attempts++
		result, status, err := c.doRequest(ctx, body)
		if err != nil {
			if status == http.StatusTooManyRequests && attempts < maxAttempts {
				return err // retriable
			}
			return backoff.Permanent(err)
		}
		content = result
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	return content, nil
}

// doRequest performs one HTTP attempt and returns the reply content. The
// returned status code lets the caller decide retriability; it is zero when
// the failure happened before a response arrived.
func (c *Client) doRequest(ctx context.Context, body []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", 0, llm.NewError(llm.ReasonTransport, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, llm.NewError(llm.ReasonTransport, "http", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, llm.NewError(llm.ReasonTransport, "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, llm.NewError(llm.ReasonHTTP,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", resp.StatusCode, llm.NewError(llm.ReasonParse, "decode envelope", err)
	}
	if parsed.Status.Code != successCode {
		return "", resp.StatusCode, llm.NewError(llm.ReasonEnvelope,
			fmt.Sprintf("status code=%s message=%s", parsed.Status.Code, parsed.Status.Message), nil)
	}
	return parsed.Result.Message.Content, resp.StatusCode, nil
}
