// Package app wires all subsystems into a running feedback server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order, waiting for in-flight event publications.
//
// For testing, inject doubles via functional options (WithAnalyzer,
// WithVectorRetriever, etc.). When an option is not provided, New creates a
// real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"golang.org/x/time/rate"

	"github.com/gyojeong/bff/internal/config"
	"github.com/gyojeong/bff/internal/dictionary"
	"github.com/gyojeong/bff/internal/event"
	"github.com/gyojeong/bff/internal/feedback"
	"github.com/gyojeong/bff/internal/feedback/grammar"
	"github.com/gyojeong/bff/internal/health"
	"github.com/gyojeong/bff/internal/observe"
	"github.com/gyojeong/bff/internal/resilience"
	"github.com/gyojeong/bff/internal/retrieval"
	"github.com/gyojeong/bff/internal/retrieval/chroma"
	"github.com/gyojeong/bff/internal/retrieval/lexical"
	"github.com/gyojeong/bff/internal/sentence"
	"github.com/gyojeong/bff/internal/server"
	"github.com/gyojeong/bff/pkg/morph"
	"github.com/gyojeong/bff/pkg/morph/mecab"
	"github.com/gyojeong/bff/pkg/provider/embeddings"
	"github.com/gyojeong/bff/pkg/provider/llm"
)

// defaultMorphConcurrency caps simultaneous analyzer sidecar calls when the
// config leaves morph.concurrency unset.
const defaultMorphConcurrency = 8

// Providers holds one interface value per provider slot. Populated by main.go
// via the config registry. LLM is required; Embeddings may be nil when vector
// retrieval is not configured.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	analyzer  morph.Analyzer
	vector    grammar.VectorRetriever
	lexical   grammar.LexicalRetriever
	dict      grammar.DictionaryLookup
	publisher feedback.EventPublisher

	checkers     []health.Checker
	orchestrator *feedback.Orchestrator
	httpServer   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithAnalyzer injects a morphological analyzer instead of the sidecar client.
func WithAnalyzer(a morph.Analyzer) Option {
	return func(app *App) { app.analyzer = a }
}

// WithVectorRetriever injects a vector retriever instead of the Chroma client.
func WithVectorRetriever(r grammar.VectorRetriever) Option {
	return func(app *App) { app.vector = r }
}

// WithLexicalRetriever injects a lexical retriever instead of the
// Elasticsearch client.
func WithLexicalRetriever(r grammar.LexicalRetriever) Option {
	return func(app *App) { app.lexical = r }
}

// WithDictionary injects a dictionary lookup instead of the Postgres store.
func WithDictionary(d grammar.DictionaryLookup) Option {
	return func(app *App) { app.dict = d }
}

// WithPublisher injects an event publisher instead of the Kafka writer.
func WithPublisher(p feedback.EventPublisher) Option {
	return func(app *App) { app.publisher = p }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// Unconfigured optional backends (Chroma, Elasticsearch, Postgres, Kafka)
// degrade to no-ops; the pipeline still answers requests without them.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initAnalyzer(); err != nil {
		return nil, fmt.Errorf("app: init analyzer: %w", err)
	}
	if err := a.initRetrievers(); err != nil {
		return nil, fmt.Errorf("app: init retrievers: %w", err)
	}
	if err := a.initDictionary(ctx); err != nil {
		return nil, fmt.Errorf("app: init dictionary: %w", err)
	}
	a.initPublisher()
	a.initPipeline()
	a.initHTTPServer()

	return a, nil
}

// initAnalyzer creates the gated sidecar client unless one was injected.
func (a *App) initAnalyzer() error {
	if a.analyzer != nil {
		return nil
	}

	baseURL := a.cfg.Morph.BaseURL
	if baseURL == "" {
		baseURL = mecab.DefaultBaseURL
	}
	concurrency := int64(a.cfg.Morph.Concurrency)
	if concurrency == 0 {
		concurrency = defaultMorphConcurrency
	}

	gated, err := morph.Gate(mecab.New(baseURL), concurrency)
	if err != nil {
		return err
	}
	a.analyzer = gated
	a.checkers = append(a.checkers, health.EndpointChecker("morph", baseURL+"/healthz", nil))
	return nil
}

// initRetrievers creates the Chroma and Elasticsearch retrievers for each
// configured backend; unconfigured ones fall back to no-ops.
func (a *App) initRetrievers() error {
	logger := slog.Default()

	if a.vector == nil {
		if a.cfg.Chroma.BaseURL != "" && a.providers.Embeddings != nil {
			client, err := chroma.NewClient(a.cfg.Chroma.BaseURL, a.cfg.Chroma.Collection)
			if err != nil {
				return err
			}
			// An outage must not cost a timeout per sentence; the breaker
			// fails retrieval fast and the protocol runs on the model alone.
			a.vector = resilience.GuardVector(
				chroma.NewRetriever(a.providers.Embeddings, client, logger),
				resilience.NewBreaker("chroma", logger), a.metrics)
			a.checkers = append(a.checkers,
				health.EndpointChecker("chroma", a.cfg.Chroma.BaseURL+"/api/v1/heartbeat", nil))
		} else {
			a.vector = noopVector{}
		}
	}

	if a.lexical == nil {
		if len(a.cfg.Elasticsearch.Addresses) > 0 {
			es, err := elasticsearch.NewClient(elasticsearch.Config{
				Addresses: a.cfg.Elasticsearch.Addresses,
			})
			if err != nil {
				return err
			}
			index := a.cfg.Elasticsearch.Index
			if index == "" {
				index = lexical.DefaultIndex
			}
			a.lexical = resilience.GuardLexical(
				lexical.NewRetriever(a.analyzer, es, index, logger),
				resilience.NewBreaker("elasticsearch", logger), a.metrics)
			a.checkers = append(a.checkers, health.ElasticsearchChecker(es))
		} else {
			a.lexical = noopLexical{}
		}
	}

	return nil
}

// initDictionary connects the Postgres grammar dictionary unless one was
// injected or the DSN is empty.
func (a *App) initDictionary(ctx context.Context) error {
	if a.dict != nil {
		return nil
	}
	if a.cfg.Postgres.DSN == "" {
		a.dict = noopDictionary{}
		return nil
	}

	pool, err := dictionary.NewPool(ctx, a.cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	a.dict = dictionary.New(pool, slog.Default())
	a.checkers = append(a.checkers, health.PostgresChecker(pool))
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	return nil
}

// initPublisher creates the Kafka publisher unless one was injected or no
// brokers are configured. A nil publisher disables publication entirely.
func (a *App) initPublisher() {
	if a.publisher != nil || len(a.cfg.Kafka.Brokers) == 0 {
		return
	}

	topic := a.cfg.Kafka.Topic
	if topic == "" {
		topic = event.DefaultTopic
	}
	writer := event.NewWriter(a.cfg.Kafka.Brokers, topic)
	a.closers = append(a.closers, writer.Close)

	opts := []event.Option{event.WithMetrics(a.metrics)}
	if a.cfg.Kafka.FallbackPath != "" {
		opts = append(opts, event.WithFallback(event.NewFileSink(a.cfg.Kafka.FallbackPath)))
	}
	a.publisher = event.NewPublisher(writer, slog.Default(), opts...)
}

// initPipeline assembles the splitter, the two feedback services, and the
// orchestrator.
func (a *App) initPipeline() {
	logger := slog.Default()

	// Every chat-completion call in the pipeline goes through the
	// instrumented provider.
	provider := observe.InstrumentLLM(a.providers.LLM, a.metrics)

	sentenceOpts := []sentence.Option{sentence.WithMetrics(a.metrics)}
	if a.cfg.Pipeline.ErrorThreshold > 0 {
		sentenceOpts = append(sentenceOpts, sentence.WithThreshold(a.cfg.Pipeline.ErrorThreshold))
	}
	splitter := sentence.NewService(a.analyzer, logger, sentenceOpts...)

	grammarOpts := []grammar.Option{grammar.WithMetrics(a.metrics)}
	if a.cfg.Pipeline.SimilarityThreshold > 0 {
		grammarOpts = append(grammarOpts, grammar.WithSimilarityThreshold(a.cfg.Pipeline.SimilarityThreshold))
	}
	corrector := grammar.NewService(provider, a.vector, a.lexical, a.dict, logger, grammarOpts...)

	review := feedback.NewContextService(provider)

	a.orchestrator = feedback.NewOrchestrator(review, corrector, splitter, a.publisher, logger)
}

// initHTTPServer builds the route tree and the http.Server.
func (a *App) initHTTPServer() {
	srv := server.New(a.orchestrator, health.New(a.checkers...), slog.Default())

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(a.metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler exposes the fully wired HTTP root handler, mainly for tests that
// drive the app through httptest instead of a real listener.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run serves HTTP and blocks until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("app running", "addr", a.httpServer.Addr)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Shutdown stops the HTTP server, waits for detached event publications, and
// tears down all subsystems in order. It respects the context deadline: when
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.httpServer.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		// Detached publications must land before the Kafka writer closes.
		a.orchestrator.WaitForPublishes()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ClovaLimiter builds a rate limiter for n calls per rolling minute. Exposed
// for main.go so the registry factory and tests share one implementation.
func ClovaLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// Unconfigured backends degrade to empty results so the grammar protocol can
// run on the language model alone.

type noopVector struct{}

func (noopVector) Retrieve(context.Context, string) ([]retrieval.ErrorExample, float64, error) {
	return nil, 0, nil
}

type noopLexical struct{}

func (noopLexical) Retrieve(context.Context, string) ([]retrieval.ErrorExample, error) {
	return nil, nil
}

type noopDictionary struct{}

func (noopDictionary) Lookup(context.Context, []string) []dictionary.Info {
	return nil
}
