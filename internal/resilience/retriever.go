package resilience

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gyojeong/bff/internal/feedback/grammar"
	"github.com/gyojeong/bff/internal/observe"
	"github.com/gyojeong/bff/internal/retrieval"
)

// recordRetrieval lands one executed backend call in the retrieval latency
// histogram. Calls the breaker rejected never reached the backend and are not
// recorded.
func recordRetrieval(ctx context.Context, m *observe.Metrics, backend string, start time.Time, err error) {
	if m == nil || errors.Is(err, ErrOpen) {
		return
	}
	m.RetrievalDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("backend", backend)))
}

// GuardedVector wraps a [grammar.VectorRetriever] with a [Breaker]. While the
// breaker is open, Retrieve returns [ErrOpen] without touching the backend.
type GuardedVector struct {
	inner   grammar.VectorRetriever
	breaker *Breaker
	metrics *observe.Metrics
}

var _ grammar.VectorRetriever = (*GuardedVector)(nil)

// GuardVector wraps inner with breaker. m may be nil to disable latency
// recording.
func GuardVector(inner grammar.VectorRetriever, breaker *Breaker, m *observe.Metrics) *GuardedVector {
	return &GuardedVector{inner: inner, breaker: breaker, metrics: m}
}

func (g *GuardedVector) Retrieve(ctx context.Context, sentence string) ([]retrieval.ErrorExample, float64, error) {
	var (
		examples []retrieval.ErrorExample
		score    float64
	)
	start := time.Now()
	err := g.breaker.Execute(func() error {
		var err error
		examples, score, err = g.inner.Retrieve(ctx, sentence)
		return err
	})
	recordRetrieval(ctx, g.metrics, "vector", start, err)
	if err != nil {
		return nil, 0, err
	}
	return examples, score, nil
}

// GuardedLexical wraps a [grammar.LexicalRetriever] with a [Breaker].
type GuardedLexical struct {
	inner   grammar.LexicalRetriever
	breaker *Breaker
	metrics *observe.Metrics
}

var _ grammar.LexicalRetriever = (*GuardedLexical)(nil)

// GuardLexical wraps inner with breaker. m may be nil to disable latency
// recording.
func GuardLexical(inner grammar.LexicalRetriever, breaker *Breaker, m *observe.Metrics) *GuardedLexical {
	return &GuardedLexical{inner: inner, breaker: breaker, metrics: m}
}

func (g *GuardedLexical) Retrieve(ctx context.Context, sentence string) ([]retrieval.ErrorExample, error) {
	var examples []retrieval.ErrorExample
	start := time.Now()
	err := g.breaker.Execute(func() error {
		var err error
		examples, err = g.inner.Retrieve(ctx, sentence)
		return err
	})
	recordRetrieval(ctx, g.metrics, "lexical", start, err)
	if err != nil {
		return nil, err
	}
	return examples, nil
}
