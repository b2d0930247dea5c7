package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gyojeong/bff/pkg/provider/llm"
)

// instrumentedLLM decorates an [llm.Provider] with latency and outcome
// recording. The pipeline sees a plain provider; every call lands in
// [Metrics.LLMDuration] and [Metrics.LLMRequests].
type instrumentedLLM struct {
	inner llm.Provider
	m     *Metrics
}

var _ llm.Provider = (*instrumentedLLM)(nil)

// InstrumentLLM wraps p so that every Chat and ChatStructured call records its
// duration and outcome on m.
func InstrumentLLM(p llm.Provider, m *Metrics) llm.Provider {
	return &instrumentedLLM{inner: p, m: m}
}

func (i *instrumentedLLM) Chat(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (string, error) {
	start := time.Now()
	out, err := i.inner.Chat(ctx, messages, opts...)
	i.record(ctx, "chat", start, err)
	return out, err
}

func (i *instrumentedLLM) ChatStructured(ctx context.Context, messages []llm.Message, out any, opts ...llm.CallOption) error {
	start := time.Now()
	err := i.inner.ChatStructured(ctx, messages, out, opts...)
	i.record(ctx, "chat_structured", start, err)
	return err
}

func (i *instrumentedLLM) record(ctx context.Context, kind string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	i.m.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("kind", kind)))
	i.m.RecordLLMRequest(ctx, kind, status)
}
