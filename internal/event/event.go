// Package event publishes grammar-feedback events to the collection topic.
//
// Publication is strictly best-effort and happens after the HTTP response has
// been sent: a broker outage must never surface to the learner. When a
// fallback sink is configured, events that could not be published are handed
// to it instead.
package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gyojeong/bff/internal/feedback/grammar"
	"github.com/gyojeong/bff/internal/observe"
)

// DefaultTopic is the collection topic consumed by the data pipeline.
const DefaultTopic = "collect-events"

// GrammarFeedbackEvent is the flat record emitted for every sentence that
// received non-empty feedback.
type GrammarFeedbackEvent struct {
	UserID        string                   `json:"userId"`
	Timestamp     string                   `json:"timestamp"`
	SentenceID    int                      `json:"sentenceId"`
	OriginalText  string                   `json:"originalText"`
	CorrectedText string                   `json:"correctedText"`
	Feedbacks     []grammar.FeedbackDetail `json:"feedbacks"`
}

// NewEvent stamps a feedback record with the session id and the current time
// in ISO-8601.
func NewEvent(userID string, sentenceID int, originalText string, fb *grammar.Feedback) GrammarFeedbackEvent {
	return GrammarFeedbackEvent{
		UserID:        userID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		SentenceID:    sentenceID,
		OriginalText:  originalText,
		CorrectedText: fb.CorrectedSentence,
		Feedbacks:     fb.Feedbacks,
	}
}

// MessageWriter is the subset of [kafka.Writer] the publisher needs.
// WriteMessages must flush before returning.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Sink receives events that could not be published to the bus.
type Sink interface {
	Save(ctx context.Context, events []GrammarFeedbackEvent) error
}

// Publisher serializes events and writes them to the topic.
type Publisher struct {
	writer  MessageWriter
	sink    Sink
	metrics *observe.Metrics
	logger  *slog.Logger
}

// Option is a functional option for [Publisher].
type Option func(*Publisher)

// WithFallback configures a sink for events the bus rejected.
func WithFallback(sink Sink) Option {
	return func(p *Publisher) {
		p.sink = sink
	}
}

// WithMetrics enables publication-outcome recording on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// NewPublisher creates a Publisher on top of an established writer.
func NewPublisher(writer MessageWriter, logger *slog.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{writer: writer, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewWriter builds the topic writer used in production. The caller owns its
// lifetime and must Close it on shutdown.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
}

// PublishSafe writes all events to the topic and flushes. It never returns an
// error: on failure it logs and, when a fallback sink is configured, hands
// the full event list to it. A sink failure is logged and dropped. An empty
// event list is a no-op.
func (p *Publisher) PublishSafe(ctx context.Context, events []GrammarFeedbackEvent) {
	if len(events) == 0 {
		return
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		blob, err := json.Marshal(ev)
		if err != nil {
			p.logger.Error("event serialization failed",
				"sentence_id", ev.SentenceID, "error", err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.UserID),
			Value: blob,
		})
	}
	if len(msgs) == 0 {
		return
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("event publication failed",
			"events", len(events), "error", err)
		if p.sink == nil {
			p.recordOutcome(ctx, "dropped", len(events))
			return
		}
		if err := p.sink.Save(ctx, events); err != nil {
			p.logger.Error("fallback sink failed",
				"events", len(events), "error", err)
			p.recordOutcome(ctx, "dropped", len(events))
			return
		}
		p.recordOutcome(ctx, "fallback", len(events))
		return
	}
	p.recordOutcome(ctx, "published", len(events))
	p.logger.Debug("events published", "events", len(events))
}

func (p *Publisher) recordOutcome(ctx context.Context, status string, n int) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordEventsPublished(ctx, status, n)
}
