// Package feedback orchestrates one feedback request end to end: the
// composition-level review, sentence splitting and tagging, the per-sentence
// grammar pipeline, response assembly, and event hand-off.
//
// All child tasks of a request run concurrently with per-task error
// isolation. A failed grammar task leaves its sentence without feedback and a
// failed review is replaced by a fixed stub; neither fails the request. Only
// a splitter failure is fatal, because without sentences there is no
// response to assemble.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gyojeong/bff/internal/event"
	"github.com/gyojeong/bff/internal/feedback/grammar"
	"github.com/gyojeong/bff/internal/sentence"
)

// publishTimeout bounds the fire-and-forget event publication that runs
// after the response is sent.
const publishTimeout = 30 * time.Second

// Request is one feedback submission.
type Request struct {
	Title    string `json:"title"`
	Contents string `json:"contents"`
}

// Sentence is the externally visible per-sentence result. GrammarFeedback is
// present exactly when IsError is true.
type Sentence struct {
	SentenceID       int               `json:"sentence_id"`
	OriginalSentence string            `json:"original_sentence"`
	IsError          bool              `json:"is_error"`
	GrammarFeedback  *grammar.Feedback `json:"grammar_feedback"`
}

// Response is the assembled feedback envelope.
type Response struct {
	ContextFeedback ContextFeedback `json:"context_feedback"`
	Sentences       []Sentence      `json:"sentences"`
}

// ContextReviewer produces the composition-level review.
type ContextReviewer interface {
	Create(ctx context.Context, title, contents string) (ContextFeedback, error)
}

// GrammarCorrector runs the per-sentence correction protocol.
type GrammarCorrector interface {
	Feedback(ctx context.Context, sentence string) (*grammar.Feedback, error)
}

// Splitter divides a composition into sentences and tags error candidates.
type Splitter interface {
	Split(ctx context.Context, contents string) ([]sentence.Sentence, error)
	Tag(ctx context.Context, sentences []sentence.Sentence) []sentence.Sentence
}

// EventPublisher hands feedback events to the collection pipeline.
type EventPublisher interface {
	PublishSafe(ctx context.Context, events []event.GrammarFeedbackEvent)
}

// Orchestrator fans one request out to its child tasks and assembles the
// response.
type Orchestrator struct {
	review    ContextReviewer
	grammar   GrammarCorrector
	sentences Splitter
	publisher EventPublisher
	logger    *slog.Logger

	publishWG sync.WaitGroup
}

// NewOrchestrator wires the request pipeline. publisher may be nil when event
// collection is disabled.
func NewOrchestrator(review ContextReviewer, corrector GrammarCorrector, splitter Splitter, publisher EventPublisher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		review:    review,
		grammar:   corrector,
		sentences: splitter,
		publisher: publisher,
		logger:    logger,
	}
}

// Create processes one request. userID is the session identifier stamped on
// published events. The returned error is non-nil only when sentence
// splitting fails.
func (o *Orchestrator) Create(ctx context.Context, userID string, req Request) (*Response, error) {
	// The review runs concurrently with everything below.
	type reviewResult struct {
		feedback ContextFeedback
		err      error
	}
	reviewCh := make(chan reviewResult, 1)
	go func() {
		fb, err := o.review.Create(ctx, req.Title, req.Contents)
		reviewCh <- reviewResult{feedback: fb, err: err}
	}()

	split, err := o.sentences.Split(ctx, req.Contents)
	if err != nil {
		return nil, fmt.Errorf("feedback: split contents: %w", err)
	}
	tagged := o.sentences.Tag(ctx, split)

	// One slot per sentence so results land in input order regardless of
	// completion order. Failures stay isolated to their slot.
	results := make([]*grammar.Feedback, len(tagged))
	var wg sync.WaitGroup
	for i, s := range tagged {
		if !s.Candidate {
			continue
		}
		wg.Add(1)
		go func(slot int, text string, id int) {
			defer wg.Done()
			fb, err := o.grammar.Feedback(ctx, text)
			if err != nil {
				o.logger.Warn("grammar task failed", "sentence_id", id, "error", err)
				return
			}
			results[slot] = fb
		}(i, s.Text, s.ID)
	}
	wg.Wait()

	review := <-reviewCh
	if review.err != nil {
		o.logger.Warn("context review failed", "error", review.err)
		review.feedback = ContextFeedback{Feedback: contextFallbackText}
	}

	resp := &Response{
		ContextFeedback: review.feedback,
		Sentences:       make([]Sentence, 0, len(tagged)),
	}
	for i, s := range tagged {
		out := Sentence{SentenceID: s.ID, OriginalSentence: s.Text}
		if fb := results[i]; fb != nil && len(fb.Feedbacks) > 0 {
			out.IsError = true
			out.GrammarFeedback = fb
		}
		resp.Sentences = append(resp.Sentences, out)
	}

	o.schedulePublish(ctx, userID, resp.Sentences)
	return resp, nil
}

// schedulePublish builds the event list and hands it to the publisher in the
// background, detached from the request context so publication survives the
// response being sent.
func (o *Orchestrator) schedulePublish(ctx context.Context, userID string, sentences []Sentence) {
	if o.publisher == nil {
		return
	}
	var events []event.GrammarFeedbackEvent
	for _, s := range sentences {
		if s.GrammarFeedback == nil {
			continue
		}
		events = append(events, event.NewEvent(userID, s.SentenceID, s.OriginalSentence, s.GrammarFeedback))
	}
	if len(events) == 0 {
		return
	}

	o.publishWG.Add(1)
	go func() {
		defer o.publishWG.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("event publication panicked", "panic", r)
			}
		}()
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		o.publisher.PublishSafe(pubCtx, events)
	}()
}

// WaitForPublishes blocks until all scheduled publications finish. Called on
// shutdown so in-flight events are not dropped.
func (o *Orchestrator) WaitForPublishes() {
	o.publishWG.Wait()
}
