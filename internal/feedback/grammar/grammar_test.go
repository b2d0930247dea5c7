package grammar_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/gyojeong/bff/internal/dictionary"
	"github.com/gyojeong/bff/internal/observe"
	"github.com/gyojeong/bff/internal/feedback/grammar"
	"github.com/gyojeong/bff/internal/retrieval"
	"github.com/gyojeong/bff/pkg/provider/llm"
	llmmock "github.com/gyojeong/bff/pkg/provider/llm/mock"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type vectorSpy struct {
	examples   []retrieval.ErrorExample
	similarity float64
	err        error
	calls      int
}

func (v *vectorSpy) Retrieve(context.Context, string) ([]retrieval.ErrorExample, float64, error) {
	v.calls++
	return v.examples, v.similarity, v.err
}

type lexicalSpy struct {
	examples []retrieval.ErrorExample
	err      error
	calls    int
}

func (l *lexicalSpy) Retrieve(context.Context, string) ([]retrieval.ErrorExample, error) {
	l.calls++
	return l.examples, l.err
}

type dictSpy struct {
	infos []dictionary.Info
	calls [][]string
}

func (d *dictSpy) Lookup(_ context.Context, tokens []string) []dictionary.Info {
	d.calls = append(d.calls, tokens)
	return d.infos
}

func examples(sentences ...string) []retrieval.ErrorExample {
	out := make([]retrieval.ErrorExample, 0, len(sentences))
	for _, s := range sentences {
		out = append(out, retrieval.ErrorExample{OriginalSentence: s})
	}
	return out
}

const (
	correctionWithError = `{"is_error":true,"corrected_sentence":"나는 밥을 먹었다.","errors":["을"]}`
	correctionNoError   = `{"is_error":false,"corrected_sentence":"","errors":[]}`
	explanation         = `{"corrected_sentence":"나는 밥을 먹었다.","feedbacks":[{"corrects":"밥이 -> 밥을","reason":"목적어에는 목적격 조사 '을'을 씁니다."}]}`
)

func TestFeedback_FullProtocol(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{StructuredResponses: []string{correctionWithError, explanation}}
	vector := &vectorSpy{examples: examples("저는 밥이 먹었다."), similarity: 0.83}
	lexical := &lexicalSpy{}
	dict := &dictSpy{infos: []dictionary.Info{{GrammarElement: "을", Explanation: "목적격 조사"}}}
	svc := grammar.NewService(provider, vector, lexical, dict, discard())

	fb, err := svc.Feedback(context.Background(), "나는 밥이 먹었다.")
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if fb.CorrectedSentence != "나는 밥을 먹었다." {
		t.Errorf("corrected = %q", fb.CorrectedSentence)
	}
	if len(fb.Feedbacks) != 1 || fb.Feedbacks[0].Corrects != "밥이 -> 밥을" {
		t.Errorf("feedbacks = %+v", fb.Feedbacks)
	}

	// Strong vector hit keeps the lexical fallback out of the loop.
	if lexical.calls != 0 {
		t.Errorf("lexical calls = %d, want 0", lexical.calls)
	}
	if len(dict.calls) != 1 || dict.calls[0][0] != "을" {
		t.Errorf("dictionary calls = %v", dict.calls)
	}
	if len(provider.StructuredCalls) != 2 {
		t.Fatalf("structured calls = %d, want 2", len(provider.StructuredCalls))
	}
	first := provider.StructuredCalls[0].Messages
	if first[0].Role != llm.RoleSystem || !strings.Contains(first[1].Content, "저는 밥이 먹었다.") {
		t.Errorf("correction prompt missing examples: %+v", first)
	}
	second := provider.StructuredCalls[1].Messages
	if !strings.Contains(second[1].Content, "목적격 조사") {
		t.Errorf("explanation prompt missing dictionary info: %+v", second)
	}
}

func TestFeedback_EarlyExitOnNoError(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{StructuredResponses: []string{correctionNoError}}
	dict := &dictSpy{}
	svc := grammar.NewService(provider,
		&vectorSpy{examples: examples("예문"), similarity: 0.9},
		&lexicalSpy{}, dict, discard())

	fb, err := svc.Feedback(context.Background(), "나는 밥을 먹었다.")
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if fb.CorrectedSentence != "나는 밥을 먹었다." {
		t.Errorf("corrected = %q, want original", fb.CorrectedSentence)
	}
	if len(fb.Feedbacks) != 0 {
		t.Errorf("feedbacks = %+v, want empty", fb.Feedbacks)
	}
	if len(provider.StructuredCalls) != 1 {
		t.Errorf("structured calls = %d, want 1 (no second call)", len(provider.StructuredCalls))
	}
	if len(dict.calls) != 0 {
		t.Errorf("dictionary calls = %v, want none", dict.calls)
	}
}

// A model reply that claims no error while still carrying a correction is
// taken at its word: no error.
func TestFeedback_ContractViolationTreatedAsNoError(t *testing.T) {
	t.Parallel()

	violating := `{"is_error":false,"corrected_sentence":"다른 문장","errors":["을"]}`
	provider := &llmmock.Provider{StructuredResponses: []string{violating}}
	svc := grammar.NewService(provider,
		&vectorSpy{}, &lexicalSpy{}, &dictSpy{}, discard())

	fb, err := svc.Feedback(context.Background(), "나는 밥을 먹었다.")
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if fb.CorrectedSentence != "나는 밥을 먹었다." || len(fb.Feedbacks) != 0 {
		t.Errorf("feedback = %+v, want untouched original", fb)
	}
	if len(provider.StructuredCalls) != 1 {
		t.Errorf("structured calls = %d, want 1", len(provider.StructuredCalls))
	}
}

func TestFeedback_LexicalFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		vector     *vectorSpy
		wantCalls  int
		wantMerged []string
	}{
		{
			name:       "empty vector result",
			vector:     &vectorSpy{},
			wantCalls:  1,
			wantMerged: []string{"어휘 예문1", "어휘 예문2"},
		},
		{
			name:       "similarity below threshold",
			vector:     &vectorSpy{examples: examples("벡터 예문1", "벡터 예문2"), similarity: 0.41},
			wantCalls:  1,
			wantMerged: []string{"벡터 예문1", "벡터 예문2", "어휘 예문1", "어휘 예문2"},
		},
		{
			name:      "similarity at threshold skips fallback",
			vector:    &vectorSpy{examples: examples("벡터 예문1"), similarity: 0.60},
			wantCalls: 0,
		},
		{
			name:       "vector failure swallowed",
			vector:     &vectorSpy{err: errors.New("chroma down")},
			wantCalls:  1,
			wantMerged: []string{"어휘 예문1", "어휘 예문2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var promptExamples string
			provider := &llmmock.Provider{
				StructuredFunc: func(call int, messages []llm.Message, out any) error {
					if call == 0 {
						promptExamples = messages[1].Content
						*out.(*grammar.CorrectionOutput) = grammar.CorrectionOutput{IsError: false}
					}
					return nil
				},
			}
			lexical := &lexicalSpy{examples: examples("어휘 예문1", "어휘 예문2")}
			svc := grammar.NewService(provider, tt.vector, lexical, &dictSpy{}, discard())

			if _, err := svc.Feedback(context.Background(), "문장"); err != nil {
				t.Fatalf("Feedback: %v", err)
			}
			if lexical.calls != tt.wantCalls {
				t.Errorf("lexical calls = %d, want %d", lexical.calls, tt.wantCalls)
			}
			for _, want := range tt.wantMerged {
				if !strings.Contains(promptExamples, want) {
					t.Errorf("correction prompt missing example %q", want)
				}
			}
		})
	}
}

func TestFeedback_MergeDeduplicatesByOriginalSentence(t *testing.T) {
	t.Parallel()

	var promptExamples string
	provider := &llmmock.Provider{
		StructuredFunc: func(call int, messages []llm.Message, out any) error {
			promptExamples = messages[1].Content
			*out.(*grammar.CorrectionOutput) = grammar.CorrectionOutput{IsError: false}
			return nil
		},
	}
	vector := &vectorSpy{examples: examples("겹치는 예문", "벡터 예문"), similarity: 0.41}
	lexical := &lexicalSpy{examples: examples("겹치는 예문", "어휘 예문")}
	svc := grammar.NewService(provider, vector, lexical, &dictSpy{}, discard())

	if _, err := svc.Feedback(context.Background(), "문장"); err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if lexical.calls != 1 {
		t.Fatalf("lexical calls = %d, want exactly 1", lexical.calls)
	}
	if got := strings.Count(promptExamples, "겹치는 예문"); got != 1 {
		t.Errorf("duplicate example appears %d times in prompt, want 1", got)
	}
}

func TestFeedback_LexicalFailureSwallowed(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{StructuredResponses: []string{correctionNoError}}
	lexical := &lexicalSpy{err: errors.New("index down")}
	svc := grammar.NewService(provider, &vectorSpy{}, lexical, &dictSpy{}, discard())

	if _, err := svc.Feedback(context.Background(), "문장"); err != nil {
		t.Errorf("lexical failure must not fail the sentence: %v", err)
	}
}

func TestFeedback_LLMFailuresAreFatal(t *testing.T) {
	t.Parallel()

	t.Run("correction call", func(t *testing.T) {
		t.Parallel()
		provider := &llmmock.Provider{StructuredErr: llm.NewError(llm.ReasonHTTP, "status 500", nil)}
		svc := grammar.NewService(provider, &vectorSpy{}, &lexicalSpy{}, &dictSpy{}, discard())
		if _, err := svc.Feedback(context.Background(), "문장"); err == nil {
			t.Error("correction failure must fail the sentence")
		}
	})

	t.Run("explanation call", func(t *testing.T) {
		t.Parallel()
		provider := &llmmock.Provider{
			StructuredFunc: func(call int, _ []llm.Message, out any) error {
				if call == 0 {
					*out.(*grammar.CorrectionOutput) = grammar.CorrectionOutput{
						IsError: true, CorrectedSentence: "교정 문장", Errors: []string{"을"},
					}
					return nil
				}
				return llm.NewError(llm.ReasonSchema, "nonconforming reply", nil)
			},
		}
		svc := grammar.NewService(provider, &vectorSpy{}, &lexicalSpy{}, &dictSpy{}, discard())
		if _, err := svc.Feedback(context.Background(), "문장"); err == nil {
			t.Error("explanation failure must fail the sentence")
		}
	})
}

func TestFeedback_CustomThreshold(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{StructuredResponses: []string{correctionNoError}}
	vector := &vectorSpy{examples: examples("예문"), similarity: 0.65}
	lexical := &lexicalSpy{}
	svc := grammar.NewService(provider, vector, lexical, &dictSpy{}, discard(),
		grammar.WithSimilarityThreshold(0.70))

	if _, err := svc.Feedback(context.Background(), "문장"); err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if lexical.calls != 1 {
		t.Errorf("lexical calls = %d, want 1 under raised threshold", lexical.calls)
	}
}

func TestFeedback_RecordsPipelineDuration(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	provider := &llmmock.Provider{StructuredResponses: []string{`{"is_error": false}`}}
	svc := grammar.NewService(provider, &vectorSpy{}, &lexicalSpy{}, &dictSpy{}, discard(),
		grammar.WithMetrics(met))

	if _, err := svc.Feedback(context.Background(), "나는 밥을 먹었다."); err != nil {
		t.Fatalf("Feedback: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "gyojeong.sentence_pipeline.duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok || len(hist.DataPoints) == 0 {
				t.Fatal("pipeline histogram has no data points")
			}
			if got := hist.DataPoints[0].Count; got != 1 {
				t.Errorf("samples = %d, want 1", got)
			}
			return
		}
	}
	t.Error("sentence_pipeline.duration not recorded")
}
