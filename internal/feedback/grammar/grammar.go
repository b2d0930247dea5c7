// Package grammar implements the retrieval-augmented grammar correction
// protocol for one candidate sentence.
//
// The protocol runs five steps: dense vector retrieval of similar learner
// errors, lexical fallback when the vector result is weak, a structured
// correction call, a dictionary lookup for the corrected grammatical
// elements, and a structured explanation call. Retrieval and dictionary
// failures degrade the prompt but never fail the sentence; only the two
// language-model calls are fatal.
package grammar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gyojeong/bff/internal/dictionary"
	"github.com/gyojeong/bff/internal/observe"
	"github.com/gyojeong/bff/internal/retrieval"
	"github.com/gyojeong/bff/pkg/provider/llm"
)

// DefaultSimilarityThreshold is the vector-similarity floor below which the
// lexical fallback is consulted.
const DefaultSimilarityThreshold = 0.60

// CorrectionOutput is the first-stage structured result. When IsError is
// false the other fields are ignored regardless of what the model put there.
type CorrectionOutput struct {
	IsError           bool     `json:"is_error"`
	CorrectedSentence string   `json:"corrected_sentence"`
	Errors            []string `json:"errors"`
}

// FeedbackDetail explains one correction.
type FeedbackDetail struct {
	Corrects string `json:"corrects"`
	Reason   string `json:"reason"`
}

// Feedback is the final per-sentence result. An empty Feedbacks list means
// no correction was applied.
type Feedback struct {
	CorrectedSentence string           `json:"corrected_sentence"`
	Feedbacks         []FeedbackDetail `json:"feedbacks"`
}

// VectorRetriever finds similar learner errors by dense embedding, reporting
// the best-hit similarity.
type VectorRetriever interface {
	Retrieve(ctx context.Context, sentence string) ([]retrieval.ErrorExample, float64, error)
}

// LexicalRetriever finds similar learner errors by standardized tag match.
type LexicalRetriever interface {
	Retrieve(ctx context.Context, sentence string) ([]retrieval.ErrorExample, error)
}

// DictionaryLookup resolves grammatical-element tokens to dictionary entries.
// It reports failures as an empty list.
type DictionaryLookup interface {
	Lookup(ctx context.Context, tokens []string) []dictionary.Info
}

const correctionSystemPrompt = `당신은 한국어 학습자의 문장을 자연스럽고 정확하게 교정하는 전문가입니다.

## 역할
- 사용자가 작성한 문장을 읽고, 의미는 유지하면서 자연스럽고 문법적으로 올바른 문장으로 교정합니다.
- 실제로 틀린 부분만 교정하고, 문장의 종결 문체(해요체, 합쇼체, 반말 등)는 바꾸지 않습니다.
- 오류인지 애매한 경우에는 교정하지 말고 is_error를 false로 둡니다.
- 추가로, 이 문장에서 교정된 문법 요소/형태(조사, 어미, 연결어미, 높임 표현 등)를 간단한 단어/구 단위로 나열합니다.

## 출력 형식
- is_error: 문장에 교정이 필요한 오류가 있으면 true, 없으면 false
- corrected_sentence: 최종 교정된 문장 전체 (오류가 없으면 원문 그대로)
- errors: 교정 과정에서 중심이 된 문법 요소/형태의 간단한 이름 목록
    - 예시: ["과", "이", "-어야 하다"]
    - 표면형 어절이 아니라 문법 요소의 이름만 나열합니다. 오류가 없으면 빈 목록으로 둡니다.`

const explanationSystemPrompt = `당신은 한국어 학습자를 위한 문법 피드백을 제공하는 전문가입니다.

## 입력으로 주어지는 정보
- original_sentence: 학습자가 실제로 작성한 문장
- corrected_sentence: 자연스럽고 문법적으로 올바르게 교정된 문장
- grammar_db_info: 이 문장과 관련된 문법 요소와 설명 목록

## 역할
1. original_sentence와 corrected_sentence를 비교하여, 어떤 표현이 어떻게 교정되었는지 파악합니다.
2. grammar_db_info를 참고하여, 각 교정이 어떤 문법 요소와 관련이 있는지, 왜 그런지 학습자가 이해하기 쉽도록 설명합니다.
3. 한 문장 안에 여러 개의 교정이 있을 수 있으므로, 각 교정에 대해 별도의 항목으로 정리합니다.

## 출력 형식
- corrected_sentence: 최종 교정된 문장 전체 (입력으로 받은 corrected_sentence를 기반으로 합니다)
- feedbacks: 배열
  - corrects: "틀린표현 -> 맞은표현" 형식의 문자열
  - reason: 해당 교정이 필요한 이유, 관련 문법 설명

## 주의사항
- 같은 교정을 중복해서 나열하지 마세요.
- 존재하지 않는 문법 개념을 만들어내지 마세요.
- grammar_db_info가 비어 있어도, 문장 비교만으로 합리적인 설명을 작성하세요.`

// Service runs the per-sentence correction protocol.
type Service struct {
	llm          llm.Provider
	vector       VectorRetriever
	lexical      LexicalRetriever
	dict         DictionaryLookup
	simThreshold float64
	metrics      *observe.Metrics
	logger       *slog.Logger
}

// Option is a functional option for [Service].
type Option func(*Service)

// WithSimilarityThreshold overrides the lexical-fallback similarity floor.
func WithSimilarityThreshold(threshold float64) Option {
	return func(s *Service) {
		s.simThreshold = threshold
	}
}

// WithMetrics enables per-sentence protocol latency recording on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService wires the protocol dependencies.
func NewService(provider llm.Provider, vector VectorRetriever, lexical LexicalRetriever, dict DictionaryLookup, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		llm:          provider,
		vector:       vector,
		lexical:      lexical,
		dict:         dict,
		simThreshold: DefaultSimilarityThreshold,
		logger:       logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Feedback corrects and explains one candidate sentence. An error from either
// language-model call fails the sentence; the caller isolates it from its
// siblings.
func (s *Service) Feedback(ctx context.Context, sentence string) (*Feedback, error) {
	if s.metrics != nil {
		start := time.Now()
		defer func() {
			s.metrics.SentencePipelineDuration.Record(ctx, time.Since(start).Seconds())
		}()
	}

	examples := s.collectExamples(ctx, sentence)

	correction, err := s.correct(ctx, sentence, examples)
	if err != nil {
		return nil, fmt.Errorf("grammar: correction call: %w", err)
	}

	// Any is_error=false result exits early, even when the model filled in
	// a corrected sentence or error tokens against the contract.
	if !correction.IsError {
		return &Feedback{CorrectedSentence: sentence}, nil
	}

	infos := s.dict.Lookup(ctx, correction.Errors)

	feedback, err := s.explain(ctx, sentence, correction.CorrectedSentence, infos)
	if err != nil {
		return nil, fmt.Errorf("grammar: explanation call: %w", err)
	}
	return feedback, nil
}

// collectExamples gathers few-shot error examples, consulting the lexical
// fallback when the vector result is empty or weak. Retrieval failures are
// logged and swallowed.
func (s *Service) collectExamples(ctx context.Context, sentence string) []retrieval.ErrorExample {
	examples, similarity, err := s.vector.Retrieve(ctx, sentence)
	if err != nil {
		s.logger.Warn("vector retrieval failed", "error", err)
		examples, similarity = nil, 0
	}

	if len(examples) == 0 || similarity < s.simThreshold {
		fallback, err := s.lexical.Retrieve(ctx, sentence)
		if err != nil {
			s.logger.Warn("lexical retrieval failed", "error", err)
		} else {
			examples = retrieval.MergeExamples(examples, fallback)
		}
	}
	return examples
}

func (s *Service) correct(ctx context.Context, sentence string, examples []retrieval.ErrorExample) (*CorrectionOutput, error) {
	examplesBlob, err := json.Marshal(examples)
	if err != nil {
		return nil, fmt.Errorf("encode examples: %w", err)
	}

	userContent := fmt.Sprintf(
		"다음은 한국어 학습자가 작성한 문장과, 유사한 오류를 포함한 예문들입니다.\n\n"+
			"### 학습자 문장\n%s\n\n"+
			"### 유사 오류 예문(error_examples)\n%s\n\n"+
			"위 정보를 참고하여, 학습자 문장을 자연스럽고 문법적으로 올바른 문장으로 교정하고,\n"+
			"교정 과정에서 중요한 문법 요소/형태를 errors 목록에 담아주세요.",
		sentence, examplesBlob)

	var out CorrectionOutput
	err = s.llm.ChatStructured(ctx,
		[]llm.Message{llm.System(correctionSystemPrompt), llm.User(userContent)},
		&out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) explain(ctx context.Context, original, corrected string, infos []dictionary.Info) (*Feedback, error) {
	infosBlob, err := json.Marshal(infos)
	if err != nil {
		return nil, fmt.Errorf("encode dictionary info: %w", err)
	}

	userContent := fmt.Sprintf(
		"### 학습자 문장 (original_sentence)\n%s\n\n"+
			"### 교정된 문장 (corrected_sentence)\n%s\n\n"+
			"### 관련 문법 정보 (grammar_db_info)\n%s\n\n"+
			"위 정보를 바탕으로, 한 문장 안에 존재하는 여러 교정을 각각 정리해 주세요.\n"+
			"- 각 교정에 대해 '틀린표현 -> 맞은표현' 형식의 corrects와,\n"+
			"  왜 그렇게 고쳐야 하는지에 대한 reason을 작성합니다.",
		original, corrected, infosBlob)

	var out Feedback
	err = s.llm.ChatStructured(ctx,
		[]llm.Message{llm.System(explanationSystemPrompt), llm.User(userContent)},
		&out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
