package feedback

import (
	"context"
	"fmt"

	"github.com/gyojeong/bff/pkg/provider/llm"
)

// ContextFeedback is the holistic review of the whole composition.
type ContextFeedback struct {
	Feedback string `json:"feedback"`
}

// contextFallbackText replaces the review when its generation fails; the rest
// of the response is still served.
const contextFallbackText = "문맥 피드백 생성에 실패했습니다."

const contextSystemPrompt = `당신은 한국어 글쓰기를 돕는 한국어 선생님이다.
학습자가 쓴 글을 읽고, 글 전반에 대한 **문맥 총평**만을 짧고 분명하게 제공하라.

다음 사항을 중심으로 3~5문장 정도로 답하라.
1. 글의 제목이 글의 내용을 얼마나 잘 드러내는지
2. 글의 내용이 논리적으로 자연스럽게 전개되는지
3. 글의 장점과 특히 잘한 점 (예: 내용 구성, 아이디어, 표현 방식 등)
4. 글쓴이가 앞으로 글을 쓸 때 참고하면 좋을 한두 가지 조언

- 문법, 철자, 조사, 어미, 띄어쓰기 등 **언어 형식에 대한 지적은 절대 하지 마라.**
- 오직 내용·구성·표현 방식 등 **문맥적 측면**에 대해서만 언급하라.
- 답변은 실제 학습자가 읽고 이해하기 쉽게, 너무 추상적이지 않게 작성하라.
- 답변에서 '외국인 학습자', '한국어 학습자'와 같은 표현은 사용하지 말고, '글쓴이', '당신' 등으로만 지칭하라.`

// ContextService produces the composition-level review with a single
// free-form chat call.
type ContextService struct {
	llm llm.Provider
}

// NewContextService creates a ContextService.
func NewContextService(provider llm.Provider) *ContextService {
	return &ContextService{llm: provider}
}

// Create reviews the titled composition. The model's reply is wrapped
// verbatim.
func (s *ContextService) Create(ctx context.Context, title, contents string) (ContextFeedback, error) {
	userContent := fmt.Sprintf(
		"[제목]\n%s\n\n[내용]\n%s\n\n위 글을 보고, 글에 대한 전반적인 피드백을 제공하라.",
		title, contents)

	reply, err := s.llm.Chat(ctx,
		[]llm.Message{llm.System(contextSystemPrompt), llm.User(userContent)})
	if err != nil {
		return ContextFeedback{}, fmt.Errorf("feedback: context review: %w", err)
	}
	return ContextFeedback{Feedback: reply}, nil
}
