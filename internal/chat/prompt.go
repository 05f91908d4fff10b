package chat

import (
	"fmt"
	"strings"

	"github.com/maumtalk/counseling-server/internal/domain"
)

// BuildSystemPrompt assembles the gateway system prompt: the counselor's
// persona, the menu of phases the model may choose from (already floored by
// the phase policy), the transition criteria, and the labeled response
// format. On the first turn the model is also asked for a session title.
func BuildSystemPrompt(counselor *domain.Counselor, available []domain.CounselingPhase, includeTitle bool) string {
	var sb strings.Builder

	sb.WriteString(counselor.BasePrompt)
	sb.WriteString("\n\n상담 단계 안내 (아래 단계 중에서만 선택하세요):\n")
	for _, phase := range available {
		fmt.Fprintf(&sb, "- %s(%s): %s\n", phase.String(), phase.KoreanName(), phase.Description())
	}

	sb.WriteString(`
단계 전환 기준:
- ENGAGEMENT: 첫 인사, 내담자의 기분 확인, 편안한 분위기 조성 및 상담 목표 설정
- EXPLORATION: 내담자의 고민, 감정, 구체적인 경험과 배경을 깊이 있게 탐색할 때
- INSIGHT: 내담자가 자신의 문제 패턴을 발견하고, 새로운 관점을 얻거나 자기 이해를 심화할 때
- ACTION: 내담자가 문제 해결을 위한 구체적인 실천 방안이나 작은 변화를 계획할 때
- CLOSING: 상담 내용을 정리하고, 긍정적인 메시지로 마무리하며 다음 단계를 기대할 때

현재 대화의 흐름과 내용의 깊이를 고려하여 가장 적절한 단계를 정확히 선택하고 [현재 단계]에 해당 ENUM 이름만 작성하세요.
**내담자의 대화 내용 변화에 따라 상담 단계를 적극적으로 전환하세요.**

=== 중요한 응답 규칙 ===
1. 절대 JSON 형식으로 응답하지 마세요
2. 아래 형식을 정확히 따라주세요
3. [응답 내용], [현재 단계] 라벨을 반드시 포함하세요

응답 형식 (아래 형식을 정확히 따라주세요):
[응답 내용]
(여기에 사용자에게 전달할 상담 응답을 작성하세요. 공감적이고 따뜻하게)

[현재 단계]
(여기에 현재 적합한 단계의 ENUM 이름만 작성. 예: ENGAGEMENT 또는 EXPLORATION)`)

	if includeTitle {
		sb.WriteString(`

[세션 제목]
(여기에 대화를 요약한 15자 이내 제목 작성)`)
	}

	return sb.String()
}
