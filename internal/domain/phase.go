package domain

// CounselingPhase is an ordered stage of the five-phase counseling model.
// The model self-reports its phase assessment in free text; the chat package
// validates that claim before it is ever persisted.
type CounselingPhase int

const (
	PhaseEngagement CounselingPhase = iota + 1
	PhaseExploration
	PhaseInsight
	PhaseAction
	PhaseClosing
)

// InitialPhase is the phase every session starts in.
const InitialPhase = PhaseEngagement

var phaseNames = map[CounselingPhase]string{
	PhaseEngagement:  "ENGAGEMENT",
	PhaseExploration: "EXPLORATION",
	PhaseInsight:     "INSIGHT",
	PhaseAction:      "ACTION",
	PhaseClosing:     "CLOSING",
}

var phaseKoreanNames = map[CounselingPhase]string{
	PhaseEngagement:  "관계 형성",
	PhaseExploration: "문제 탐색",
	PhaseInsight:     "통찰",
	PhaseAction:      "실행 계획",
	PhaseClosing:     "마무리",
}

var phaseDescriptions = map[CounselingPhase]string{
	PhaseEngagement:  "첫 인사, 내담자의 기분 확인, 편안한 분위기 조성 및 상담 목표 설정",
	PhaseExploration: "내담자의 고민, 감정, 구체적인 경험과 배경을 깊이 있게 탐색",
	PhaseInsight:     "내담자가 자신의 문제 패턴을 발견하고 새로운 관점을 얻도록 지원",
	PhaseAction:      "문제 해결을 위한 구체적인 실천 방안과 작은 변화를 계획",
	PhaseClosing:     "상담 내용을 정리하고 긍정적인 메시지로 마무리",
}

// AllPhases returns every phase in ascending order.
func AllPhases() []CounselingPhase {
	return []CounselingPhase{
		PhaseEngagement,
		PhaseExploration,
		PhaseInsight,
		PhaseAction,
		PhaseClosing,
	}
}

// String returns the canonical enum token, e.g. "EXPLORATION".
func (p CounselingPhase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// Order returns the 1-based position of the phase in the counseling model.
func (p CounselingPhase) Order() int {
	return int(p)
}

// KoreanName returns the display name used in prompts and API responses.
func (p CounselingPhase) KoreanName() string {
	return phaseKoreanNames[p]
}

// Description returns the prompt description of the phase.
func (p CounselingPhase) Description() string {
	return phaseDescriptions[p]
}

// IsValid reports whether p is one of the defined phases.
func (p CounselingPhase) IsValid() bool {
	_, ok := phaseNames[p]
	return ok
}

// ParsePhase resolves an upper-cased enum token to a phase. The match is
// case-sensitive: callers are expected to upper-case model output first.
func ParsePhase(s string) (CounselingPhase, bool) {
	for phase, name := range phaseNames {
		if name == s {
			return phase, true
		}
	}
	return InitialPhase, false
}
