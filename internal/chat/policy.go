package chat

import (
	"log/slog"

	"github.com/maumtalk/counseling-server/internal/domain"
)

// Phase policy: the model self-reports its phase assessment, and these pure
// functions are the only guardrail between that claim and the stored history.
// A session's validated phases never regress, and long conversations are held
// to a minimum progression so the history stays plausible for analytics.

// Step table thresholds on the cumulative message count of a session.
const (
	engagementMaxMessages  = 3
	explorationMaxMessages = 9
)

// MinimumPhase returns the lowest acceptable phase for a conversation with
// the given cumulative message count. The floor is capped at INSIGHT: the
// action and closing phases are reached only by the model's own judgment,
// never forced by conversation length.
func MinimumPhase(messageCount int) domain.CounselingPhase {
	switch {
	case messageCount <= engagementMaxMessages:
		return domain.PhaseEngagement
	case messageCount <= explorationMaxMessages:
		return domain.PhaseExploration
	default:
		return domain.PhaseInsight
	}
}

// ValidatePhase clamps a model-claimed phase against the previously recorded
// phase and the conversation-length minimum. Regressions are rejected in
// favor of the prior phase; under-progression is lifted to the minimum.
func ValidatePhase(prior domain.CounselingPhase, messageCount int, candidate domain.CounselingPhase) domain.CounselingPhase {
	minimum := MinimumPhase(messageCount)

	switch {
	case candidate.Order() < prior.Order():
		slog.Warn("rejecting phase regression",
			"prior", prior.String(),
			"claimed", candidate.String(),
			"message_count", messageCount)
		return prior
	case candidate.Order() < minimum.Order():
		slog.Info("lifting under-progressed phase to minimum",
			"claimed", candidate.String(),
			"minimum", minimum.String(),
			"message_count", messageCount)
		return minimum
	default:
		return candidate
	}
}

// AvailablePhases returns the phases the model is allowed to choose from:
// everything at or above both the prior phase and the length minimum.
func AvailablePhases(prior domain.CounselingPhase, messageCount int) []domain.CounselingPhase {
	floor := MinimumPhase(messageCount)
	if prior.Order() > floor.Order() {
		floor = prior
	}

	var phases []domain.CounselingPhase
	for _, p := range domain.AllPhases() {
		if p.Order() >= floor.Order() {
			phases = append(phases, p)
		}
	}
	return phases
}
