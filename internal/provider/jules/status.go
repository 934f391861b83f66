// ABOUTME: Maps native Jules session states onto the canonical session.Status enum
// ABOUTME: Total and pure; unlisted states fall back to FallbackStatus

package jules

import "github.com/2389/coven-cloudworker/internal/session"

// FallbackStatus is returned for STATE_UNSPECIFIED and any state not in the
// table. It keeps the session pending so polling continues.
const FallbackStatus = session.StatusInProgress

var stateMap = map[State]session.Status{
	StateQueued:               session.StatusQueued,
	StatePlanning:             session.StatusPlanning,
	StateAwaitingPlanApproval: session.StatusAwaitingPlanApproval,
	StateInProgress:           session.StatusInProgress,
	StateAwaitingUserFeedback: session.StatusAwaitingFeedback,
	StateCompleted:            session.StatusCompleted,
	StateFailed:               session.StatusFailed,
	StatePaused:               session.StatusPaused,
}

// MapState converts a Jules state to the canonical status.
func MapState(s State) session.Status {
	if status, ok := stateMap[s]; ok {
		return status
	}
	return FallbackStatus
}

// KnownState reports whether s has an explicit mapping.
func KnownState(s State) bool {
	_, ok := stateMap[s]
	return ok
}
