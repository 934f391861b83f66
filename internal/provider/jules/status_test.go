// ABOUTME: Tests for the Jules state normalizer
// ABOUTME: Every enumerated state maps explicitly; anything else uses the fallback

package jules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/coven-cloudworker/internal/session"
)

func TestMapState_Enumerated(t *testing.T) {
	tests := []struct {
		in   State
		want session.Status
	}{
		{StateQueued, session.StatusQueued},
		{StatePlanning, session.StatusPlanning},
		{StateAwaitingPlanApproval, session.StatusAwaitingPlanApproval},
		{StateInProgress, session.StatusInProgress},
		{StateAwaitingUserFeedback, session.StatusAwaitingFeedback},
		{StateCompleted, session.StatusCompleted},
		{StateFailed, session.StatusFailed},
		{StatePaused, session.StatusPaused},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, MapState(tt.in))
			assert.True(t, KnownState(tt.in))
		})
	}
}

func TestMapState_Fallback(t *testing.T) {
	for _, in := range []State{StateUnspecified, "", "ARCHIVED", "completed"} {
		got := MapState(in)
		assert.Equal(t, session.StatusInProgress, got, "state %q", in)
		assert.Equal(t, FallbackStatus, got)
		assert.True(t, got.Valid())
		assert.False(t, KnownState(in))
	}
}
