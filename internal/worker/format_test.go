// ABOUTME: Tests for CLI text rendering and remote URL normalization
// ABOUTME: Expected strings match the formats users see

package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-cloudworker/internal/provider"
	"github.com/2389/coven-cloudworker/internal/session"
)

func TestFormatList(t *testing.T) {
	assert.Equal(t, "No cloud worker sessions found.", FormatList(nil))

	out := FormatList([]*session.TrackedSession{
		{ID: "a", RemoteSessionID: "ra", Status: session.StatusInProgress, Prompt: "Refactor the payment retry loop so that it honors the configured backoff"},
		{ID: "b", RemoteSessionID: "rb", Status: session.StatusCompleted, Prompt: "short"},
	})
	assert.Equal(t, "Found 2 sessions:\n\n"+
		"- [IN_PROGRESS] a (Remote: ra)\n  \"Refactor the payment retry loop so that it honors ...\"\n\n"+
		"- [COMPLETED] b (Remote: rb)\n  \"short...\"", out)
}

func TestFormatStart(t *testing.T) {
	out := FormatStart(&session.TrackedSession{ID: "id1", RemoteSessionID: "r1", Status: session.StatusQueued})
	assert.Equal(t, "Started cloud worker session!\nID: id1\nRemote ID: r1\nStatus: queued\nConsole: N/A\n\nI will poll for updates in the background.", out)
}

func TestFormatStatus(t *testing.T) {
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	fresh := &StatusResult{Session: &session.TrackedSession{
		RemoteSessionID: "r1",
		Status:          session.StatusFailed,
		ConsoleURL:      "https://console/r1",
		Error:           &session.ErrorInfo{Code: "FAILED", Message: "tests failed"},
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}}
	assert.Equal(t, "Session Status: failed\nRemote ID: r1\nCreated: 2026-02-03T04:05:06Z\nUpdated: 2026-02-03T04:05:06Z\nMessage: N/A\nConsole: https://console/r1\nError: tests failed",
		FormatStatus(fresh))

	waiting := &StatusResult{Session: &session.TrackedSession{Status: session.StatusAwaitingPlanApproval, CreatedAt: ts, UpdatedAt: ts}}
	assert.Contains(t, FormatStatus(waiting), "\nAction Required: approve the plan or send feedback")

	paused := &StatusResult{Session: &session.TrackedSession{Status: session.StatusPaused, CreatedAt: ts, UpdatedAt: ts}}
	assert.Contains(t, FormatStatus(paused), "Action Required: send feedback to continue")
	assert.NotContains(t, FormatStatus(fresh), "Action Required")

	stale := &StatusResult{Session: &session.TrackedSession{Status: session.StatusQueued}, RemoteErr: errors.New("timeout")}
	assert.Equal(t, "Local Status: queued\n(Failed to fetch remote status: timeout)", FormatStatus(stale))
}

func TestFormatArtifacts(t *testing.T) {
	out := FormatArtifacts(&provider.Artifacts{
		PRURL:         "https://github.com/acme/widgets/pull/7",
		CommitMessage: "Add retries",
		Patch:         &provider.UnifiedPatch{FilesChanged: []string{"main.go"}, Additions: 3, Deletions: 1},
	})
	assert.Contains(t, out, "Pull Request: https://github.com/acme/widgets/pull/7")
	assert.Contains(t, out, "Changes: 1 files, +3 -1")
	assert.Contains(t, out, "  main.go")

	assert.Contains(t, FormatArtifacts(&provider.Artifacts{}), "Patch: N/A")
}

func TestNormalizeRepo(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"git@github.com:acme/widgets.git", "acme/widgets"},
		{"https://github.com/acme/widgets.git", "acme/widgets"},
		{"https://github.com/acme/widgets/", "acme/widgets"},
		{"ssh://git@github.com/acme/widgets.git", "acme/widgets"},
		{"acme/widgets", "acme/widgets"},
		{"  acme/widgets\n", "acme/widgets"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeRepo(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NormalizeRepo("")
	assert.ErrorIs(t, err, ErrRepoUnknown)
	_, err = NormalizeRepo("widgets")
	assert.Error(t, err)
}
