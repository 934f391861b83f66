// ABOUTME: Plain-text rendering of worker results for the CLI
// ABOUTME: Output mirrors the tool responses users already know

package worker

import (
	"fmt"
	"strings"
	"time"

	"github.com/2389/coven-cloudworker/internal/provider"
	"github.com/2389/coven-cloudworker/internal/session"
)

// FormatStart renders a newly started session.
func FormatStart(s *session.TrackedSession) string {
	return fmt.Sprintf(`Started cloud worker session!
ID: %s
Remote ID: %s
Status: %s
Console: %s

I will poll for updates in the background.`,
		s.ID, s.RemoteSessionID, s.Status, orNA(s.ConsoleURL))
}

// FormatStatus renders the result of a status check.
func FormatStatus(r *StatusResult) string {
	s := r.Session
	if r.Stale() {
		return fmt.Sprintf("Local Status: %s\n(Failed to fetch remote status: %v)", s.Status, r.RemoteErr)
	}

	out := fmt.Sprintf(`Session Status: %s
Remote ID: %s
Created: %s
Updated: %s
Message: %s
Console: %s`,
		s.Status,
		s.RemoteSessionID,
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
		orNA(s.StatusMessage),
		orNA(s.ConsoleURL),
	)
	if s.Status.NeedsInput() {
		hint := "send feedback to continue"
		if s.Status == session.StatusAwaitingPlanApproval {
			hint = "approve the plan or send feedback"
		}
		out += "\nAction Required: " + hint
	}
	if s.Error != nil {
		out += fmt.Sprintf("\nError: %s", s.Error.Message)
	}
	return out
}

// FormatList renders sessions in the order given.
func FormatList(sessions []*session.TrackedSession) string {
	if len(sessions) == 0 {
		return "No cloud worker sessions found."
	}

	lines := make([]string, 0, len(sessions))
	for _, s := range sessions {
		lines = append(lines, fmt.Sprintf("- [%s] %s (Remote: %s)\n  %q",
			strings.ToUpper(string(s.Status)), s.ID, s.RemoteSessionID, truncate(s.Prompt, 50)+"..."))
	}
	return fmt.Sprintf("Found %d sessions:\n\n%s", len(sessions), strings.Join(lines, "\n\n"))
}

// FormatArtifacts renders the output of a completed session.
func FormatArtifacts(a *provider.Artifacts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pull Request: %s\n", orNA(a.PRURL))
	if a.CommitMessage != "" {
		fmt.Fprintf(&b, "Commit Message: %s\n", a.CommitMessage)
	}
	if a.ChangesSummary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", a.ChangesSummary)
	}
	if a.BaseCommitID != "" {
		fmt.Fprintf(&b, "Base Commit: %s\n", a.BaseCommitID)
	}
	if a.Patch == nil {
		b.WriteString("Patch: N/A")
		return b.String()
	}
	fmt.Fprintf(&b, "Changes: %d files, +%d -%d\n", len(a.Patch.FilesChanged), a.Patch.Additions, a.Patch.Deletions)
	for _, f := range a.Patch.FilesChanged {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orNA(v string) string {
	if v == "" {
		return "N/A"
	}
	return v
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
