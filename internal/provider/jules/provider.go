// ABOUTME: provider.Provider implementation backed by the Jules REST API
// ABOUTME: Translates canonical create/get/feedback/artifact calls to Jules resources

package jules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/coven-cloudworker/internal/provider"
	"github.com/2389/coven-cloudworker/internal/session"
)

// ProviderName is the registry name of this backend.
const ProviderName = "jules"

// providerVersion identifies this adapter in logs.
const providerVersion = "v1alpha-1"

// API is the subset of Client used by Provider.
type API interface {
	CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ApprovePlan(ctx context.Context, sessionID string) error
	SendMessage(ctx context.Context, sessionID, message string) error
	ListActivities(ctx context.Context, sessionID string) ([]Activity, error)
	ListSources(ctx context.Context) ([]Source, error)
}

// Provider adapts the Jules API to provider.Provider. It implements
// provider.PlanApprover; v1alpha has no cancel endpoint, so it does not
// implement provider.Canceller.
type Provider struct {
	api    API
	logger *slog.Logger
}

var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.PlanApprover = (*Provider)(nil)
	_ provider.SourceLister = (*Provider)(nil)
)

// NewProvider wraps an API client.
func NewProvider(api API, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{api: api, logger: logger.With("component", "jules")}
}

func (p *Provider) Name() string    { return ProviderName }
func (p *Provider) Version() string { return providerVersion }

// SourceName converts "owner/repo" into a Jules source resource name.
func SourceName(repo string) string {
	repo = strings.Trim(repo, "/")
	if strings.HasPrefix(repo, "sources/") {
		return repo
	}
	return "sources/github/" + repo
}

// CreateSession starts a Jules session and returns once it is accepted.
func (p *Provider) CreateSession(ctx context.Context, params provider.CreateParams) (*provider.CreateResult, error) {
	if params.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	if params.Repo == "" {
		return nil, fmt.Errorf("repo is required")
	}
	branch := params.Branch
	if branch == "" {
		branch = "main"
	}
	mode := AutomationModeUnspecified
	if params.AutoCreatePR {
		mode = AutomationModeAutoCreatePR
	}

	s, err := p.api.CreateSession(ctx, CreateSessionParams{
		Prompt:              params.Prompt,
		SourceName:          SourceName(params.Repo),
		StartingBranch:      branch,
		Title:               params.Title,
		RequirePlanApproval: params.RequirePlanApproval,
		AutomationMode:      mode,
	})
	if err != nil {
		return nil, fmt.Errorf("creating jules session: %w", err)
	}

	id := sessionID(s)
	if id == "" {
		return nil, fmt.Errorf("creating jules session: response carried no session id")
	}

	status := session.StatusQueued
	if s.State != "" {
		status = p.mapState(s.State, id)
	}

	p.logger.Info("jules session created", "remote_id", id, "repo", params.Repo, "branch", branch)
	return &provider.CreateResult{
		RemoteSessionID: id,
		Status:          status,
		ConsoleURL:      s.URL,
	}, nil
}

// GetSession fetches the current remote state.
func (p *Provider) GetSession(ctx context.Context, remoteID string) (*provider.SessionState, error) {
	s, err := p.api.GetSession(ctx, remoteID)
	if err != nil {
		return nil, fmt.Errorf("getting jules session %s: %w", remoteID, err)
	}

	status := p.mapState(s.State, remoteID)
	state := &provider.SessionState{
		RemoteSessionID: remoteID,
		Status:          status,
		StatusMessage:   statusMessage(s),
		ConsoleURL:      s.URL,
		Details: map[string]any{
			"state": string(s.State),
		},
		CreatedAt: parseTime(s.CreateTime),
		UpdatedAt: parseTime(s.UpdateTime),
	}
	if s.URL != "" {
		state.Details["url"] = s.URL
	}
	if pr := firstPullRequest(s); pr != nil {
		state.Details["pull_request_url"] = pr.URL
	}
	if status == session.StatusFailed {
		state.Error = &session.ErrorInfo{Code: string(StateFailed), Message: "jules reported the session as failed"}
	}
	return state, nil
}

// SendFeedback sends a message into an active session.
func (p *Provider) SendFeedback(ctx context.Context, remoteID, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("feedback message is empty")
	}
	if err := p.api.SendMessage(ctx, remoteID, message); err != nil {
		return fmt.Errorf("sending feedback to jules session %s: %w", remoteID, err)
	}
	return nil
}

// ApprovePlan approves the session's pending plan.
func (p *Provider) ApprovePlan(ctx context.Context, remoteID string) error {
	if err := p.api.ApprovePlan(ctx, remoteID); err != nil {
		return fmt.Errorf("approving plan for jules session %s: %w", remoteID, err)
	}
	return nil
}

// GetArtifacts collects the latest patch and PR details of a session.
func (p *Provider) GetArtifacts(ctx context.Context, remoteID string) (*provider.Artifacts, error) {
	s, err := p.api.GetSession(ctx, remoteID)
	if err != nil {
		return nil, fmt.Errorf("getting jules session %s: %w", remoteID, err)
	}
	activities, err := p.api.ListActivities(ctx, remoteID)
	if err != nil {
		return nil, fmt.Errorf("listing activities for jules session %s: %w", remoteID, err)
	}

	art := &provider.Artifacts{}
	if pr := firstPullRequest(s); pr != nil {
		art.PRURL = pr.URL
		art.CommitMessage = pr.Title
		art.ChangesSummary = pr.Description
	}

	if cs := latestChangeSet(activities); cs != nil {
		patch, err := summarizePatch(cs.GitPatch.UnidiffPatch, cs.FilesChanged)
		if err != nil {
			p.logger.Warn("could not parse change set patch", "remote_id", remoteID, "error", err)
		}
		art.Patch = patch
		art.BaseCommitID = cs.GitPatch.BaseCommitID
		if cs.GitPatch.SuggestedCommitMessage != "" {
			art.CommitMessage = cs.GitPatch.SuggestedCommitMessage
		}
	}

	if art.CommitMessage == "" {
		art.CommitMessage = s.Title
	}
	if art.ChangesSummary == "" && art.Patch != nil {
		art.ChangesSummary = fmt.Sprintf("%d files changed, %d insertions(+), %d deletions(-)",
			len(art.Patch.FilesChanged), art.Patch.Additions, art.Patch.Deletions)
	}
	return art, nil
}

// ListSources returns connected repositories as "owner/repo".
func (p *Provider) ListSources(ctx context.Context) ([]string, error) {
	sources, err := p.api.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing jules sources: %w", err)
	}
	repos := make([]string, 0, len(sources))
	for _, src := range sources {
		repos = append(repos, strings.TrimPrefix(src.Name, "sources/github/"))
	}
	return repos, nil
}

func (p *Provider) mapState(s State, remoteID string) session.Status {
	if !KnownState(s) {
		p.logger.Warn("unrecognized jules state, using fallback",
			"state", string(s),
			"fallback", FallbackStatus,
			"remote_id", remoteID,
		)
	}
	return MapState(s)
}

// sessionID prefers the bare id, falling back to the resource name.
func sessionID(s *Session) string {
	if s.ID != "" {
		return s.ID
	}
	return strings.TrimPrefix(s.Name, "sessions/")
}

func statusMessage(s *Session) string {
	switch s.State {
	case StateAwaitingPlanApproval:
		return "plan is waiting for approval"
	case StateAwaitingUserFeedback:
		return "agent is waiting for feedback"
	case StateCompleted:
		if pr := firstPullRequest(s); pr != nil {
			return "pull request opened: " + pr.URL
		}
		return "session completed"
	default:
		return ""
	}
}

func firstPullRequest(s *Session) *PullRequest {
	for _, out := range s.Outputs {
		if out.PullRequest != nil && out.PullRequest.URL != "" {
			return out.PullRequest
		}
	}
	return nil
}

// latestChangeSet returns the change set of the newest activity carrying a
// git patch. Activities without a parseable time sort first.
func latestChangeSet(activities []Activity) *ChangeSet {
	var best *ChangeSet
	var bestAt time.Time
	for i := range activities {
		a := &activities[i]
		if a.ChangeSet == nil || a.ChangeSet.GitPatch == nil {
			continue
		}
		at := parseTime(a.CreateTime)
		if best == nil || !at.Before(bestAt) {
			best = a.ChangeSet
			bestAt = at
		}
	}
	return best
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
