// ABOUTME: Wire types for the Jules REST API v1alpha
// ABOUTME: Sessions, activities, change sets, and sources as returned by the backend

package jules

// State is the native Jules session state.
type State string

// Jules session states.
const (
	StateUnspecified          State = "STATE_UNSPECIFIED"
	StateQueued               State = "QUEUED"
	StatePlanning             State = "PLANNING"
	StateAwaitingPlanApproval State = "AWAITING_PLAN_APPROVAL"
	StateAwaitingUserFeedback State = "AWAITING_USER_FEEDBACK"
	StateInProgress           State = "IN_PROGRESS"
	StatePaused               State = "PAUSED"
	StateFailed               State = "FAILED"
	StateCompleted            State = "COMPLETED"
)

// AutomationMode controls what Jules does with finished work.
type AutomationMode string

const (
	AutomationModeUnspecified  AutomationMode = "AUTOMATION_MODE_UNSPECIFIED"
	AutomationModeAutoCreatePR AutomationMode = "AUTO_CREATE_PR"
)

// Session is a Jules session resource.
type Session struct {
	Name                string          `json:"name,omitempty"` // sessions/{id}
	ID                  string          `json:"id,omitempty"`
	Prompt              string          `json:"prompt"`
	SourceContext       SourceContext   `json:"sourceContext"`
	Title               string          `json:"title,omitempty"`
	RequirePlanApproval bool            `json:"requirePlanApproval,omitempty"`
	AutomationMode      AutomationMode  `json:"automationMode,omitempty"`
	CreateTime          string          `json:"createTime,omitempty"`
	UpdateTime          string          `json:"updateTime,omitempty"`
	State               State           `json:"state,omitempty"`
	URL                 string          `json:"url,omitempty"`
	Outputs             []SessionOutput `json:"outputs,omitempty"`
}

// SessionOutput is one output of a session.
type SessionOutput struct {
	PullRequest *PullRequest `json:"pullRequest,omitempty"`
}

// PullRequest is a PR opened by Jules.
type PullRequest struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// SourceContext points a session at a repository.
type SourceContext struct {
	Source            string             `json:"source"` // sources/github/{owner}/{repo}
	GithubRepoContext *GithubRepoContext `json:"githubRepoContext,omitempty"`
}

// GithubRepoContext selects the starting branch.
type GithubRepoContext struct {
	StartingBranch string `json:"startingBranch"`
}

// Source is a repository connected to Jules.
type Source struct {
	Name        string `json:"name"`
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Activity is one step in a session's history.
type Activity struct {
	Name       string     `json:"name"`
	CreateTime string     `json:"createTime"`
	Type       string     `json:"type,omitempty"`
	ChangeSet  *ChangeSet `json:"changeSet,omitempty"`
	Plan       *Plan      `json:"plan,omitempty"`
}

// ChangeSet is a code change produced by the agent.
type ChangeSet struct {
	GitPatch     *GitPatch `json:"gitPatch,omitempty"`
	FilesChanged []string  `json:"filesChanged,omitempty"`
}

// GitPatch carries a unified diff.
type GitPatch struct {
	UnidiffPatch           string `json:"unidiffPatch"`
	BaseCommitID           string `json:"baseCommitId,omitempty"`
	SuggestedCommitMessage string `json:"suggestedCommitMessage,omitempty"`
}

// Plan is the agent's proposed plan.
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// PlanStep is one plan step.
type PlanStep struct {
	Description string `json:"description"`
	State       string `json:"state"`
}

// ActivitiesResponse is a page of activities.
type ActivitiesResponse struct {
	Activities    []Activity `json:"activities"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
}

// SourcesResponse is a page of sources.
type SourcesResponse struct {
	Sources       []Source `json:"sources"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

// createSessionRequest is the POST /sessions body.
type createSessionRequest struct {
	Prompt              string         `json:"prompt"`
	SourceContext       SourceContext  `json:"sourceContext"`
	Title               string         `json:"title,omitempty"`
	RequirePlanApproval bool           `json:"requirePlanApproval"`
	AutomationMode      AutomationMode `json:"automationMode"`
}

// sendMessageRequest is the :sendMessage body; the API names the field prompt.
type sendMessageRequest struct {
	Prompt string `json:"prompt"`
}
