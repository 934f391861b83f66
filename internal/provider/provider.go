// ABOUTME: Capability contract every remote coding-agent backend implements
// ABOUTME: Optional capabilities are small segregated interfaces queried explicitly

package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/2389/coven-cloudworker/internal/session"
)

// Provider is one remote agent backend. Implementations must not block on
// session completion and must not retry internally.
type Provider interface {
	// Name identifies the backend, e.g. "jules".
	Name() string
	Version() string

	// CreateSession returns once the backend has accepted the task.
	CreateSession(ctx context.Context, params CreateParams) (*CreateResult, error)

	// GetSession is an idempotent read of the current remote state.
	GetSession(ctx context.Context, remoteID string) (*SessionState, error)

	// SendFeedback injects a message into an active session.
	SendFeedback(ctx context.Context, remoteID, message string) error

	// GetArtifacts fetches the output of a terminal session.
	GetArtifacts(ctx context.Context, remoteID string) (*Artifacts, error)
}

// Canceller is implemented by backends that can cancel a running session.
type Canceller interface {
	CancelSession(ctx context.Context, remoteID string) error
}

// PlanApprover is implemented by backends that gate work on plan approval.
type PlanApprover interface {
	ApprovePlan(ctx context.Context, remoteID string) error
}

// SourceLister is implemented by backends that can enumerate the
// repositories they have access to.
type SourceLister interface {
	ListSources(ctx context.Context) ([]string, error)
}

// CreateParams describes a new remote task.
type CreateParams struct {
	// Repo is "owner/repo".
	Repo                string
	Branch              string
	Prompt              string
	Title               string
	RequirePlanApproval bool
	AutoCreatePR        bool
}

// CreateResult is what the backend returns on acceptance.
type CreateResult struct {
	RemoteSessionID string
	Status          session.Status
	ConsoleURL      string
}

// SessionState is a snapshot of remote session state.
type SessionState struct {
	RemoteSessionID string
	Status          session.Status
	StatusMessage   string
	ConsoleURL      string
	Details         map[string]any
	Error           *session.ErrorInfo
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UnifiedPatch is a unified diff with summary counts.
type UnifiedPatch struct {
	Content      string
	FilesChanged []string
	Additions    int
	Deletions    int
}

// Artifacts is the output of a completed session.
type Artifacts struct {
	Patch          *UnifiedPatch
	PRURL          string
	CommitMessage  string
	ChangesSummary string
	BaseCommitID   string
}

// Caps lists which optional capabilities a provider supports.
type Caps struct {
	Cancel      bool
	ApprovePlan bool
	ListSources bool
}

// Capabilities queries the optional interfaces p satisfies.
func Capabilities(p Provider) Caps {
	_, cancel := p.(Canceller)
	_, approve := p.(PlanApprover)
	_, sources := p.(SourceLister)
	return Caps{Cancel: cancel, ApprovePlan: approve, ListSources: sources}
}

// String lists the supported capabilities, or "none".
func (c Caps) String() string {
	var names []string
	if c.Cancel {
		names = append(names, "cancel")
	}
	if c.ApprovePlan {
		names = append(names, "approve-plan")
	}
	if c.ListSources {
		names = append(names, "sources")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Cancel cancels a session, or returns ErrUnsupported if p cannot.
func Cancel(ctx context.Context, p Provider, remoteID string) error {
	c, ok := p.(Canceller)
	if !ok {
		return fmt.Errorf("%s: cancel session: %w", p.Name(), ErrUnsupported)
	}
	return c.CancelSession(ctx, remoteID)
}

// ListSources lists repositories, or returns ErrUnsupported.
func ListSources(ctx context.Context, p Provider) ([]string, error) {
	l, ok := p.(SourceLister)
	if !ok {
		return nil, fmt.Errorf("%s: list sources: %w", p.Name(), ErrUnsupported)
	}
	return l.ListSources(ctx)
}

// ApprovePlan approves a pending plan, or returns ErrUnsupported if p has no
// approval step.
func ApprovePlan(ctx context.Context, p Provider, remoteID string) error {
	a, ok := p.(PlanApprover)
	if !ok {
		return fmt.Errorf("%s: approve plan: %w", p.Name(), ErrUnsupported)
	}
	return a.ApprovePlan(ctx, remoteID)
}
