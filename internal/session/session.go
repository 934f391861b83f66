// ABOUTME: Canonical session model shared by providers, the store, and the reconciliation loop
// ABOUTME: Defines the Status enum, TrackedSession record, and the Patch merge rules

package session

import (
	"fmt"
	"time"
)

// Status is the provider-independent lifecycle state of a remote session.
type Status string

// Status values in order of real-world progression.
const (
	StatusQueued               Status = "queued"
	StatusPlanning             Status = "planning"
	StatusAwaitingPlanApproval Status = "awaiting_plan_approval"
	StatusInProgress           Status = "in_progress"
	StatusAwaitingFeedback     Status = "awaiting_feedback"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusCancelled            Status = "cancelled"
	StatusPaused               Status = "paused"
)

// AllStatuses lists every member of the enum.
var AllStatuses = []Status{
	StatusQueued,
	StatusPlanning,
	StatusAwaitingPlanApproval,
	StatusInProgress,
	StatusAwaitingFeedback,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
	StatusPaused,
}

// Valid reports whether s is a member of the enum.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further reconciliation is expected from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// NeedsInput reports whether the session is waiting on a human or agent.
func (s Status) NeedsInput() bool {
	switch s {
	case StatusAwaitingPlanApproval, StatusAwaitingFeedback, StatusPaused:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a stored string back into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown session status %q", v)
	}
	return s, nil
}

// ErrorInfo is a backend-reported failure attached to a session.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TrackedSession is one remote agent task tracked locally.
// ID, Provider, RemoteSessionID, Repo, Branch, Prompt, Title and CreatedAt
// never change after the session is registered.
type TrackedSession struct {
	ID              string
	Provider        string
	RemoteSessionID string
	Repo            string
	Branch          string
	Prompt          string
	Title           string

	Status        Status
	StatusMessage string
	ConsoleURL    string
	Error         *ErrorInfo

	ReviewRound     int
	MaxReviewRounds int
	AutoReview      bool
	AutoMerge       bool
	Merged          bool
	Watching        bool
	InFlight        bool

	CreatedAt time.Time
	UpdatedAt time.Time
	// RemoteUpdatedAt is the newest remote observation merged into the record.
	RemoteUpdatedAt time.Time
}

// Clone returns a deep copy.
func (s *TrackedSession) Clone() *TrackedSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	return &c
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Status        *Status
	StatusMessage *string
	ConsoleURL    *string
	Error         *ErrorInfo
	ClearError    bool

	ReviewRound *int
	AutoMerge   *bool
	Merged      *bool
	Watching    *bool
	InFlight    *bool

	// ObservedAt is the remote timestamp the remote-derived fields were read at.
	// Zero means the patch is not tied to a remote observation.
	ObservedAt time.Time
}

// Empty reports whether the patch carries no field changes.
func (p Patch) Empty() bool {
	return p.Status == nil && p.StatusMessage == nil && p.ConsoleURL == nil &&
		p.Error == nil && !p.ClearError && p.ReviewRound == nil &&
		p.AutoMerge == nil && p.Merged == nil && p.Watching == nil && p.InFlight == nil
}

// Apply merges p into s and reports whether anything was written.
// Remote-derived fields from an observation older than RemoteUpdatedAt are
// dropped. A terminal status is final: later status writes are ignored while
// the other fields still merge. UpdatedAt only moves forward and never
// precedes CreatedAt.
func (s *TrackedSession) Apply(p Patch, now time.Time) bool {
	applied := false

	stale := !p.ObservedAt.IsZero() && p.ObservedAt.Before(s.RemoteUpdatedAt)
	if !stale {
		if p.Status != nil && !s.Status.Terminal() {
			s.Status = *p.Status
			applied = true
		}
		if p.StatusMessage != nil {
			s.StatusMessage = *p.StatusMessage
			applied = true
		}
		if p.ConsoleURL != nil {
			s.ConsoleURL = *p.ConsoleURL
			applied = true
		}
		if p.ClearError {
			s.Error = nil
			applied = true
		}
		if p.Error != nil {
			e := *p.Error
			s.Error = &e
			applied = true
		}
		if p.ObservedAt.After(s.RemoteUpdatedAt) {
			s.RemoteUpdatedAt = p.ObservedAt
		}
	}

	if p.ReviewRound != nil {
		s.ReviewRound = *p.ReviewRound
		applied = true
	}
	if p.AutoMerge != nil {
		s.AutoMerge = *p.AutoMerge
		applied = true
	}
	if p.Merged != nil {
		s.Merged = *p.Merged
		applied = true
	}
	if p.Watching != nil {
		s.Watching = *p.Watching
		applied = true
	}
	if p.InFlight != nil {
		s.InFlight = *p.InFlight
		applied = true
	}

	if applied {
		next := now
		if next.Before(s.UpdatedAt) {
			next = s.UpdatedAt
		}
		if next.Before(s.CreatedAt) {
			next = s.CreatedAt
		}
		s.UpdatedAt = next
	}
	return applied
}

// Ptr returns a pointer to v, for building patches inline.
func Ptr[T any](v T) *T {
	return &v
}
