// ABOUTME: Command surface over the provider, store, and reconciler
// ABOUTME: Each CLI subcommand maps to one Service method

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-cloudworker/internal/provider"
	"github.com/2389/coven-cloudworker/internal/reconcile"
	"github.com/2389/coven-cloudworker/internal/session"
	"github.com/2389/coven-cloudworker/internal/store"
)

// DefaultMaxReviewRounds caps automated review rounds for new sessions.
const DefaultMaxReviewRounds = 3

var (
	// ErrPromptRequired is returned by Start without a prompt.
	ErrPromptRequired = errors.New("prompt is required")
	// ErrSessionTerminal is returned when acting on a finished session.
	ErrSessionTerminal = errors.New("session has already finished")
	// ErrNotCompleted is returned when artifacts are requested too early.
	ErrNotCompleted = errors.New("session has not completed")
)

// Config wires a Service.
type Config struct {
	Provider   provider.Provider
	Store      store.Store
	Reconciler *reconcile.Reconciler
	// Resolver supplies repo and branch defaults. Nil uses GitResolver in
	// the working directory.
	Resolver        RepoResolver
	MaxReviewRounds int
	Logger          *slog.Logger
}

// Service implements the user-facing operations.
type Service struct {
	provider        provider.Provider
	store           store.Store
	rec             *reconcile.Reconciler
	resolver        RepoResolver
	maxReviewRounds int
	logger          *slog.Logger
	newID           func() string
	now             func() time.Time
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var resolver RepoResolver = GitResolver{}
	if cfg.Resolver != nil {
		resolver = cfg.Resolver
	}
	rounds := cfg.MaxReviewRounds
	if rounds <= 0 {
		rounds = DefaultMaxReviewRounds
	}
	return &Service{
		provider:        cfg.Provider,
		store:           cfg.Store,
		rec:             cfg.Reconciler,
		resolver:        resolver,
		maxReviewRounds: rounds,
		logger:          logger.With("component", "worker"),
		newID:           uuid.NewString,
		now:             time.Now,
	}
}

// StartRequest describes a new task.
type StartRequest struct {
	Prompt string
	Title  string
	// Branch and Repo default to the working directory's checkout.
	Branch string
	Repo   string
	// AutoReview defaults to true when nil.
	AutoReview  *bool
	RequirePlan bool
}

// StartResult is the registered session.
type StartResult struct {
	Session *session.TrackedSession
}

// Start creates a remote session and begins tracking it.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrPromptRequired
	}

	repo := req.Repo
	if repo == "" {
		r, err := s.resolver.Repo(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRepoUnknown, err)
		}
		repo = r
	} else if normalized, err := NormalizeRepo(repo); err == nil {
		repo = normalized
	}

	branch := req.Branch
	if branch == "" {
		b, err := s.resolver.Branch(ctx)
		if err != nil {
			s.logger.Debug("branch detection failed, using main", "error", err)
			b = "main"
		}
		branch = b
	}

	autoReview := true
	if req.AutoReview != nil {
		autoReview = *req.AutoReview
	}

	created, err := s.provider.CreateSession(ctx, provider.CreateParams{
		Repo:                repo,
		Branch:              branch,
		Prompt:              req.Prompt,
		Title:               req.Title,
		RequirePlanApproval: req.RequirePlan,
		AutoCreatePR:        true,
	})
	if err != nil {
		return nil, err
	}

	status := created.Status
	if !status.Valid() {
		status = session.StatusQueued
	}

	now := s.now()
	tracked := &session.TrackedSession{
		ID:              s.newID(),
		Provider:        s.provider.Name(),
		RemoteSessionID: created.RemoteSessionID,
		Repo:            repo,
		Branch:          branch,
		Prompt:          req.Prompt,
		Title:           req.Title,
		Status:          status,
		ConsoleURL:      created.ConsoleURL,
		MaxReviewRounds: s.maxReviewRounds,
		AutoReview:      autoReview,
		Watching:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.AddSession(ctx, tracked); err != nil {
		return nil, fmt.Errorf("registering session %s: %w", created.RemoteSessionID, err)
	}

	s.logger.Info("session started",
		"session_id", tracked.ID,
		"remote_id", tracked.RemoteSessionID,
		"repo", repo,
		"branch", branch,
	)
	return &StartResult{Session: tracked}, nil
}

// StatusResult is a session record and, when the remote could not be
// reached, the reason.
type StatusResult struct {
	Session   *session.TrackedSession
	RemoteErr error
}

// Stale reports whether Session is the last known local state rather than
// a fresh remote read.
func (r *StatusResult) Stale() bool {
	return r.RemoteErr != nil
}

// Status forces a remote refresh of one session. A provider failure is not
// an error: the stored record is returned with RemoteErr set.
func (s *Service) Status(ctx context.Context, id string) (*StatusResult, error) {
	tracked, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.rec.Refresh(ctx, tracked)
	if err != nil {
		s.logger.Warn("remote status check failed", "session_id", id, "error", err)
		return &StatusResult{Session: tracked, RemoteErr: err}, nil
	}
	return &StatusResult{Session: res.Session}, nil
}

// List returns every tracked session, newest first.
func (s *Service) List(ctx context.Context) ([]*session.TrackedSession, error) {
	return s.store.ListSessions(ctx)
}

// Cancel stops a running session on providers that support it.
func (s *Service) Cancel(ctx context.Context, id string) (*session.TrackedSession, error) {
	tracked, err := s.active(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := provider.Cancel(ctx, s.provider, tracked.RemoteSessionID); err != nil {
		return nil, err
	}

	_, after, err := s.store.UpdateSession(ctx, id, session.Patch{
		Status:        session.Ptr(session.StatusCancelled),
		StatusMessage: session.Ptr("cancelled by user"),
	})
	if err != nil {
		return nil, fmt.Errorf("recording cancellation of %s: %w", id, err)
	}
	s.logger.Info("session cancelled", "session_id", id)
	return after, nil
}

// ApprovePlan approves the pending plan of a session.
func (s *Service) ApprovePlan(ctx context.Context, id string) error {
	tracked, err := s.active(ctx, id)
	if err != nil {
		return err
	}
	if err := provider.ApprovePlan(ctx, s.provider, tracked.RemoteSessionID); err != nil {
		return err
	}
	s.logger.Info("plan approved", "session_id", id)
	return nil
}

// SendFeedback sends a message to an active session.
func (s *Service) SendFeedback(ctx context.Context, id, message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("feedback message is empty")
	}
	tracked, err := s.active(ctx, id)
	if err != nil {
		return err
	}
	if err := s.provider.SendFeedback(ctx, tracked.RemoteSessionID, message); err != nil {
		return err
	}
	s.logger.Info("feedback sent", "session_id", id)
	return nil
}

// Artifacts returns the output of a completed session.
func (s *Service) Artifacts(ctx context.Context, id string) (*provider.Artifacts, error) {
	tracked, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if tracked.Status != session.StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCompleted, id, tracked.Status)
	}
	return s.provider.GetArtifacts(ctx, tracked.RemoteSessionID)
}

// Sources lists repositories the provider can work on.
func (s *Service) Sources(ctx context.Context) ([]string, error) {
	return provider.ListSources(ctx, s.provider)
}

// active loads a session and rejects terminal ones.
func (s *Service) active(ctx context.Context, id string) (*session.TrackedSession, error) {
	tracked, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if tracked.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrSessionTerminal, id, tracked.Status)
	}
	return tracked, nil
}
