// ABOUTME: Reconciles one tracked session against its remote provider state
// ABOUTME: Shared by the background loop and on-demand status checks; emits notifications and transition events

package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/coven-cloudworker/internal/notify"
	"github.com/2389/coven-cloudworker/internal/provider"
	"github.com/2389/coven-cloudworker/internal/pubsub"
	"github.com/2389/coven-cloudworker/internal/session"
	"github.com/2389/coven-cloudworker/internal/store"
)

// Transition event types published on the broker.
const (
	// EventTransition is any status change into a non-terminal status.
	EventTransition pubsub.EventType = "transition"
	// EventCompleted marks a transition into completed; the review phase hooks here.
	EventCompleted pubsub.EventType = "completed"
	// EventTerminal marks a transition into failed or cancelled.
	EventTerminal pubsub.EventType = "terminal"
)

// Transition describes one observed status change.
type Transition struct {
	Session *session.TrackedSession
	From    session.Status
	To      session.Status
	At      time.Time
}

// Result is the outcome of reconciling one session.
type Result struct {
	Session *session.TrackedSession
	Changed bool
	From    session.Status
	To      session.Status
}

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	// Notifier receives transition notifications. It is wrapped so delivery
	// failures degrade to a log line.
	Notifier notify.Notifier
	// Events, if set, receives a Transition for every status change.
	Events *pubsub.Broker[Transition]
	Logger *slog.Logger
}

// Reconciler fetches remote state and merges it into the store.
type Reconciler struct {
	provider provider.Provider
	store    store.Store
	notifier notify.Notifier
	events   *pubsub.Broker[Transition]
	logger   *slog.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewReconciler creates a Reconciler for one provider.
func NewReconciler(p provider.Provider, st store.Store, opts ReconcilerOptions) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		provider: p,
		store:    st,
		notifier: notify.WithFallback(opts.Notifier, logger),
		events:   opts.Events,
		logger:   logger.With("component", "reconcile", "provider", p.Name()),
		now:      time.Now,
	}
}

// Reconcile fetches the remote state of s and writes it back only when the
// remote status differs from s.Status.
func (r *Reconciler) Reconcile(ctx context.Context, s *session.TrackedSession) (*Result, error) {
	state, err := r.fetch(ctx, s.RemoteSessionID)
	if err != nil {
		return nil, err
	}
	if state.Status == s.Status {
		return &Result{Session: s, From: s.Status, To: s.Status}, nil
	}
	return r.apply(ctx, s, state)
}

// Refresh fetches the remote state of s and always merges it, which also
// picks up message and URL changes without a status change.
func (r *Reconciler) Refresh(ctx context.Context, s *session.TrackedSession) (*Result, error) {
	state, err := r.fetch(ctx, s.RemoteSessionID)
	if err != nil {
		return nil, err
	}
	return r.apply(ctx, s, state)
}

// fetch collapses concurrent lookups of the same remote session into one call.
// The shared call runs detached from any one caller's context; each caller
// still stops waiting when its own ctx ends.
func (r *Reconciler) fetch(ctx context.Context, remoteID string) (*provider.SessionState, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(remoteID, func() (v any, err error) {
		// DoChan re-panics on its own goroutine; carry the value back so the
		// caller's recover sees it.
		defer func() {
			if p := recover(); p != nil {
				err = &flightPanic{value: p}
			}
		}()
		return r.provider.GetSession(flightCtx, remoteID)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if fp, ok := res.Err.(*flightPanic); ok {
		panic(fp.value)
	}
	if res.Err != nil {
		return nil, res.Err
	}
	state, ok := res.Val.(*provider.SessionState)
	if !ok || state == nil {
		return nil, fmt.Errorf("provider %s returned no state for %s", r.provider.Name(), remoteID)
	}
	if !state.Status.Valid() {
		return nil, fmt.Errorf("provider %s returned invalid status %q for %s", r.provider.Name(), state.Status, remoteID)
	}
	if res.Shared {
		r.logger.Debug("shared in-flight remote lookup", "remote_id", remoteID)
	}
	return state, nil
}

type flightPanic struct {
	value any
}

func (p *flightPanic) Error() string {
	return fmt.Sprintf("remote lookup panicked: %v", p.value)
}

func (r *Reconciler) apply(ctx context.Context, s *session.TrackedSession, state *provider.SessionState) (*Result, error) {
	before, after, err := r.store.UpdateSession(ctx, s.ID, patchFromState(state))
	if err != nil {
		return nil, fmt.Errorf("updating session %s: %w", s.ID, err)
	}

	res := &Result{
		Session: after,
		From:    before.Status,
		To:      after.Status,
		Changed: before.Status != after.Status,
	}
	if res.Changed {
		r.onTransition(ctx, before, after)
	}
	return res, nil
}

// patchFromState converts remote state into a store patch.
func patchFromState(state *provider.SessionState) session.Patch {
	p := session.Patch{
		Status:        session.Ptr(state.Status),
		StatusMessage: session.Ptr(state.StatusMessage),
		ObservedAt:    state.UpdatedAt,
	}

	url := state.ConsoleURL
	if url == "" {
		if v, ok := state.Details["url"].(string); ok {
			url = v
		}
	}
	if url != "" {
		p.ConsoleURL = session.Ptr(url)
	}

	if state.Error != nil {
		e := *state.Error
		p.Error = &e
	} else if state.Status != session.StatusFailed {
		p.ClearError = true
	}
	return p
}

func (r *Reconciler) onTransition(ctx context.Context, before, after *session.TrackedSession) {
	r.logger.Info("session changed",
		"session_id", after.ID,
		"remote_id", after.RemoteSessionID,
		"from", before.Status,
		"to", after.Status,
	)

	_ = r.notifier.Notify(ctx, transitionNotification(after))

	eventType := EventTransition
	switch {
	case after.Status == session.StatusCompleted:
		eventType = EventCompleted
		r.logger.Info("session completed, ready for review", "session_id", after.ID, "auto_review", after.AutoReview)
	case after.Status.Terminal():
		eventType = EventTerminal
	}

	if r.events != nil {
		dropped := r.events.Publish(eventType, Transition{
			Session: after.Clone(),
			From:    before.Status,
			To:      after.Status,
			At:      r.now(),
		})
		if dropped > 0 {
			r.logger.Warn("transition event dropped, subscriber buffer full",
				"session_id", after.ID,
				"event", eventType,
				"subscribers", dropped,
			)
		}
	}
}

func transitionNotification(s *session.TrackedSession) notify.Notification {
	severity := notify.SeverityInfo
	if s.Status == session.StatusCompleted {
		severity = notify.SeveritySuccess
	}
	return notify.Notification{
		Title:    fmt.Sprintf("Cloud Worker Update: %s", s.Status),
		Message:  fmt.Sprintf("Session for %q is now %s.", truncate(s.Prompt, 30)+"...", s.Status),
		Severity: severity,
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
