// ABOUTME: Background poll loop that reconciles every non-terminal session on a fixed interval
// ABOUTME: Single-flight per provider; cycles survive Stop and never propagate failures

package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/2389/coven-cloudworker/internal/dedupe"
	"github.com/2389/coven-cloudworker/internal/provider"
	"github.com/2389/coven-cloudworker/internal/session"
)

// Defaults for loop options.
const (
	DefaultInterval         = 30 * time.Second
	DefaultFailureLogWindow = 10 * time.Minute

	// maxTrackedFailures bounds the failure throttle.
	maxTrackedFailures = 1024
)

// Options configures a Loop.
type Options struct {
	Interval         time.Duration
	FailureLogWindow time.Duration
	Logger           *slog.Logger
	// Now overrides the clock used for failure throttling.
	Now func() time.Time
}

// PendingLister is the store subset the loop reads from.
type PendingLister interface {
	GetPendingSessions(ctx context.Context) ([]*session.TrackedSession, error)
}

// Stats counts loop activity since construction.
type Stats struct {
	Cycles  int64
	Skipped int64
	Panics  int64
}

// tickerFunc returns a tick channel and a stop function.
type tickerFunc func(d time.Duration) (<-chan time.Time, func())

// Loop periodically reconciles pending sessions.
type Loop struct {
	rec      *Reconciler
	pending  PendingLister
	interval time.Duration
	logger   *slog.Logger
	failures *dedupe.Window
	gate     *semaphore.Weighted

	newTicker tickerFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	cycles sync.WaitGroup

	ran     atomic.Int64
	skipped atomic.Int64
	panics  atomic.Int64
}

// NewLoop creates a stopped loop.
func NewLoop(rec *Reconciler, pending PendingLister, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FailureLogWindow <= 0 {
		opts.FailureLogWindow = DefaultFailureLogWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	failures := dedupe.New(opts.FailureLogWindow, maxTrackedFailures)
	if opts.Now != nil {
		failures.SetClock(opts.Now)
	}

	return &Loop{
		rec:       rec,
		pending:   pending,
		interval:  opts.Interval,
		logger:    logger.With("component", "poll_loop", "provider", rec.provider.Name()),
		failures:  failures,
		gate:      semaphore.NewWeighted(1),
		newTicker: realTicker,
	}
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Start runs one cycle immediately and schedules one per interval.
// Calling Start on a running loop does nothing.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.logger.Debug("poll loop already running")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	ticks, stopTicker := l.newTicker(l.interval)
	l.trigger(runCtx)
	go l.run(runCtx, ticks, stopTicker, l.done)

	l.logger.Info("poll loop started", "interval", l.interval)
}

// Stop cancels the schedule. An in-flight cycle runs to completion; use
// Wait to block on it. Calling Stop on a stopped loop does nothing.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
	l.done = nil

	l.logger.Info("poll loop stopped")
}

// Running reports whether the schedule is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Wait blocks until every triggered cycle has returned. Call after Stop.
func (l *Loop) Wait() {
	l.cycles.Wait()
}

// Stats returns activity counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Cycles:  l.ran.Load(),
		Skipped: l.skipped.Load(),
		Panics:  l.panics.Load(),
	}
}

func (l *Loop) run(ctx context.Context, ticks <-chan time.Time, stopTicker func(), done chan struct{}) {
	defer close(done)
	defer stopTicker()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			l.trigger(ctx)
		}
	}
}

// trigger starts a cycle on its own goroutine so a slow cycle never
// delays the schedule.
func (l *Loop) trigger(ctx context.Context) {
	cycleCtx := context.WithoutCancel(ctx)
	l.cycles.Add(1)
	go func() {
		defer l.cycles.Done()
		l.poll(cycleCtx)
	}()
}

// poll runs one cycle unless another is in flight.
func (l *Loop) poll(ctx context.Context) {
	if !l.gate.TryAcquire(1) {
		l.skipped.Add(1)
		l.logger.Debug("poll cycle already in flight, dropping trigger")
		return
	}
	defer l.gate.Release(1)
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.logger.Error("poll cycle panicked", "panic", r)
		}
	}()

	l.ran.Add(1)
	if err := l.cycle(ctx); err != nil {
		l.logger.Error("poll cycle failed", "error", err)
	}
}

func (l *Loop) cycle(ctx context.Context) error {
	pending, err := l.pending.GetPendingSessions(ctx)
	if err != nil {
		return fmt.Errorf("listing pending sessions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	started := time.Now()
	changed := 0
	for _, s := range pending {
		res, err := l.reconcileOne(ctx, s)
		if err != nil {
			l.reportFailure(s, err)
			continue
		}
		l.clearFailure(s)
		if res.Changed {
			changed++
		}
	}

	l.logger.Debug("poll cycle complete",
		"sessions", len(pending),
		"changed", changed,
		"duration", time.Since(started),
	)
	return nil
}

// reconcileOne isolates a panicking session from the rest of the cycle.
func (l *Loop) reconcileOne(ctx context.Context, s *session.TrackedSession) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			err = fmt.Errorf("panic reconciling session: %v", r)
		}
	}()
	return l.rec.Reconcile(ctx, s)
}

func (l *Loop) reportFailure(s *session.TrackedSession, err error) {
	attrs := []any{
		"session_id", s.ID,
		"remote_id", s.RemoteSessionID,
		"error", err,
		"retryable", provider.IsRetryable(err),
	}
	if l.failures.Allow(s.ID) {
		l.logger.Warn("failed to poll session", attrs...)
		return
	}
	l.logger.Debug("failed to poll session (repeat)", append(attrs, "suppressed", l.failures.Suppressed(s.ID))...)
}

func (l *Loop) clearFailure(s *session.TrackedSession) {
	if n := l.failures.Forget(s.ID); n >= 0 {
		l.logger.Info("session polling recovered", "session_id", s.ID, "suppressed_failures", n)
	}
}
