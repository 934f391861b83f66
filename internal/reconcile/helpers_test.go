// ABOUTME: Shared fakes for reconcile tests
// ABOUTME: Scriptable provider, recording notifier, and store seeding helpers

package reconcile

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/coven-cloudworker/internal/notify"
	"github.com/2389/coven-cloudworker/internal/provider"
	"github.com/2389/coven-cloudworker/internal/session"
	"github.com/2389/coven-cloudworker/internal/store"
)

type fakeProvider struct {
	mu     sync.Mutex
	states map[string]*provider.SessionState
	errs   map[string]error
	panics map[string]bool
	calls  map[string]int

	// block, when set, holds every GetSession until closed.
	block   chan struct{}
	entered chan string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		states: make(map[string]*provider.SessionState),
		errs:   make(map[string]error),
		panics: make(map[string]bool),
		calls:  make(map[string]int),
	}
}

func (f *fakeProvider) Name() string    { return "fake" }
func (f *fakeProvider) Version() string { return "test" }

func (f *fakeProvider) CreateSession(ctx context.Context, params provider.CreateParams) (*provider.CreateResult, error) {
	return nil, provider.ErrUnsupported
}

func (f *fakeProvider) GetSession(ctx context.Context, remoteID string) (*provider.SessionState, error) {
	f.mu.Lock()
	f.calls[remoteID]++
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- remoteID
	}
	if block != nil {
		<-block
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics[remoteID] {
		panic("provider exploded")
	}
	if err := f.errs[remoteID]; err != nil {
		return nil, err
	}
	st, ok := f.states[remoteID]
	if !ok {
		return nil, &provider.APIError{Provider: "fake", StatusCode: 404, Body: "missing"}
	}
	cp := *st
	return &cp, nil
}

func (f *fakeProvider) SendFeedback(ctx context.Context, remoteID, message string) error {
	return nil
}

func (f *fakeProvider) GetArtifacts(ctx context.Context, remoteID string) (*provider.Artifacts, error) {
	return &provider.Artifacts{}, nil
}

func (f *fakeProvider) setStatus(remoteID string, status session.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[remoteID] = &provider.SessionState{RemoteSessionID: remoteID, Status: status}
}

func (f *fakeProvider) setState(st *provider.SessionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[st.RemoteSessionID] = st
}

func (f *fakeProvider) setErr(remoteID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[remoteID] = err
}

func (f *fakeProvider) callCount(remoteID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[remoteID]
}

func (f *fakeProvider) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var baseTime = time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)

func seedSession(t *testing.T, st store.Store, id, remoteID string, status session.Status, createdOffset time.Duration) *session.TrackedSession {
	t.Helper()
	s := &session.TrackedSession{
		ID:              id,
		Provider:        "fake",
		RemoteSessionID: remoteID,
		Repo:            "acme/widgets",
		Branch:          "main",
		Prompt:          "short",
		Status:          status,
		MaxReviewRounds: 3,
		AutoReview:      true,
		Watching:        true,
		CreatedAt:       baseTime.Add(createdOffset),
		UpdatedAt:       baseTime.Add(createdOffset),
	}
	require.NoError(t, st.AddSession(context.Background(), s))
	return s
}

type testEnv struct {
	provider *fakeProvider
	store    *store.MemoryStore
	notifier *recordingNotifier
	rec      *Reconciler
}

func newTestEnv() *testEnv {
	p := newFakeProvider()
	st := store.NewMemoryStore()
	n := &recordingNotifier{}
	rec := NewReconciler(p, st, ReconcilerOptions{Notifier: n, Logger: discardLogger()})
	return &testEnv{provider: p, store: st, notifier: n, rec: rec}
}
