package esic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/esiclivre/esic-api/internal/browser"
)

type fakeAuth struct {
	mu       sync.Mutex
	loggedIn bool
	logins   int
	resets   int
	err      error
}

func (f *fakeAuth) EnsureSession(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.err != nil {
		return f.err
	}
	f.loggedIn = true
	return nil
}

func (f *fakeAuth) LoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *fakeAuth) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedIn = false
	f.resets++
}

type fakeTicker struct {
	mu    sync.Mutex
	ticks int
	errs  []error
}

func (f *fakeTicker) Tick(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.ticks
	f.ticks++
	if i < len(f.errs) {
		return f.errs[i]
	}
	return nil
}

func (f *fakeTicker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks
}

func coordinatorFixture(auth *fakeAuth, ticker *fakeTicker) (*Coordinator, *fakeSession) {
	session := newFakeSession()
	newSession := func() (browser.RemoteSession, error) { return session, nil }
	build := func(browser.RemoteSession) (Authenticator, Ticker) { return auth, ticker }
	state := &State{}
	return NewCoordinator(state, newSession, build, time.Millisecond, testLogger()), session
}

func TestStateAnswerIsConsumedOnce(t *testing.T) {
	state := &State{}
	state.SetAnswer("ab12")
	state.SetAnswer("cd34") // last writer wins

	if got := state.TakeAnswer(); got != "cd34" {
		t.Errorf("answer = %q, want cd34", got)
	}
	if got := state.TakeAnswer(); got != "" {
		t.Errorf("answer = %q after take, want empty", got)
	}
}

func TestCoordinatorRunOnce(t *testing.T) {
	auth := &fakeAuth{}
	ticker := &fakeTicker{}
	coord, session := coordinatorFixture(auth, ticker)

	coord.RunOnce(context.Background())
	coord.Wait()

	if ticker.count() != 1 {
		t.Errorf("ticks = %d, want 1", ticker.count())
	}
	if coord.Running() {
		t.Error("still running after single pass")
	}
	if !session.closed {
		t.Error("browser session not closed")
	}
}

func TestCoordinatorReauthenticatesOnSessionExpiry(t *testing.T) {
	auth := &fakeAuth{}
	ticker := &fakeTicker{errs: []error{ErrLoginNeeded}}
	coord, _ := coordinatorFixture(auth, ticker)

	coord.RunOnce(context.Background())
	coord.Wait()

	if auth.resets != 1 {
		t.Errorf("resets = %d, want 1", auth.resets)
	}
	if auth.logins != 2 {
		t.Errorf("logins = %d, want 2", auth.logins)
	}
	if ticker.count() != 2 {
		t.Errorf("ticks = %d, want 2 (retry after re-login)", ticker.count())
	}
}

func TestCoordinatorStop(t *testing.T) {
	auth := &fakeAuth{}
	ticker := &fakeTicker{}
	coord, session := coordinatorFixture(auth, ticker)

	coord.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	coord.Stop()

	if coord.Running() {
		t.Error("still running after stop")
	}
	if !session.closed {
		t.Error("browser session not closed after stop")
	}
	if ticker.count() == 0 {
		t.Error("worker never ticked")
	}
}

func TestCoordinatorStartIsIdempotent(t *testing.T) {
	auth := &fakeAuth{}
	ticker := &fakeTicker{}
	coord, _ := coordinatorFixture(auth, ticker)

	ctx := context.Background()
	coord.Start(ctx)
	coord.Start(ctx) // second start must not spawn a second worker
	time.Sleep(5 * time.Millisecond)
	coord.Stop()

	if auth.logins > 2 {
		t.Errorf("logins = %d, expected a single worker", auth.logins)
	}
}

// blockingTicker parks its first pass until released, keeping the
// worker mid-iteration while the test drives the lifecycle.
type blockingTicker struct {
	enterOnce sync.Once
	entered   chan struct{}
	release   chan struct{}
}

func (b *blockingTicker) Tick(context.Context) error {
	b.enterOnce.Do(func() { close(b.entered) })
	<-b.release
	return nil
}

type countingSession struct {
	*fakeSession
	onClose func()
}

func (c *countingSession) Close() error {
	c.onClose()
	return c.fakeSession.Close()
}

func TestCoordinatorRestartWaitsForPreviousWorker(t *testing.T) {
	var mu sync.Mutex
	open, opened := 0, 0

	newSession := func() (browser.RemoteSession, error) {
		mu.Lock()
		defer mu.Unlock()
		open++
		opened++
		if open > 1 {
			t.Errorf("%d browser sessions open at once", open)
		}
		return &countingSession{
			fakeSession: newFakeSession(),
			onClose: func() {
				mu.Lock()
				defer mu.Unlock()
				open--
			},
		}, nil
	}

	auth := &fakeAuth{}
	ticker := &blockingTicker{entered: make(chan struct{}), release: make(chan struct{})}
	build := func(browser.RemoteSession) (Authenticator, Ticker) { return auth, ticker }
	state := &State{}
	coord := NewCoordinator(state, newSession, build, time.Millisecond, testLogger())

	ctx := context.Background()
	coord.Start(ctx)
	<-ticker.entered

	// Stop without waiting, then start again while the first worker is
	// still mid-pass. The new worker must not open its browser until
	// the old one has closed its own.
	state.RequestStop()
	restarted := make(chan struct{})
	go func() {
		coord.Start(ctx)
		close(restarted)
	}()

	close(ticker.release)
	<-restarted
	coord.Stop()

	mu.Lock()
	defer mu.Unlock()
	if opened != 2 {
		t.Errorf("sessions opened = %d, want 2", opened)
	}
	if open != 0 {
		t.Errorf("sessions still open = %d, want 0", open)
	}
}

func TestCoordinatorHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	auth := &fakeAuth{}
	ticker := &fakeTicker{}
	coord, _ := coordinatorFixture(auth, ticker)

	coord.Start(ctx)
	time.Sleep(5 * time.Millisecond)
	cancel()
	coord.Wait()

	if coord.Running() {
		// run() exits without flipping running only via the deferred
		// setRunning(false), so this must already be false.
		t.Error("still flagged running after context cancellation")
	}
}
