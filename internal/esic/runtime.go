package esic

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/browser"
)

// State is the shared control surface between the API handlers and the
// worker goroutine. Each field has one writer role; concurrent writes
// to the same field resolve last-writer-wins.
type State struct {
	mu       sync.Mutex
	running  bool
	stopOnce bool
	answer   string
}

// Running reports whether the worker should keep looping.
func (s *State) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *State) setRunning(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = v
}

// RequestStop asks the worker to exit after the current pass.
func (s *State) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// SetAnswer stores an externally supplied challenge answer for the
// next login attempt.
func (s *State) SetAnswer(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer = answer
}

// TakeAnswer consumes the pending challenge answer, if any.
func (s *State) TakeAnswer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	answer := s.answer
	s.answer = ""
	return answer
}

func (s *State) singlePass() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopOnce
}

func (s *State) setSinglePass(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopOnce = v
}

// Ticker runs one pass of portal work.
type Ticker interface {
	Tick(ctx context.Context) error
}

// Authenticator establishes and tracks the portal session.
type Authenticator interface {
	EnsureSession(ctx context.Context) error
	LoggedIn() bool
	Reset()
}

// Coordinator owns the worker lifecycle: it creates the browser
// session, logs in, drives the sync engine on a fixed cadence, and
// reacts to session expiry by logging in again. The browser session is
// owned by exactly one worker goroutine at a time.
type Coordinator struct {
	state      *State
	newSession func() (browser.RemoteSession, error)
	build      func(browser.RemoteSession) (Authenticator, Ticker)
	interval   time.Duration
	logger     *logrus.Logger

	mu   sync.Mutex
	done chan struct{}
}

// NewCoordinator creates a coordinator. newSession opens a fresh
// browser; build wires the session into an authenticator and a ticker.
func NewCoordinator(state *State, newSession func() (browser.RemoteSession, error), build func(browser.RemoteSession) (Authenticator, Ticker), interval time.Duration, logger *logrus.Logger) *Coordinator {
	return &Coordinator{
		state:      state,
		newSession: newSession,
		build:      build,
		interval:   interval,
		logger:     logger,
	}
}

// Running reports whether a worker goroutine is active.
func (c *Coordinator) Running() bool {
	return c.state.Running()
}

// Start launches the worker goroutine. Starting while running is a
// no-op.
func (c *Coordinator) Start(ctx context.Context) {
	c.launch(ctx, false)
}

// RunOnce launches the worker for a single successful pass, then
// stops it.
func (c *Coordinator) RunOnce(ctx context.Context) {
	c.launch(ctx, true)
}

func (c *Coordinator) launch(ctx context.Context, single bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Running() {
		return
	}
	// A stop request drops the running flag before the old worker's
	// in-flight pass finishes. Wait it out so two workers never hold
	// browser sessions at the same time.
	if c.done != nil {
		<-c.done
	}
	c.state.setRunning(true)
	c.state.setSinglePass(single)
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Stop asks the worker to exit and waits for it.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	c.state.RequestStop()
	if done != nil {
		<-done
	}
}

// Wait blocks until the worker goroutine exits.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Coordinator) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.state.setRunning(false)

	log := c.logger.WithField("component", "coordinator")

	session, err := c.newSession()
	if err != nil {
		log.WithError(err).Error("Could not start browser session")
		return
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("Browser session close failed")
		}
	}()

	auth, ticker := c.build(session)
	log.Info("Worker started")

	for c.state.Running() {
		if err := ctx.Err(); err != nil {
			return
		}

		if !auth.LoggedIn() {
			if err := auth.EnsureSession(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.WithError(err).Error("Login failed")
				if err := c.pause(ctx); err != nil {
					return
				}
				continue
			}
		}

		err := ticker.Tick(ctx)
		switch {
		case err == nil:
			if c.state.singlePass() {
				log.Info("Single pass complete")
				c.state.RequestStop()
				return
			}
		case errors.Is(err, ErrLoginNeeded):
			// Session expired mid-pass; log in again and let the next
			// tick rerun the pass from its checkpoints.
			log.Info("Session expired, re-establishing")
			auth.Reset()
			continue
		case ctx.Err() != nil:
			return
		default:
			log.WithError(err).Error("Sync pass failed")
		}

		if err := c.pause(ctx); err != nil {
			return
		}
	}
}

func (c *Coordinator) pause(ctx context.Context) error {
	return sleepCtx(ctx, c.interval)
}
