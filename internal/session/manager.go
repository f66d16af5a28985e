// internal/session/manager.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/headless-mcp/internal/browser"
)

var (
	// ErrSessionNotInitialized is returned by guarded operations while no browser is running.
	ErrSessionNotInitialized = errors.New("browser session not initialized")
	// ErrBrowserLaunchFailed wraps every failure to bring up a browser and its page.
	ErrBrowserLaunchFailed = errors.New("browser launch failed")
)

// State is the lifecycle state of the manager.
type State int

const (
	StateUninitialized State = iota
	StateActive
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	default:
		return "uninitialized"
	}
}

// Recorder receives lifecycle events. *metrics.Collector satisfies it.
type Recorder interface {
	ObserveLaunch(success bool)
	SetSessionActive(active bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLaunch(bool)     {}
func (nopRecorder) SetSessionActive(bool) {}

// Options configures browser launches and teardown.
type Options struct {
	// ExecPath overrides browser auto-detection.
	ExecPath string
	// DeploymentArgs are trusted flags from configuration, applied to every launch.
	DeploymentArgs []string
	LaunchTimeout  time.Duration
	CloseTimeout   time.Duration
}

// Session is one live browser together with its page. Both handles are always set.
type Session struct {
	ID        string
	StartedAt time.Time
	Flags     []browser.Flag

	browser browser.Browser
	page    browser.Page
}

// Info describes a session to callers outside this package.
type Info struct {
	ID             string
	StartedAt      time.Time
	Flags          []string
	BrowserVersion string
	// Replaced is set when initializing closed a previously active session.
	Replaced bool
	// IgnoredFlags lists caller flags dropped because they name protected switches.
	IgnoredFlags []string
}

func (s *Session) info() Info {
	flags := make([]string, len(s.Flags))
	for i, f := range s.Flags {
		flags[i] = f.String()
	}
	return Info{
		ID:             s.ID,
		StartedAt:      s.StartedAt,
		Flags:          flags,
		BrowserVersion: s.browser.Version(),
	}
}

// Manager owns the single browser session of the process.
//
// All transitions and every page action run under one mutex, so a page is never
// used while it is being replaced or closed.
type Manager struct {
	launcher browser.Launcher
	opts     Options
	logger   *zap.Logger
	recorder Recorder

	mu      sync.Mutex
	current *Session
}

// Option customizes a Manager.
type Option func(*Manager)

// WithRecorder routes lifecycle events to r.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// NewManager creates a manager in the Uninitialized state.
func NewManager(launcher browser.Launcher, opts Options, logger *zap.Logger, options ...Option) *Manager {
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = 60 * time.Second
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = 10 * time.Second
	}
	m := &Manager{
		launcher: launcher,
		opts:     opts,
		logger:   logger.Named("session"),
		recorder: nopRecorder{},
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Initialize launches a new browser and page. An active session is closed first;
// failures while closing it are logged and its handles are dropped regardless.
// On error the manager is left Uninitialized.
func (m *Manager) Initialize(ctx context.Context, extraArgs []string) (Info, error) {
	flags, ignored, err := browser.MergeFlags(m.opts.DeploymentArgs, extraArgs)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrBrowserLaunchFailed, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	replaced := false
	if m.current != nil {
		m.logger.Info("Replacing active browser session.", zap.String("session_id", m.current.ID))
		if err := m.closeLocked(ctx); err != nil {
			m.logger.Warn("Error closing previous browser session.", zap.Error(err))
		}
		replaced = true
	}

	if len(ignored) > 0 {
		m.logger.Warn("Ignoring protected browser flags.", zap.Strings("flags", ignored))
	}

	launchCtx, cancel := context.WithTimeout(ctx, m.opts.LaunchTimeout)
	defer cancel()

	b, p, err := m.launcher.Launch(launchCtx, browser.LaunchOptions{
		ExecPath:       m.opts.ExecPath,
		Flags:          flags,
		ViewportWidth:  browser.ViewportWidth,
		ViewportHeight: browser.ViewportHeight,
	})
	if err == nil && (b == nil || p == nil) {
		if b != nil {
			_ = b.Close(ctx)
		}
		err = errors.New("launcher returned no page")
	}
	if err != nil {
		m.recorder.ObserveLaunch(false)
		m.logger.Error("Failed to launch browser.", zap.Error(err))
		return Info{}, fmt.Errorf("%w: %w", ErrBrowserLaunchFailed, err)
	}

	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Flags:     flags,
		browser:   b,
		page:      p,
	}
	m.current = s
	m.recorder.ObserveLaunch(true)
	m.recorder.SetSessionActive(true)

	m.logger.Info("Browser session initialized.",
		zap.String("session_id", s.ID),
		zap.String("browser", b.Version()),
		zap.Bool("replaced", replaced),
	)

	info := s.info()
	info.Replaced = replaced
	info.IgnoredFlags = ignored
	return info, nil
}

// Close tears down the active session. It reports false when there was nothing to
// close. The manager is Uninitialized afterwards even if the driver reported an error.
func (m *Manager) Close(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return false, nil
	}
	return true, m.closeLocked(ctx)
}

// closeLocked must be called with m.mu held and m.current set.
func (m *Manager) closeLocked(ctx context.Context) error {
	s := m.current
	m.current = nil
	m.recorder.SetSessionActive(false)

	closeCtx, cancel := context.WithTimeout(ctx, m.opts.CloseTimeout)
	defer cancel()

	if err := s.browser.Close(closeCtx); err != nil {
		return fmt.Errorf("closing browser for session %s: %w", s.ID, err)
	}
	m.logger.Info("Browser session closed.",
		zap.String("session_id", s.ID),
		zap.Duration("lifetime", time.Since(s.StartedAt)),
	)
	return nil
}

// activePage returns the page of the active session. m.mu must be held.
func (m *Manager) activePage() (browser.Page, error) {
	if m.current == nil {
		return nil, ErrSessionNotInitialized
	}
	return m.current.page, nil
}

// WithPage runs fn against the active page while holding the session lock.
func (m *Manager) WithPage(ctx context.Context, fn func(ctx context.Context, page browser.Page) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, err := m.activePage()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, page)
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return StateUninitialized
	}
	return StateActive
}

// Current returns a description of the active session, if any.
func (m *Manager) Current() (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Info{}, false
	}
	return m.current.info(), true
}

// Shutdown closes any active session. It is meant for process exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	closed, err := m.Close(ctx)
	if closed {
		m.logger.Info("Browser session closed on shutdown.")
	}
	return err
}
