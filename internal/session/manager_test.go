// internal/session/manager_test.go
package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/headless-mcp/internal/browser"
	"github.com/xkilldash9x/headless-mcp/internal/browser/browsertest"
)

// mockRecorder is a testify mock of Recorder.
type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) ObserveLaunch(success bool) {
	m.Called(success)
}

func (m *mockRecorder) SetSessionActive(active bool) {
	m.Called(active)
}

func newTestManager(t *testing.T, l browser.Launcher, opts Options) *Manager {
	t.Helper()
	return NewManager(l, opts, zaptest.NewLogger(t))
}

func TestManager_GuardBeforeInitialize(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestManager(t, &browsertest.Launcher{}, Options{})
	assert.Equal(t, StateUninitialized, m.State())

	called := false
	err := m.WithPage(context.Background(), func(context.Context, browser.Page) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrSessionNotInitialized)
	assert.False(t, called)

	_, ok := m.Current()
	assert.False(t, ok)
}

func TestManager_InitializeAndClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := &browsertest.Launcher{}
	rec := &mockRecorder{}
	rec.On("ObserveLaunch", true).Once()
	rec.On("SetSessionActive", true).Once()
	rec.On("SetSessionActive", false).Once()
	m := NewManager(l, Options{ExecPath: "/opt/chrome", DeploymentArgs: []string{"--disable-gpu"}},
		zaptest.NewLogger(t), WithRecorder(rec))

	info, err := m.Initialize(context.Background(), []string{"--lang=de"})
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.False(t, info.Replaced)
	assert.Empty(t, info.IgnoredFlags)
	assert.Equal(t, "FakeChrome/1.0", info.BrowserVersion)
	assert.Equal(t, []string{"--headless", "--no-sandbox", "--disable-setuid-sandbox", "--disable-gpu", "--lang=de"}, info.Flags)

	assert.Equal(t, StateActive, m.State())
	assert.Equal(t, 1, l.Live())

	launches := l.Launches()
	require.Len(t, launches, 1)
	assert.Equal(t, "/opt/chrome", launches[0].ExecPath)
	assert.Equal(t, browser.ViewportWidth, launches[0].ViewportWidth)
	assert.Equal(t, browser.ViewportHeight, launches[0].ViewportHeight)

	var page browser.Page
	require.NoError(t, m.WithPage(context.Background(), func(_ context.Context, p browser.Page) error {
		page = p
		return nil
	}))
	assert.NotNil(t, page)

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, info.ID, cur.ID)

	closed, err := m.Close(context.Background())
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, StateUninitialized, m.State())
	assert.Equal(t, 0, l.Live())
	rec.AssertExpectations(t)

	err = m.WithPage(context.Background(), func(context.Context, browser.Page) error {
		t.Fatal("closed session must not expose its page")
		return nil
	})
	assert.ErrorIs(t, err, ErrSessionNotInitialized)
}

func TestManager_CloseTwice(t *testing.T) {
	m := newTestManager(t, &browsertest.Launcher{}, Options{})
	_, err := m.Initialize(context.Background(), nil)
	require.NoError(t, err)

	closed, err := m.Close(context.Background())
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = m.Close(context.Background())
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestManager_ReinitializeClosesPrevious(t *testing.T) {
	l := &browsertest.Launcher{}
	m := newTestManager(t, l, Options{})

	first, err := m.Initialize(context.Background(), nil)
	require.NoError(t, err)
	second, err := m.Initialize(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, second.Replaced)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, l.Live())

	browsers := l.Browsers()
	require.Len(t, browsers, 2)
	assert.True(t, browsers[0].Closed())
	assert.False(t, browsers[1].Closed())
}

func TestManager_ReinitializeSurvivesCloseError(t *testing.T) {
	l := &browsertest.Launcher{}
	m := newTestManager(t, l, Options{})

	_, err := m.Initialize(context.Background(), nil)
	require.NoError(t, err)
	l.Browsers()[0].CloseErr = errors.New("target crashed")

	info, err := m.Initialize(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, info.Replaced)
	assert.Equal(t, StateActive, m.State())
}

func TestManager_LaunchFailure(t *testing.T) {
	l := &browsertest.Launcher{LaunchErr: errors.New("chrome not found")}
	rec := &mockRecorder{}
	rec.On("ObserveLaunch", false).Once()
	m := NewManager(l, Options{}, zaptest.NewLogger(t), WithRecorder(rec))

	_, err := m.Initialize(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBrowserLaunchFailed)
	assert.Contains(t, err.Error(), "chrome not found")
	assert.Equal(t, StateUninitialized, m.State())
	rec.AssertExpectations(t)
	rec.AssertNotCalled(t, "SetSessionActive", mock.Anything)
}

func TestManager_LaunchFailureAfterActiveLeavesUninitialized(t *testing.T) {
	l := &browsertest.Launcher{}
	m := newTestManager(t, l, Options{})

	_, err := m.Initialize(context.Background(), nil)
	require.NoError(t, err)

	l.LaunchErr = errors.New("out of memory")
	_, err = m.Initialize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrBrowserLaunchFailed)
	assert.Equal(t, StateUninitialized, m.State())
	assert.Equal(t, 0, l.Live())
}

func TestManager_LaunchTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := &browsertest.Launcher{Block: true}
	m := newTestManager(t, l, Options{LaunchTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := m.Initialize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrBrowserLaunchFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StateUninitialized, m.State())
}

func TestManager_ProtectedFlagsReported(t *testing.T) {
	l := &browsertest.Launcher{}
	m := newTestManager(t, l, Options{})

	info, err := m.Initialize(context.Background(), []string{"--headless=false", "--mute-audio"})
	require.NoError(t, err)
	assert.Equal(t, []string{"--headless=false"}, info.IgnoredFlags)
	assert.Contains(t, info.Flags, "--mute-audio")
	assert.Contains(t, info.Flags, "--headless")
}

func TestManager_MalformedFlagKeepsSession(t *testing.T) {
	l := &browsertest.Launcher{}
	m := newTestManager(t, l, Options{})

	first, err := m.Initialize(context.Background(), nil)
	require.NoError(t, err)

	_, err = m.Initialize(context.Background(), []string{"--"})
	assert.ErrorIs(t, err, ErrBrowserLaunchFailed)

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, first.ID, cur.ID)
	assert.Len(t, l.Launches(), 1)
}

func TestManager_CloseErrorStillUninitializes(t *testing.T) {
	l := &browsertest.Launcher{}
	m := newTestManager(t, l, Options{})

	_, err := m.Initialize(context.Background(), nil)
	require.NoError(t, err)
	l.Browsers()[0].CloseErr = errors.New("pipe closed")

	closed, err := m.Close(context.Background())
	assert.True(t, closed)
	assert.Error(t, err)
	assert.Equal(t, StateUninitialized, m.State())
}

func TestManager_WithPageSerializesTransitions(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := &browsertest.Launcher{}
	m := newTestManager(t, l, Options{})
	_, err := m.Initialize(context.Background(), nil)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	actionDone := make(chan error, 1)
	go func() {
		actionDone <- m.WithPage(context.Background(), func(ctx context.Context, p browser.Page) error {
			close(entered)
			<-release
			return p.Navigate(ctx, "about:blank")
		})
	}()
	<-entered

	closeDone := make(chan struct{})
	go func() {
		_, _ = m.Close(context.Background())
		close(closeDone)
	}()

	select {
	case <-closeDone:
		t.Fatal("close must wait for the running page action")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-actionDone)
	<-closeDone
	assert.Equal(t, 0, l.Live())
}

func TestManager_WithPageCancelledContext(t *testing.T) {
	m := newTestManager(t, &browsertest.Launcher{}, Options{})
	_, err := m.Initialize(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.WithPage(ctx, func(context.Context, browser.Page) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManager_Shutdown(t *testing.T) {
	l := &browsertest.Launcher{}
	m := newTestManager(t, l, Options{})

	require.NoError(t, m.Shutdown(context.Background()))

	_, err := m.Initialize(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 0, l.Live())
	assert.Equal(t, StateUninitialized, m.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "active", StateActive.String())
}
