// internal/session/manager_property_test.go
package session

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/xkilldash9x/headless-mcp/internal/browser"
	"github.com/xkilldash9x/headless-mcp/internal/browser/browsertest"
)

// TestManager_StateMachine drives random sequences of lifecycle calls and checks that
// the manager never leaks a browser and always agrees with a simple model.
func TestManager_StateMachine(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		l := &browsertest.Launcher{}
		m := NewManager(l, Options{}, zap.NewNop())
		ctx := context.Background()
		modelActive := false

		rt.Repeat(map[string]func(*rapid.T){
			"initialize": func(rt *rapid.T) {
				fail := rapid.Bool().Draw(rt, "launchFails")
				if fail {
					l.LaunchErr = errors.New("launch failed")
				} else {
					l.LaunchErr = nil
				}
				info, err := m.Initialize(ctx, nil)
				if fail {
					if !errors.Is(err, ErrBrowserLaunchFailed) {
						rt.Fatalf("expected launch failure, got %v", err)
					}
					modelActive = false
					return
				}
				if err != nil {
					rt.Fatalf("initialize: %v", err)
				}
				if info.Replaced != modelActive {
					rt.Fatalf("replaced=%v but model active=%v", info.Replaced, modelActive)
				}
				modelActive = true
			},
			"close": func(rt *rapid.T) {
				closed, err := m.Close(ctx)
				if err != nil {
					rt.Fatalf("close: %v", err)
				}
				if closed != modelActive {
					rt.Fatalf("closed=%v but model active=%v", closed, modelActive)
				}
				modelActive = false
			},
			"pageAction": func(rt *rapid.T) {
				err := m.WithPage(ctx, func(ctx context.Context, p browser.Page) error {
					return p.Navigate(ctx, "about:blank")
				})
				if modelActive && err != nil {
					rt.Fatalf("page action on active session: %v", err)
				}
				if !modelActive && !errors.Is(err, ErrSessionNotInitialized) {
					rt.Fatalf("expected ErrSessionNotInitialized, got %v", err)
				}
			},
			"": func(rt *rapid.T) {
				wantLive := 0
				wantState := StateUninitialized
				if modelActive {
					wantLive = 1
					wantState = StateActive
				}
				if got := l.Live(); got != wantLive {
					rt.Fatalf("live browsers = %d, want %d", got, wantLive)
				}
				if got := m.State(); got != wantState {
					rt.Fatalf("state = %v, want %v", got, wantState)
				}
			},
		})
	})
}
