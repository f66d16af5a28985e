// internal/browser/browsertest/fake.go
//
// Package browsertest provides in-memory Launcher, Browser and Page fakes that track
// live processes, so lifecycle properties can be tested without Chrome.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xkilldash9x/headless-mcp/internal/browser"
)

// ErrNotFound mimics a driver error for a selector that matches nothing.
var ErrNotFound = errors.New("no element matches selector")

// Launcher is a fake browser.Launcher.
type Launcher struct {
	// LaunchErr, when set, fails every launch.
	LaunchErr error
	// Block makes Launch wait until its context is done.
	Block bool
	// NewPage customizes the page handed out by each launch.
	NewPage func() *Page

	mu       sync.Mutex
	launches []browser.LaunchOptions
	browsers []*Browser
	live     atomic.Int32
}

var _ browser.Launcher = (*Launcher)(nil)

// Launch records opts and returns a fresh fake browser and page.
func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, browser.Page, error) {
	l.mu.Lock()
	l.launches = append(l.launches, opts)
	l.mu.Unlock()

	if l.Block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	if l.LaunchErr != nil {
		return nil, nil, l.LaunchErr
	}

	b := &Browser{launcher: l}
	l.live.Add(1)

	var p *Page
	if l.NewPage != nil {
		p = l.NewPage()
	} else {
		p = &Page{}
	}

	l.mu.Lock()
	l.browsers = append(l.browsers, b)
	l.mu.Unlock()
	return b, p, nil
}

// Live reports how many launched browsers have not been closed.
func (l *Launcher) Live() int {
	return int(l.live.Load())
}

// Launches returns the options of every launch attempt in order.
func (l *Launcher) Launches() []browser.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.LaunchOptions(nil), l.launches...)
}

// Browsers returns every browser handed out so far.
func (l *Launcher) Browsers() []*Browser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Browser(nil), l.browsers...)
}

// Browser is a fake browser.Browser.
type Browser struct {
	// CloseErr is returned from Close; the browser still counts as closed.
	CloseErr error

	launcher *Launcher
	closes   atomic.Int32
}

// Close marks the browser closed. Subsequent calls are no-ops.
func (b *Browser) Close(context.Context) error {
	if b.closes.Add(1) == 1 && b.launcher != nil {
		b.launcher.live.Add(-1)
	}
	return b.CloseErr
}

// Closed reports whether Close has been called.
func (b *Browser) Closed() bool {
	return b.closes.Load() > 0
}

// CloseCalls reports how many times Close was called.
func (b *Browser) CloseCalls() int {
	return int(b.closes.Load())
}

// Version returns a fixed product string.
func (b *Browser) Version() string {
	return "FakeChrome/1.0"
}

// Call is one recorded Page invocation.
type Call struct {
	Method string
	Args   []string
}

// Page is a fake browser.Page. Selectors listed in Elements exist; everything else
// fails with ErrNotFound. Hooks override the default behavior per method.
type Page struct {
	Elements map[string]bool
	// Options maps a <select> selector to its option values.
	Options map[string][]string

	NavigateFunc func(ctx context.Context, url string) error
	EvaluateFunc func(ctx context.Context, script string) (browser.EvalResult, error)
	// ActionFunc, when set, runs before every element action.
	ActionFunc func(ctx context.Context, method, selector string) error

	mu    sync.Mutex
	calls []Call
	url   string
}

var _ browser.Page = (*Page)(nil)

func (p *Page) record(method string, args ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Method: method, Args: args})
}

// Calls returns every recorded invocation in order.
func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// URL returns the last navigated URL.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) element(ctx context.Context, method, selector string) error {
	p.record(method, selector)
	if p.ActionFunc != nil {
		if err := p.ActionFunc(ctx, method, selector); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.Elements[selector] {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.record("Navigate", url)
	if p.NavigateFunc != nil {
		if err := p.NavigateFunc(ctx, url); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *Page) Screenshot(ctx context.Context, path string) error {
	p.record("Screenshot", path)
	return ctx.Err()
}

func (p *Page) Click(ctx context.Context, selector string) error {
	return p.element(ctx, "Click", selector)
}

func (p *Page) Fill(ctx context.Context, selector, text string) error {
	return p.element(ctx, "Fill", selector)
}

func (p *Page) Select(ctx context.Context, selector, value string) error {
	if err := p.element(ctx, "Select", selector); err != nil {
		return err
	}
	for _, v := range p.Options[selector] {
		if v == value {
			return nil
		}
	}
	return fmt.Errorf("no option with value %q", value)
}

func (p *Page) Hover(ctx context.Context, selector string) error {
	return p.element(ctx, "Hover", selector)
}

// Evaluate returns EvaluateFunc's result, or the script echoed back as a JSON string.
func (p *Page) Evaluate(ctx context.Context, script string) (browser.EvalResult, error) {
	p.record("Evaluate", script)
	if p.EvaluateFunc != nil {
		return p.EvaluateFunc(ctx, script)
	}
	b, err := json.Marshal(script)
	if err != nil {
		return browser.EvalResult{}, err
	}
	return browser.EvalResult{JSON: b, Type: "string"}, nil
}
