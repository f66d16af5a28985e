// internal/browser/types.go
package browser

import (
	"context"
	"encoding/json"
)

// Fixed viewport applied to every page.
const (
	ViewportWidth  = 1920
	ViewportHeight = 1080
)

// Launcher starts a headless browser process together with its single page.
// Implementations must either return both handles or neither.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, Page, error)
}

// Browser is the live handle to a browser process.
type Browser interface {
	// Close terminates the browser process and releases every resource tied to it.
	Close(ctx context.Context) error
	// Version reports the product string of the running browser, when known.
	Version() string
}

// Page is the single interactive browsing context owned by a session.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Screenshot captures the current viewport and writes it to path.
	Screenshot(ctx context.Context, path string) error
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// Fill focuses the first element matching selector and types text into it.
	Fill(ctx context.Context, selector, text string) error
	// Select chooses the option with the given value in the <select> matching selector.
	Select(ctx context.Context, selector, value string) error
	// Hover moves the pointer over the center of the first element matching selector.
	Hover(ctx context.Context, selector string) error
	// Evaluate runs script in the page context and returns its serialized result.
	Evaluate(ctx context.Context, script string) (EvalResult, error)
}

// LaunchOptions describes a single browser launch.
type LaunchOptions struct {
	// ExecPath overrides browser auto-detection when non-empty.
	ExecPath string
	// Flags is the final, already merged flag list (see MergeFlags).
	Flags          []Flag
	ViewportWidth  int
	ViewportHeight int
}

// EvalResult is the JSON form of a script's return value.
type EvalResult struct {
	// JSON is always a valid JSON document; "null" when the value had no JSON form.
	JSON json.RawMessage
	// Type is the JavaScript type reported by the engine (e.g. "object", "number", "undefined").
	Type string
	// Fallback is set when the value could not be represented and JSON holds a substitute.
	Fallback bool
}

// String returns the JSON text of the result.
func (r EvalResult) String() string {
	if len(r.JSON) == 0 {
		return "null"
	}
	return string(r.JSON)
}
