// internal/browser/cdp/context.go
package cdp

import (
	"context"
	"time"
)

// CombineContext derives a context from primary (which carries the chromedp target)
// that is also canceled when secondary is done. When secondary carries an earlier
// deadline, that deadline is adopted so callers observe context.DeadlineExceeded.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	var (
		combinedCtx context.Context
		cancel      context.CancelFunc
	)
	if deadline, ok := secondary.Deadline(); ok {
		combinedCtx, cancel = context.WithDeadline(primary, deadline)
	} else {
		combinedCtx, cancel = context.WithCancel(primary)
	}

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// valueOnlyContext inherits values from its parent but ignores the parent's
// deadline and cancellation signal.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that keeps the values of ctx but is not canceled with it.
// Browser processes are parented on a detached context so they outlive the request
// that launched them.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
