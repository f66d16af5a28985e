// internal/browser/cdp/browser.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/headless-mcp/internal/browser"
)

// defaultCloseWait bounds how long Close waits for the process when ctx has no deadline.
const defaultCloseWait = 10 * time.Second

// Browser owns one Chromium process and the tab created with it.
type Browser struct {
	logger *zap.Logger

	tabCtx    context.Context
	tabCancel context.CancelFunc

	allocCancel context.CancelFunc

	version string

	mu       sync.Mutex
	isClosed bool
}

var _ browser.Browser = (*Browser)(nil)

// Version returns the product string reported at launch.
func (b *Browser) Version() string {
	return b.version
}

// Close shuts the browser down gracefully and then kills the process. It is safe to
// call more than once; only the first call does any work.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.isClosed {
		b.mu.Unlock()
		return nil
	}
	b.isClosed = true
	b.mu.Unlock()

	waitCtx, cancelWait := context.WithTimeout(ctx, defaultCloseWait)
	defer cancelWait()

	// chromedp.Cancel on the first tab closes the whole browser and waits for it.
	cancelDone := make(chan error, 1)
	go func() {
		cancelDone <- chromedp.Cancel(b.tabCtx)
	}()

	var closeErr error
	select {
	case err := <-cancelDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			closeErr = fmt.Errorf("graceful browser close failed: %w", err)
		}
	case <-waitCtx.Done():
		closeErr = fmt.Errorf("timed out waiting for browser to close: %w", waitCtx.Err())
	}

	// Cancelling the allocator kills the process if it is still alive, waits for it
	// to exit and removes the temporary profile directory.
	b.tabCancel()
	b.allocCancel()

	if closeErr != nil {
		b.logger.Warn("Browser did not close gracefully; process was killed.", zap.Error(closeErr))
	} else {
		b.logger.Debug("Browser process terminated.")
	}
	return closeErr
}
