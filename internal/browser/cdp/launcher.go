// internal/browser/cdp/launcher.go
package cdp

import (
	"context"
	"fmt"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/headless-mcp/internal/browser"
)

// Launcher starts Chromium processes through chromedp's exec allocator.
type Launcher struct {
	logger *zap.Logger
}

var _ browser.Launcher = (*Launcher)(nil)

// NewLauncher creates a chromedp backed launcher.
func NewLauncher(logger *zap.Logger) *Launcher {
	return &Launcher{logger: logger.Named("cdp_launcher")}
}

// Launch starts a browser process with a single tab, applies the fixed viewport and
// returns both handles once the tab is responsive.
//
// The process is parented on a context detached from ctx so it survives the request
// that created it; ctx only bounds how long the launch may take. If ctx expires first
// the half-started process is torn down before returning.
func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, browser.Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), buildAllocatorOptions(opts)...)

	sugar := l.logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	teardown := func() {
		tabCancel()
		allocCancel()
	}

	type launchResult struct {
		product string
		err     error
	}
	done := make(chan launchResult, 1)

	// The first Run starts the process. It must not run on a context with a deadline,
	// since chromedp ties the lifetime of the browser to the context of that first Run.
	go func() {
		var product string
		err := chromedp.Run(tabCtx,
			emulation.SetDeviceMetricsOverride(int64(opts.ViewportWidth), int64(opts.ViewportHeight), 1, false),
			chromedp.ActionFunc(func(ctx context.Context) error {
				c := chromedp.FromContext(ctx)
				if c == nil || c.Browser == nil {
					return nil
				}
				_, p, _, _, _, err := cdpbrowser.GetVersion().Do(cdp.WithExecutor(ctx, c.Browser))
				if err != nil {
					// The version is informational only.
					l.logger.Debug("Could not read browser version.", zap.Error(err))
					return nil
				}
				product = p
				return nil
			}),
		)
		done <- launchResult{product: product, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && ctx.Err() != nil {
			res.err = ctx.Err()
		}
		if res.err != nil {
			teardown()
			return nil, nil, fmt.Errorf("browser failed to start or respond: %w", res.err)
		}
		l.logger.Info("Browser launched successfully and is responsive.",
			zap.String("product", res.product),
			zap.Int("flags", len(opts.Flags)),
		)
		b := &Browser{
			logger:      l.logger.Named("browser"),
			tabCtx:      tabCtx,
			tabCancel:   tabCancel,
			allocCancel: allocCancel,
			version:     res.product,
		}
		return b, newPage(tabCtx, l.logger), nil
	case <-ctx.Done():
		teardown()
		// Wait for the launch goroutine so no chromedp work outlives the failed launch.
		<-done
		return nil, nil, fmt.Errorf("browser launch aborted: %w", ctx.Err())
	}
}

// buildAllocatorOptions layers the window size, the merged flags and the executable
// path on top of chromedp's default allocator options.
func buildAllocatorOptions(opts browser.LaunchOptions) []chromedp.ExecAllocatorOption {
	allocOpts := make([]chromedp.ExecAllocatorOption, 0, len(chromedp.DefaultExecAllocatorOptions)+len(opts.Flags)+2)
	allocOpts = append(allocOpts, chromedp.DefaultExecAllocatorOptions[:]...)

	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight))
	}

	// Later options win, so merged flags may override the window size.
	for _, f := range opts.Flags {
		if f.Value == "" {
			allocOpts = append(allocOpts, chromedp.Flag(f.Name, true))
			continue
		}
		allocOpts = append(allocOpts, chromedp.Flag(f.Name, f.Value))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	return allocOpts
}
