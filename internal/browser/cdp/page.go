// internal/browser/cdp/page.go
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/headless-mcp/internal/browser"
)

// ErrElementNotFound is returned when a selector matches nothing in the current document.
var ErrElementNotFound = errors.New("no element matches selector")

// Page drives the single tab of a Browser.
type Page struct {
	tabCtx context.Context
	logger *zap.Logger
}

var _ browser.Page = (*Page)(nil)

func newPage(tabCtx context.Context, logger *zap.Logger) *Page {
	return &Page{tabCtx: tabCtx, logger: logger.Named("page")}
}

// run executes fn against the tab, bounded by ctx as well as the tab's own lifetime.
func (p *Page) run(ctx context.Context, fn func(ctx context.Context) error) error {
	runCtx, cancel := CombineContext(p.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.ActionFunc(fn))
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating", zap.String("url", url))
	runCtx, cancel := CombineContext(p.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Navigate(url))
}

// screenshotFormat picks the capture format from the file extension:
// .jpg and .jpeg produce JPEG, .webp produces WebP, anything else PNG.
func screenshotFormat(path string) cdppage.CaptureScreenshotFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return cdppage.CaptureScreenshotFormatJpeg
	case ".webp":
		return cdppage.CaptureScreenshotFormatWebp
	default:
		return cdppage.CaptureScreenshotFormatPng
	}
}

// Screenshot captures the viewport in the format named by the file extension.
func (p *Page) Screenshot(ctx context.Context, path string) error {
	target, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("could not expand path %q: %w", path, err)
	}

	format := screenshotFormat(target)

	var buf []byte
	err = p.run(ctx, func(ctx context.Context) error {
		var err error
		buf, err = cdppage.CaptureScreenshot().WithFormat(format).Do(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}

	if err := os.WriteFile(target, buf, 0o644); err != nil {
		return fmt.Errorf("could not write screenshot: %w", err)
	}
	p.logger.Debug("Screenshot written", zap.String("path", target), zap.Int("bytes", len(buf)))
	return nil
}

// Click scrolls the first match of selector into view and clicks its center.
func (p *Page) Click(ctx context.Context, selector string) error {
	return p.run(ctx, func(ctx context.Context) error {
		return withElement(ctx, selector, func(id runtime.RemoteObjectID) error {
			x, y, err := elementCenter(ctx, id)
			if err != nil {
				return err
			}
			return clickAt(ctx, x, y)
		})
	})
}

// Fill focuses the first match of selector and types text as key events.
func (p *Page) Fill(ctx context.Context, selector, text string) error {
	return p.run(ctx, func(ctx context.Context) error {
		return withElement(ctx, selector, func(id runtime.RemoteObjectID) error {
			if _, err := callFunction(ctx, id, "function() { this.focus(); }"); err != nil {
				return fmt.Errorf("could not focus element: %w", err)
			}
			return chromedp.KeyEvent(text).Do(ctx)
		})
	})
}

// Select picks the option whose value equals value in the <select> matching selector.
func (p *Page) Select(ctx context.Context, selector, value string) error {
	return p.run(ctx, func(ctx context.Context) error {
		return withElement(ctx, selector, func(id runtime.RemoteObjectID) error {
			_, err := callFunction(ctx, id, selectFunctionDeclaration(value))
			return err
		})
	})
}

// Hover moves the mouse to the center of the first match of selector.
func (p *Page) Hover(ctx context.Context, selector string) error {
	return p.run(ctx, func(ctx context.Context) error {
		return withElement(ctx, selector, func(id runtime.RemoteObjectID) error {
			x, y, err := elementCenter(ctx, id)
			if err != nil {
				return err
			}
			return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
		})
	})
}

// evalEnvelope mirrors the object returned by js/evaluate.js.
type evalEnvelope struct {
	Type     string `json:"type"`
	Fallback bool   `json:"fallback"`
	JSON     string `json:"json"`
}

// Evaluate runs script in the global scope, awaits a returned promise and serializes
// the value in the page. Values without a JSON form become null and set Fallback.
func (p *Page) Evaluate(ctx context.Context, script string) (browser.EvalResult, error) {
	var res browser.EvalResult
	err := p.run(ctx, func(ctx context.Context) error {
		obj, exc, err := runtime.Evaluate(evaluateExpression(script)).
			WithAwaitPromise(true).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exceptionError(exc)
		}
		if obj == nil || len(obj.Value) == 0 {
			return errors.New("script produced no result")
		}

		var env evalEnvelope
		if err := json.Unmarshal(obj.Value, &env); err != nil {
			return fmt.Errorf("could not decode script result: %w", err)
		}
		if !json.Valid([]byte(env.JSON)) {
			return fmt.Errorf("script result is not valid JSON")
		}
		res = browser.EvalResult{
			JSON:     json.RawMessage(env.JSON),
			Type:     env.Type,
			Fallback: env.Fallback,
		}
		return nil
	})
	return res, err
}

// withElement resolves the first match of selector to a remote object, runs fn with it
// and releases the object afterwards. A selector that matches nothing fails at once.
func withElement(ctx context.Context, selector string, fn func(id runtime.RemoteObjectID) error) error {
	obj, exc, err := runtime.Evaluate(querySelectorExpression(selector)).Do(ctx)
	if err != nil {
		return err
	}
	if exc != nil {
		return fmt.Errorf("invalid selector %q: %w", selector, exceptionError(exc))
	}
	if obj == nil || obj.ObjectID == "" || obj.Subtype == runtime.SubtypeNull {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	defer func() {
		// Best effort; the object dies with its execution context anyway.
		_ = runtime.ReleaseObject(obj.ObjectID).Do(ctx)
	}()
	return fn(obj.ObjectID)
}

// elementCenter scrolls the element into view and returns the center of its first
// content quad in viewport coordinates.
func elementCenter(ctx context.Context, id runtime.RemoteObjectID) (float64, float64, error) {
	if err := dom.ScrollIntoViewIfNeeded().WithObjectID(id).Do(ctx); err != nil {
		return 0, 0, fmt.Errorf("could not scroll element into view: %w", err)
	}
	quads, err := dom.GetContentQuads().WithObjectID(id).Do(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("could not compute element geometry: %w", err)
	}
	for _, q := range quads {
		if len(q) != 8 {
			continue
		}
		var x, y float64
		for i := 0; i < 8; i += 2 {
			x += q[i]
			y += q[i+1]
		}
		return x / 4, y / 4, nil
	}
	return 0, 0, errors.New("element is not visible")
}

func clickAt(ctx context.Context, x, y float64) error {
	if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
		return err
	}
	if err := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).
		WithClickCount(1).
		Do(ctx); err != nil {
		return err
	}
	return input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).
		WithClickCount(1).
		Do(ctx)
}

// callFunction invokes declaration with `this` bound to the remote object.
func callFunction(ctx context.Context, id runtime.RemoteObjectID, declaration string) (*runtime.RemoteObject, error) {
	obj, exc, err := runtime.CallFunctionOn(declaration).
		WithObjectID(id).
		WithAwaitPromise(true).
		WithReturnByValue(true).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, exceptionError(exc)
	}
	return obj, nil
}

// exceptionError turns a page-side exception into a Go error, preferring the thrown
// value's description over the generic "Uncaught" text.
func exceptionError(exc *runtime.ExceptionDetails) error {
	if exc.Exception != nil && exc.Exception.Description != "" {
		msg, _, _ := strings.Cut(exc.Exception.Description, "\n")
		return errors.New(msg)
	}
	if exc.Text != "" {
		return errors.New(exc.Text)
	}
	return errors.New("script raised an exception")
}
