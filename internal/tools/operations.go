// internal/tools/operations.go
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/headless-mcp/internal/browser"
)

// handlerFunc executes an operation whose arguments already passed validation.
type handlerFunc func(ctx context.Context, d *Dispatcher, args map[string]any) (string, error)

// Operation is one entry of the fixed operation table.
type Operation struct {
	Name        string
	Description string
	Params      []Param
	// Guarded operations require an active session.
	Guarded bool

	handler handlerFunc
}

// Schema returns the JSON Schema of the operation's arguments.
func (o *Operation) Schema() Schema {
	return schemaFor(o.Params)
}

type initializeParams struct {
	Args []string `json:"args"`
}

type navigateParams struct {
	URL string `json:"url"`
}

type screenshotParams struct {
	Path string `json:"path"`
}

type selectorParams struct {
	Selector string `json:"selector"`
}

type fillParams struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

type selectParams struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

type evaluateParams struct {
	Script string `json:"script"`
}

var selectorParam = Param{
	Name:        "selector",
	Type:        TypeString,
	Description: "CSS selector of the target element",
	Required:    true,
	NonEmpty:    true,
}

// operationTable returns the operations in their registration order.
func operationTable() []*Operation {
	return []*Operation{
		{
			Name:        "initialize",
			Description: "Initialize a headless browser instance",
			Params: []Param{{
				Name:        "args",
				Type:        TypeStringArray,
				Description: "Additional browser command line flags",
			}},
			handler: handleInitialize,
		},
		{
			Name:        "close",
			Description: "Close the browser instance",
			handler:     handleClose,
		},
		{
			Name:        "navigate",
			Description: "Navigate to a specified URL",
			Params: []Param{{
				Name: "url", Type: TypeString, Description: "URL to load", Required: true, NonEmpty: true,
			}},
			Guarded: true,
			handler: pageAction(func(ctx context.Context, p browser.Page, args map[string]any) (string, error) {
				in, err := mapToStruct[navigateParams](args)
				if err != nil {
					return "", err
				}
				if err := p.Navigate(ctx, in.URL); err != nil {
					return "", err
				}
				return "Navigated to " + in.URL, nil
			}),
		},
		{
			Name:        "screenshot",
			Description: "Capture a screenshot of the current page",
			Params: []Param{{
				Name: "path", Type: TypeString, Description: "File path to write the image to", Required: true, NonEmpty: true,
			}},
			Guarded: true,
			handler: pageAction(func(ctx context.Context, p browser.Page, args map[string]any) (string, error) {
				in, err := mapToStruct[screenshotParams](args)
				if err != nil {
					return "", err
				}
				if err := p.Screenshot(ctx, in.Path); err != nil {
					return "", err
				}
				return "Screenshot saved to " + in.Path, nil
			}),
		},
		{
			Name:        "click",
			Description: "Click on an element specified by selector",
			Params:      []Param{selectorParam},
			Guarded:     true,
			handler: pageAction(func(ctx context.Context, p browser.Page, args map[string]any) (string, error) {
				in, err := mapToStruct[selectorParams](args)
				if err != nil {
					return "", err
				}
				if err := p.Click(ctx, in.Selector); err != nil {
					return "", err
				}
				return "Clicked on " + in.Selector, nil
			}),
		},
		{
			Name:        "fill",
			Description: "Fill a text input with specified content",
			Params: []Param{
				selectorParam,
				{Name: "text", Type: TypeString, Description: "Text to type", Required: true},
			},
			Guarded: true,
			handler: pageAction(func(ctx context.Context, p browser.Page, args map[string]any) (string, error) {
				in, err := mapToStruct[fillParams](args)
				if err != nil {
					return "", err
				}
				if err := p.Fill(ctx, in.Selector, in.Text); err != nil {
					return "", err
				}
				return "Text entered in " + in.Selector, nil
			}),
		},
		{
			Name:        "select",
			Description: "Select an option from a dropdown menu",
			Params: []Param{
				selectorParam,
				{Name: "value", Type: TypeString, Description: "Value of the option to select", Required: true},
			},
			Guarded: true,
			handler: pageAction(func(ctx context.Context, p browser.Page, args map[string]any) (string, error) {
				in, err := mapToStruct[selectParams](args)
				if err != nil {
					return "", err
				}
				if err := p.Select(ctx, in.Selector, in.Value); err != nil {
					return "", err
				}
				return fmt.Sprintf("Selected value %s in %s", in.Value, in.Selector), nil
			}),
		},
		{
			Name:        "hover",
			Description: "Hover the mouse over a specified element",
			Params:      []Param{selectorParam},
			Guarded:     true,
			handler: pageAction(func(ctx context.Context, p browser.Page, args map[string]any) (string, error) {
				in, err := mapToStruct[selectorParams](args)
				if err != nil {
					return "", err
				}
				if err := p.Hover(ctx, in.Selector); err != nil {
					return "", err
				}
				return "Hovered over " + in.Selector, nil
			}),
		},
		{
			Name:        "evaluate",
			Description: "Execute JavaScript code in the page context",
			Params: []Param{{
				Name: "script", Type: TypeString, Description: "JavaScript expression or statements to evaluate", Required: true,
			}},
			Guarded: true,
			handler: pageAction(func(ctx context.Context, p browser.Page, args map[string]any) (string, error) {
				in, err := mapToStruct[evaluateParams](args)
				if err != nil {
					return "", err
				}
				res, err := p.Evaluate(ctx, in.Script)
				if err != nil {
					return "", err
				}
				return res.String(), nil
			}),
		},
	}
}

func handleInitialize(ctx context.Context, d *Dispatcher, args map[string]any) (string, error) {
	in, err := mapToStruct[initializeParams](args)
	if err != nil {
		return "", err
	}
	for i, arg := range in.Args {
		if _, err := browser.ParseFlag(arg); err != nil {
			return "", &ArgumentError{Operation: "initialize", Field: fmt.Sprintf("args[%d]", i), Reason: err.Error()}
		}
	}

	info, err := d.sessions.Initialize(ctx, in.Args)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Browser instance initialized")
	if info.Replaced {
		sb.WriteString(" (previous instance closed)")
	}
	if len(info.IgnoredFlags) > 0 {
		sb.WriteString("; ignored protected flags: ")
		sb.WriteString(strings.Join(info.IgnoredFlags, ", "))
	}
	return sb.String(), nil
}

func handleClose(ctx context.Context, d *Dispatcher, _ map[string]any) (string, error) {
	closed, err := d.sessions.Close(ctx)
	if err != nil {
		return "", err
	}
	if !closed {
		return "No active browser instance", nil
	}
	return "Browser closed", nil
}

// pageAction adapts fn into a guarded handler. fn runs while the session lock is held
// and under the dispatcher's action timeout.
func pageAction(fn func(ctx context.Context, p browser.Page, args map[string]any) (string, error)) handlerFunc {
	return func(ctx context.Context, d *Dispatcher, args map[string]any) (string, error) {
		var text string
		err := d.sessions.WithPage(ctx, func(ctx context.Context, p browser.Page) error {
			actionCtx, cancel := context.WithTimeout(ctx, d.actionTimeout)
			defer cancel()

			var err error
			text, err = fn(actionCtx, p, args)
			return err
		})
		return text, err
	}
}
