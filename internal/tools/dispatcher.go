// internal/tools/dispatcher.go
package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/headless-mcp/internal/browser"
	"github.com/xkilldash9x/headless-mcp/internal/session"
)

// DefaultActionTimeout bounds every delegated browser action.
const DefaultActionTimeout = 30 * time.Second

// SessionManager is the part of *session.Manager the dispatcher depends on.
type SessionManager interface {
	Initialize(ctx context.Context, extraArgs []string) (session.Info, error)
	Close(ctx context.Context) (bool, error)
	WithPage(ctx context.Context, fn func(ctx context.Context, page browser.Page) error) error
}

// Recorder receives per-operation measurements. *metrics.Collector satisfies it.
type Recorder interface {
	ObserveOperation(operation, outcome string, d time.Duration)
}

// Dispatcher routes operation requests to their handlers and normalizes every result
// into an Outcome. It never returns an error and never lets a panic escape.
type Dispatcher struct {
	sessions      SessionManager
	logger        *zap.Logger
	actionTimeout time.Duration
	recorder      Recorder

	ops    []*Operation
	byName map[string]*Operation
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithActionTimeout overrides DefaultActionTimeout.
func WithActionTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.actionTimeout = d
		}
	}
}

// WithRecorder routes measurements to r.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// NewDispatcher builds a dispatcher over the fixed operation table.
func NewDispatcher(sessions SessionManager, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sessions:      sessions,
		logger:        logger.Named("dispatcher"),
		actionTimeout: DefaultActionTimeout,
		ops:           operationTable(),
	}
	d.byName = make(map[string]*Operation, len(d.ops))
	for _, op := range d.ops {
		d.byName[op.Name] = op
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Operations returns the operation table in registration order.
func (d *Dispatcher) Operations() []*Operation {
	return append([]*Operation(nil), d.ops...)
}

// Dispatch validates args, enforces the session guard, runs the operation and maps
// the result to an Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (out Outcome) {
	start := time.Now()
	log := d.logger.With(zap.String("operation", name))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic in operation handler.",
				zap.Any("panic_value", r),
				zap.String("stack", string(debug.Stack())),
			)
			out = d.fromError(name, &ActionError{Operation: name, Cause: fmt.Errorf("internal error: %v", r)})
		}
		if d.recorder != nil {
			d.recorder.ObserveOperation(name, out.Kind.String(), time.Since(start))
		}
		log.Debug("Operation finished.",
			zap.Stringer("outcome", out.Kind),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	op, ok := d.byName[name]
	if !ok {
		return Outcome{
			Operation: name,
			Kind:      KindUnknownOperation,
			Text:      "Unknown operation: " + name,
		}
	}

	if err := validateArgs(name, op.Params, args); err != nil {
		log.Info("Rejected operation arguments.", zap.Error(err))
		return d.fromError(name, err)
	}
	if len(args) > 0 {
		known := declaredArgs(op.Params, args)
		if ignored := len(args) - len(known); ignored > 0 {
			log.Debug("Ignoring undeclared arguments.", zap.Int("count", ignored))
		}
		args = known
	}

	text, err := op.handler(ctx, d, args)
	if err != nil {
		return d.fromError(name, err)
	}
	return Outcome{Operation: name, Kind: KindSuccess, Text: text}
}

// fromError maps any handler error onto the outcome taxonomy.
func (d *Dispatcher) fromError(op string, err error) Outcome {
	var argErr *ArgumentError
	var actErr *ActionError

	switch {
	case errors.As(err, &argErr):
		return Outcome{Operation: op, Kind: KindInvalidArguments, Text: argErr.Error()}

	case errors.Is(err, session.ErrSessionNotInitialized):
		return Outcome{Operation: op, Kind: KindSessionNotInitialized, Text: NotInitializedMessage}

	case errors.Is(err, session.ErrBrowserLaunchFailed):
		cause := strings.TrimPrefix(err.Error(), session.ErrBrowserLaunchFailed.Error()+": ")
		d.logger.Warn("Browser launch failed.", zap.String("operation", op), zap.Error(err))
		return Outcome{Operation: op, Kind: KindBrowserLaunchFailed, Text: "Failed to initialize browser: " + cause}

	case errors.As(err, &actErr):
		d.logger.Warn("Browser action failed.", zap.String("operation", op), zap.Error(err))
		return Outcome{Operation: op, Kind: KindBrowserActionFailed, Text: actErr.Error(), Retryable: actErr.Timeout}

	default:
		actErr = &ActionError{
			Operation: op,
			Cause:     err,
			Timeout:   errors.Is(err, context.DeadlineExceeded),
		}
		d.logger.Warn("Browser action failed.", zap.String("operation", op), zap.Error(err), zap.Bool("timeout", actErr.Timeout))
		return Outcome{Operation: op, Kind: KindBrowserActionFailed, Text: actErr.Error(), Retryable: actErr.Timeout}
	}
}
