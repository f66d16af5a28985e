// internal/tools/outcome.go
package tools

import (
	"fmt"
)

// NotInitializedMessage is the advisory returned by guarded operations while no
// browser is running.
const NotInitializedMessage = "Please initialize browser first"

// Kind classifies the result of an operation.
type Kind int

const (
	KindSuccess Kind = iota
	KindSessionNotInitialized
	KindInvalidArguments
	KindBrowserLaunchFailed
	KindBrowserActionFailed
	KindUnknownOperation
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindSessionNotInitialized:
		return "session_not_initialized"
	case KindInvalidArguments:
		return "invalid_arguments"
	case KindBrowserLaunchFailed:
		return "browser_launch_failed"
	case KindBrowserActionFailed:
		return "browser_action_failed"
	case KindUnknownOperation:
		return "unknown_operation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the normalized result of one dispatched operation.
type Outcome struct {
	Operation string
	Kind      Kind
	Text      string
	// Retryable marks failures caused by a timeout.
	Retryable bool
}

// IsError reports whether the outcome should be surfaced as a tool error. The
// not-initialized advisory is a normal result.
func (o Outcome) IsError() bool {
	switch o.Kind {
	case KindSuccess, KindSessionNotInitialized:
		return false
	default:
		return true
	}
}

// ArgumentError reports a schema violation in the arguments of an operation.
type ArgumentError struct {
	Operation string
	Field     string
	Reason    string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("Invalid arguments for %s: %s: %s", e.Operation, e.Field, e.Reason)
}

// ActionError reports a driver-level failure of a delegated browser action.
type ActionError struct {
	Operation string
	Cause     error
	Timeout   bool
}

func (e *ActionError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Operation, e.Cause)
	if e.Timeout {
		msg += " (timeout, retryable)"
	}
	return msg
}

func (e *ActionError) Unwrap() error {
	return e.Cause
}
