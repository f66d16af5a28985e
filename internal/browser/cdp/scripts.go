// internal/browser/cdp/scripts.go
package cdp

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed js/evaluate.js
var evaluateSerializer string

//go:embed js/select.js
var selectOptionFunc string

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		// Marshaling a Go string cannot fail.
		panic(fmt.Sprintf("cdp: cannot encode string literal: %v", err))
	}
	return string(b)
}

// evaluateExpression wraps a caller script in the serializing envelope.
func evaluateExpression(script string) string {
	return fmt.Sprintf("(%s\n)(%s)", evaluateSerializer, jsString(script))
}

// selectFunctionDeclaration binds value into a function suitable for Runtime.callFunctionOn.
func selectFunctionDeclaration(value string) string {
	return fmt.Sprintf("function() { return (%s\n).call(this, %s); }", selectOptionFunc, jsString(value))
}

// querySelectorExpression returns an expression evaluating to the first match of selector or null.
func querySelectorExpression(selector string) string {
	return fmt.Sprintf("document.querySelector(%s)", jsString(selector))
}
